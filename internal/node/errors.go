package node

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindBrokerRegistration ErrorKind = iota + 1
	KindBrokerDisconnected
	KindChannel
	KindNotConnected
	KindPartnerUnreachable
)

func (k ErrorKind) String() string {
	switch k {
	case KindBrokerRegistration:
		return "broker registration"
	case KindBrokerDisconnected:
		return "broker disconnected"
	case KindChannel:
		return "channel"
	case KindNotConnected:
		return "not connected"
	case KindPartnerUnreachable:
		return "partner unreachable"
	default:
		return "unknown"
	}
}

// Error is a failure reported by the node. Errors of the same kind match
// with errors.Is, so callers can test against the sentinels below.
type Error struct {
	Kind   ErrorKind
	PeerID string
	Err    error
}

var (
	ErrBrokerRegistration = &Error{Kind: KindBrokerRegistration}
	ErrBrokerDisconnected = &Error{Kind: KindBrokerDisconnected}
	ErrChannel            = &Error{Kind: KindChannel}
	ErrNotConnected       = &Error{Kind: KindNotConnected}
	ErrPartnerUnreachable = &Error{Kind: KindPartnerUnreachable}
)

var (
	ErrNotRegistered = errors.New("not registered with broker")
	ErrInvalidID     = errors.New("invalid identifier")
	ErrClosed        = errors.New("node closed")
)

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.PeerID != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.PeerID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Hint is the text shown to the user for this error.
func (e *Error) Hint() string {
	switch e.Kind {
	case KindBrokerRegistration:
		return "could not register with the signaling server"
	case KindBrokerDisconnected:
		return "signaling server connection lost, retrying"
	case KindNotConnected:
		return "partner app not reachable"
	case KindPartnerUnreachable:
		return "partner not found or offline"
	default:
		return "connection to partner failed"
	}
}
