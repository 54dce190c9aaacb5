// Package transport defines the channel abstraction the node drives.
package transport

import (
	"context"
	"errors"
)

var (
	ErrChannelClosed   = errors.New("channel closed")
	ErrChannelNotReady = errors.New("data channel not ready")
	ErrTransportClosed = errors.New("transport closed")
)

// Transport opens directed channels to peers and accepts channels opened by
// them. Channel lifecycle and inbound data are reported on Events.
type Transport interface {
	Open(ctx context.Context, peerID string) (Channel, error)
	HandleSignal(ctx context.Context, signal Signal) error
	Fail(connectionID string, err error)
	Events() <-chan Event
	Close() error
}

type Channel interface {
	ID() string
	PeerID() string
	Inbound() bool
	Send(data []byte) error
	Close() error
}

// Signaler carries negotiation data to a peer, normally through the broker.
type Signaler interface {
	SendSignal(ctx context.Context, signal Signal) error
}

type SignalKind int

const (
	SignalOffer SignalKind = iota
	SignalAnswer
	SignalCandidate
)

func (k SignalKind) String() string {
	switch k {
	case SignalOffer:
		return "offer"
	case SignalAnswer:
		return "answer"
	case SignalCandidate:
		return "candidate"
	default:
		return "unknown"
	}
}

type Signal struct {
	Kind         SignalKind
	PeerID       string
	ConnectionID string
	Payload      []byte
}

type EventKind int

const (
	EventOpen EventKind = iota
	EventMessage
	EventClose
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind    EventKind
	Channel Channel
	Data    []byte
	Err     error
}
