package node

import "github.com/rudransh-shrivastava/exchangelink/internal/protocol"

type Status int

const (
	StatusUninitialized Status = iota
	StatusDisconnected
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "uninitialized"
	}
}

// bridge holds the single status and message callback. It is only touched
// from the node loop.
type bridge struct {
	onStatus  func(Status)
	onMessage func(protocol.Message)
}

func (b *bridge) status(s Status) {
	if b.onStatus != nil {
		b.onStatus(s)
	}
}

func (b *bridge) message(msg protocol.Message) {
	if b.onMessage != nil {
		b.onMessage(msg)
	}
}

func (n *Node) setStatus(s Status) {
	n.status = s
	n.logger.Debugf("Status: %s", s)
	n.bridge.status(s)
}

// OnStatus replaces the status callback. Callbacks run on the node loop and
// must not call back into the node synchronously.
func (n *Node) OnStatus(fn func(Status)) {
	_ = n.do(func() { n.bridge.onStatus = fn })
}

// OnMessage replaces the callback for inbound application messages.
func (n *Node) OnMessage(fn func(protocol.Message)) {
	_ = n.do(func() { n.bridge.onMessage = fn })
}

func (n *Node) Status() Status {
	var s Status
	_ = n.do(func() { s = n.status })
	return s
}

// LastError returns the most recent error recorded by the node.
func (n *Node) LastError() error {
	var err error
	_ = n.do(func() { err = n.lastErr })
	return err
}
