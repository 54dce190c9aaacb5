package node

import (
	"context"
	"errors"

	"github.com/rudransh-shrivastava/exchangelink/internal/notify"
	"github.com/rudransh-shrivastava/exchangelink/internal/protocol"
	"github.com/rudransh-shrivastava/exchangelink/internal/transport"
)

// ConnectToPartner opens the channel to partnerID, replacing any channel to
// a previous partner. It requires a live broker registration.
func (n *Node) ConnectToPartner(partnerID string) error {
	if partnerID == "" {
		return ErrInvalidID
	}

	var err error
	if doErr := n.do(func() { err = n.connect(partnerID) }); doErr != nil {
		return doErr
	}
	return err
}

func (n *Node) connect(partnerID string) error {
	if !n.registered {
		n.logger.Warnf("Cannot connect to %s: not registered with broker", partnerID)
		return ErrNotRegistered
	}

	if n.active != nil && n.activePartner == partnerID && n.activeOpen {
		n.logger.Debugf("Already connected to %s", partnerID)
		n.setStatus(StatusConnected)
		return nil
	}

	n.clearActive()
	n.setStatus(StatusConnecting)

	ch, err := n.transport.Open(n.ctx, partnerID)
	if err != nil {
		n.logger.Errorf("Failed to open channel to %s: %v", partnerID, err)
		n.lastErr = &Error{Kind: KindChannel, PeerID: partnerID, Err: err}
		n.setStatus(StatusError)
		return n.lastErr
	}

	n.active = ch
	n.activePartner = partnerID
	n.activeOpen = false
	n.logger.Infof("Connecting to %s on %s", partnerID, ch.ID())
	return nil
}

// clearActive closes the current attempt. The closed channel reports no
// further events.
func (n *Node) clearActive() {
	if n.active == nil {
		return
	}
	_ = n.active.Close()
	n.active = nil
	n.activePartner = ""
	n.activeOpen = false
}

func (n *Node) isActive(ch transport.Channel) bool {
	return n.active != nil && ch != nil && ch.ID() == n.active.ID()
}

// SendData delivers msg on the open channel to the partner. Missing sender
// fields are filled in from the node.
func (n *Node) SendData(ctx context.Context, msg protocol.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	if doErr := n.do(func() { err = n.send(msg) }); doErr != nil {
		return doErr
	}
	return err
}

func (n *Node) send(msg protocol.Message) error {
	if n.active == nil || !n.activeOpen {
		return &Error{Kind: KindNotConnected, PeerID: n.activePartner}
	}

	if msg.SenderID == "" {
		msg.SenderID = n.localID
	}
	if msg.SenderRole == "" {
		msg.SenderRole = n.role
	}

	data, err := n.codec.EncodeToBytes(msg)
	if err != nil {
		return err
	}

	if err := n.active.Send(data); err != nil {
		return &Error{Kind: KindChannel, PeerID: n.activePartner, Err: err}
	}
	n.logger.Debugf("Sent %s to %s", msg.Kind, n.activePartner)
	return nil
}

func (n *Node) handleTransportEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventOpen:
		if !n.isActive(ev.Channel) {
			n.logger.Infof("Channel %s with %s open", ev.Channel.ID(), ev.Channel.PeerID())
			return
		}
		n.activeOpen = true
		n.logger.Infof("Connected to %s", n.activePartner)
		n.setStatus(StatusConnected)
		n.reply(ev.Channel, protocol.NewPing(n.localID, n.role))

	case transport.EventMessage:
		msg, err := n.codec.DecodeFromBytes(ev.Data)
		if err != nil {
			n.logger.Warnf("Dropping undecodable message from %s: %v", ev.Channel.PeerID(), err)
			return
		}
		n.handleMessage(ev.Channel, msg)

	case transport.EventClose:
		if !n.isActive(ev.Channel) {
			n.logger.Debugf("Channel %s closed", ev.Channel.ID())
			return
		}
		n.logger.Infof("Channel to %s closed", n.activePartner)
		n.active = nil
		n.activePartner = ""
		n.activeOpen = false
		n.setStatus(StatusDisconnected)

	case transport.EventError:
		if !n.isActive(ev.Channel) {
			n.logger.Debugf("Channel %s failed: %v", ev.Channel.ID(), ev.Err)
			return
		}
		n.logger.Errorf("Channel to %s failed: %v", n.activePartner, ev.Err)
		n.lastErr = channelError(n.activePartner, ev.Err)
		n.clearActive()
		n.setStatus(StatusError)
	}
}

func channelError(peerID string, err error) error {
	var nodeErr *Error
	if errors.As(err, &nodeErr) {
		return nodeErr
	}
	return &Error{Kind: KindChannel, PeerID: peerID, Err: err}
}

func (n *Node) handleMessage(ch transport.Channel, msg protocol.Message) {
	n.logger.Debugf("Received %s from %s", msg.Kind, ch.PeerID())

	switch msg.Kind {
	case protocol.KindRateUpdate:
		if err := n.notifier.Notify(notify.TitleFor(msg.SenderRole), msg.Content); err != nil {
			n.logger.Warnf("Notification failed: %v", err)
		}
	case protocol.KindPing:
		n.reply(ch, protocol.NewPong(n.localID, n.role))
	case protocol.KindPong:
		n.logger.Infof("Partner %s answered ping", ch.PeerID())
	}

	n.bridge.message(msg)
}

func (n *Node) reply(ch transport.Channel, msg protocol.Message) {
	data, err := n.codec.EncodeToBytes(msg)
	if err != nil {
		n.logger.Warnf("Failed to encode %s: %v", msg.Kind, err)
		return
	}
	if err := ch.Send(data); err != nil {
		n.logger.Warnf("Failed to send %s to %s: %v", msg.Kind, ch.PeerID(), err)
	}
}
