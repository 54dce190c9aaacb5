package webrtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/exchangelink/internal/transport"
)

var errICEFailed = errors.New("ice connection failed")

type connection struct {
	id        string
	peerID    string
	inbound   bool
	pc        *webrtc.PeerConnection
	dc        *webrtc.DataChannel
	transport *webrtcTransport

	// Local candidates wait until our offer/answer is on the wire, remote
	// ones until the remote description is set.
	signalSent       bool
	localCandidates  []webrtc.ICECandidateInit
	remoteCandidates []webrtc.ICECandidateInit

	closed   bool
	reported bool
	mu       sync.Mutex
}

func newConnection(id, peerID string, pc *webrtc.PeerConnection, t *webrtcTransport, inbound bool) *connection {
	conn := &connection{
		id:        id,
		peerID:    peerID,
		inbound:   inbound,
		pc:        pc,
		transport: t,
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		t.logger.Debugf("Peer connection %s state: %s", id, s.String())
		if kind, final, err := stateEvent(s); final {
			conn.finish(kind, err)
		}
	})

	pc.OnICECandidate(func(ice *webrtc.ICECandidate) {
		if ice != nil {
			conn.queueLocalCandidate(ice.ToJSON())
		}
	})

	if inbound {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			conn.setupDataChannel(dc)
		})
	}

	return conn
}

func (c *connection) createDataChannel() error {
	dc, err := c.pc.CreateDataChannel(channelLabel, DefaultDataChannelConfig())
	if err != nil {
		return fmt.Errorf("failed to create data channel: %w", err)
	}
	c.setupDataChannel(dc)
	return nil
}

func (c *connection) setupDataChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		if !c.isClosed() {
			c.transport.emit(transport.Event{Kind: transport.EventOpen, Channel: c})
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if !c.isClosed() {
			c.transport.emit(transport.Event{Kind: transport.EventMessage, Channel: c, Data: msg.Data})
		}
	})

	dc.OnError(func(err error) {
		c.finish(transport.EventError, err)
	})

	dc.OnClose(func() {
		c.finish(transport.EventClose, nil)
	})
}

func (c *connection) handleSignal(ctx context.Context, signal transport.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch signal.Kind {
	case transport.SignalOffer:
		if !c.inbound {
			return fmt.Errorf("unexpected offer on outbound connection %s", c.id)
		}
		if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  string(signal.Payload),
		}); err != nil {
			return fmt.Errorf("failed to set remote description: %w", err)
		}
		c.addRemoteCandidatesLocked()

		answer, err := c.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("failed to create answer: %w", err)
		}
		if err := c.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("failed to set local description: %w", err)
		}
		if err := c.transport.signaler.SendSignal(ctx, transport.Signal{
			Kind:         transport.SignalAnswer,
			PeerID:       c.peerID,
			ConnectionID: c.id,
			Payload:      []byte(answer.SDP),
		}); err != nil {
			return fmt.Errorf("failed to send answer: %w", err)
		}
		c.sendLocalCandidatesLocked()

	case transport.SignalAnswer:
		if c.inbound {
			return fmt.Errorf("unexpected answer on inbound connection %s", c.id)
		}
		if err := c.pc.SetRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  string(signal.Payload),
		}); err != nil {
			return fmt.Errorf("failed to set remote description: %w", err)
		}
		c.addRemoteCandidatesLocked()

	case transport.SignalCandidate:
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(signal.Payload, &candidate); err != nil {
			return fmt.Errorf("failed to decode ICE candidate: %w", err)
		}
		if c.pc.RemoteDescription() == nil {
			c.remoteCandidates = append(c.remoteCandidates, candidate)
			return nil
		}
		if err := c.pc.AddICECandidate(candidate); err != nil {
			return fmt.Errorf("failed to add ICE candidate: %w", err)
		}
	}

	return nil
}

func (c *connection) addRemoteCandidatesLocked() {
	for _, candidate := range c.remoteCandidates {
		if err := c.pc.AddICECandidate(candidate); err != nil {
			c.transport.logger.Warnf("Failed to add queued ICE candidate on %s: %v", c.id, err)
		}
	}
	c.remoteCandidates = nil
}

func (c *connection) queueLocalCandidate(candidate webrtc.ICECandidateInit) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.signalSent {
		c.localCandidates = append(c.localCandidates, candidate)
		return
	}
	c.sendCandidateLocked(candidate)
}

func (c *connection) flushLocalCandidates() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendLocalCandidatesLocked()
}

func (c *connection) sendLocalCandidatesLocked() {
	c.signalSent = true
	for _, candidate := range c.localCandidates {
		c.sendCandidateLocked(candidate)
	}
	c.localCandidates = nil
}

func (c *connection) sendCandidateLocked(candidate webrtc.ICECandidateInit) {
	if c.closed {
		return
	}

	payload, err := json.Marshal(candidate)
	if err != nil {
		c.transport.logger.Warnf("Failed to marshal ICE candidate: %v", err)
		return
	}

	if err := c.transport.signaler.SendSignal(context.Background(), transport.Signal{
		Kind:         transport.SignalCandidate,
		PeerID:       c.peerID,
		ConnectionID: c.id,
		Payload:      payload,
	}); err != nil {
		c.transport.logger.Warnf("Failed to send ICE candidate: %v", err)
	}
}

// finish reports the terminal event of the channel once and releases the
// peer connection.
func (c *connection) finish(kind transport.EventKind, err error) {
	c.mu.Lock()
	if c.reported || c.closed {
		c.mu.Unlock()
		return
	}
	c.reported = true
	c.mu.Unlock()

	c.transport.remove(c.id)
	c.transport.emit(transport.Event{Kind: kind, Channel: c, Err: err})

	// Closing from inside a pion callback must not block it.
	go func() { _ = c.teardown() }()
}

// stateEvent maps a peer connection state to the event that ends the
// channel. Disconnected may still recover, so it is not final.
func stateEvent(s webrtc.PeerConnectionState) (transport.EventKind, bool, error) {
	switch s {
	case webrtc.PeerConnectionStateFailed:
		return transport.EventError, true, errICEFailed
	case webrtc.PeerConnectionStateClosed:
		return transport.EventClose, true, nil
	default:
		return 0, false, nil
	}
}

func (c *connection) fail(err error) {
	c.finish(transport.EventError, err)
}

func (c *connection) ID() string {
	return c.id
}

func (c *connection) PeerID() string {
	return c.peerID
}

func (c *connection) Inbound() bool {
	return c.inbound
}

func (c *connection) Send(data []byte) error {
	c.mu.Lock()
	dc := c.dc
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return transport.ErrChannelClosed
	}
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return transport.ErrChannelNotReady
	}
	return dc.Send(data)
}

// Close tears the channel down without reporting an event for it.
func (c *connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.transport.remove(c.id)
	return c.teardown()
}

func (c *connection) teardown() error {
	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()

	if dc != nil {
		_ = dc.Close()
	}
	return c.pc.Close()
}

func (c *connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
