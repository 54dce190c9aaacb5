// Package webrtc implements the channel transport on pion WebRTC data
// channels, negotiated through a transport.Signaler.
package webrtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/randutil"
	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/exchangelink/internal/logger"
	"github.com/rudransh-shrivastava/exchangelink/internal/transport"
	"github.com/sirupsen/logrus"
)

const (
	connectionIDPrefix = "dc_"
	connectionIDLen    = 12
	connectionIDRunes  = "abcdefghijklmnopqrstuvwxyz0123456789"
	eventBuffer        = 64
)

type webrtcTransport struct {
	config      webrtc.Configuration
	signaler    transport.Signaler
	logger      *logrus.Logger
	connections map[string]*connection
	events      chan transport.Event
	done        chan struct{}
	closeOnce   sync.Once
	mu          sync.RWMutex
}

// New creates a WebRTC transport.
func New(signaler transport.Signaler, cfg Config) transport.Transport {
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}

	return &webrtcTransport{
		config:      configuration(cfg.ICEServers),
		signaler:    signaler,
		logger:      log,
		connections: make(map[string]*connection),
		events:      make(chan transport.Event, eventBuffer),
		done:        make(chan struct{}),
	}
}

func (t *webrtcTransport) Open(ctx context.Context, peerID string) (transport.Channel, error) {
	if t.isClosed() {
		return nil, transport.ErrTransportClosed
	}

	id, err := newConnectionID()
	if err != nil {
		return nil, err
	}

	pc, err := webrtc.NewPeerConnection(t.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	conn := newConnection(id, peerID, pc, t, false)
	t.add(conn)

	if err := conn.createDataChannel(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}

	if err := pc.SetLocalDescription(offer); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}

	if err := t.signaler.SendSignal(ctx, transport.Signal{
		Kind:         transport.SignalOffer,
		PeerID:       peerID,
		ConnectionID: id,
		Payload:      []byte(offer.SDP),
	}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send offer: %w", err)
	}

	conn.flushLocalCandidates()
	t.logger.Debugf("Sent offer to %s on %s", peerID, id)
	return conn, nil
}

func (t *webrtcTransport) HandleSignal(ctx context.Context, signal transport.Signal) error {
	if t.isClosed() {
		return transport.ErrTransportClosed
	}

	conn := t.get(signal.ConnectionID)
	if conn == nil {
		if signal.Kind != transport.SignalOffer {
			return fmt.Errorf("%s for unknown connection %s", signal.Kind, signal.ConnectionID)
		}

		pc, err := webrtc.NewPeerConnection(t.config)
		if err != nil {
			return fmt.Errorf("failed to create peer connection: %w", err)
		}

		conn = newConnection(signal.ConnectionID, signal.PeerID, pc, t, true)
		t.add(conn)
		t.logger.Debugf("Incoming channel %s from %s", signal.ConnectionID, signal.PeerID)
	}

	if err := conn.handleSignal(ctx, signal); err != nil {
		if signal.Kind == transport.SignalOffer {
			go conn.fail(err)
		}
		return err
	}
	return nil
}

// Fail reports err on the channel asynchronously, so it is safe to call
// from an Events consumer.
func (t *webrtcTransport) Fail(connectionID string, err error) {
	if conn := t.get(connectionID); conn != nil {
		go conn.fail(err)
	}
}

func (t *webrtcTransport) Events() <-chan transport.Event {
	return t.events
}

func (t *webrtcTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)

		t.mu.Lock()
		conns := t.connections
		t.connections = make(map[string]*connection)
		t.mu.Unlock()

		for _, conn := range conns {
			_ = conn.Close()
		}
	})
	return nil
}

func (t *webrtcTransport) emit(ev transport.Event) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

func (t *webrtcTransport) add(conn *connection) {
	t.mu.Lock()
	t.connections[conn.id] = conn
	t.mu.Unlock()
}

func (t *webrtcTransport) get(id string) *connection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connections[id]
}

func (t *webrtcTransport) remove(id string) {
	t.mu.Lock()
	delete(t.connections, id)
	t.mu.Unlock()
}

func (t *webrtcTransport) isClosed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func newConnectionID() (string, error) {
	s, err := randutil.GenerateCryptoRandomString(connectionIDLen, connectionIDRunes)
	if err != nil {
		return "", fmt.Errorf("generating connection id: %w", err)
	}
	return connectionIDPrefix + s, nil
}
