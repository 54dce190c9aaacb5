package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/rudransh-shrivastava/exchangelink/internal/protocol"
	"github.com/rudransh-shrivastava/exchangelink/internal/signaling"
	"github.com/rudransh-shrivastava/exchangelink/internal/transport"
)

var errClosedBeforeOpen = errors.New("broker closed the connection before OPEN")

// Broker registers an id at the signaling service.
type Broker interface {
	Dial(ctx context.Context, localID string) (BrokerConn, error)
}

type BrokerConn interface {
	Send(ctx context.Context, env protocol.Envelope) error
	// Recv is closed when the connection is lost.
	Recv() <-chan protocol.Envelope
	Close() error
}

type dialer struct {
	d *signaling.Dialer
}

// NewBroker adapts a websocket signaling dialer.
func NewBroker(d *signaling.Dialer) Broker {
	return dialer{d: d}
}

func (b dialer) Dial(ctx context.Context, localID string) (BrokerConn, error) {
	conn, err := b.d.Dial(ctx, localID)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type registration struct {
	generation int
	conn       BrokerConn
	err        error
}

// Initialize starts registering localID with the broker. Once a
// registration has succeeded, or while one is in flight, further calls do
// nothing. After a failed registration a new call registers again, keeping
// the first status callback.
func (n *Node) Initialize(localID string, onStatus func(Status)) error {
	if localID == "" {
		return ErrInvalidID
	}

	return n.do(func() {
		if !n.initialized {
			n.initialized = true
			n.localID = localID
			n.bridge.onStatus = onStatus
			n.register(false)
			return
		}

		if n.registered || n.registering {
			n.logger.Debugf("Already initialized as %s", n.localID)
			return
		}
		if !n.everRegistered {
			n.localID = localID
		}
		n.logger.Infof("Retrying broker registration as %s", n.localID)
		n.register(false)
	})
}

func (n *Node) register(retry bool) {
	n.registering = true
	n.generation++
	gen := n.generation
	localID := n.localID

	n.logger.Infof("Registering %s with broker", localID)

	go func() {
		conn, err := n.dialAndWaitOpen(localID)
		res := registration{generation: gen, conn: conn, err: err}
		if err != nil && retry {
			res.err = fmt.Errorf("reconnect: %w", err)
		}

		select {
		case n.registration <- res:
		case <-n.stopped:
			if conn != nil {
				_ = conn.Close()
			}
		}
	}()
}

func (n *Node) dialAndWaitOpen(localID string) (BrokerConn, error) {
	conn, err := n.broker.Dial(n.ctx, localID)
	if err != nil {
		return nil, err
	}

	select {
	case env, ok := <-conn.Recv():
		if !ok {
			_ = conn.Close()
			return nil, errClosedBeforeOpen
		}
		if env.Type == protocol.EnvOpen {
			return conn, nil
		}
		_ = conn.Close()
		if env.Payload != nil && env.Payload.Data != "" {
			return nil, fmt.Errorf("%s: %s", env.Type, env.Payload.Data)
		}
		return nil, fmt.Errorf("unexpected %s before OPEN", env.Type)
	case <-n.ctx.Done():
		_ = conn.Close()
		return nil, n.ctx.Err()
	}
}

func (n *Node) handleRegistration(res registration) {
	if res.generation != n.generation {
		if res.conn != nil {
			_ = res.conn.Close()
		}
		return
	}
	n.registering = false

	if res.err != nil {
		n.logger.Errorf("Broker registration failed: %v", res.err)
		n.lastErr = &Error{Kind: KindBrokerRegistration, PeerID: n.localID, Err: res.err}
		n.setStatus(StatusError)
		if n.attempts > 0 {
			n.scheduleReconnect()
		}
		return
	}

	n.conn = res.conn
	n.recv = res.conn.Recv()
	n.registered = true
	n.everRegistered = true
	n.resetBackoff()
	n.publishConn(res.conn)

	n.logger.Infof("Registered with broker as %s", n.localID)
	n.setStatus(StatusDisconnected)
}

func (n *Node) handleBrokerLoss() {
	n.logger.Warnf("Lost connection to broker")
	n.dropBroker()
	n.lastErr = &Error{Kind: KindBrokerDisconnected, PeerID: n.localID}
	n.setStatus(StatusDisconnected)
	n.scheduleReconnect()
}

func (n *Node) dropBroker() {
	n.publishConn(nil)
	if n.conn != nil {
		_ = n.conn.Close()
	}
	n.conn = nil
	n.recv = nil
	n.registered = false
}

func (n *Node) publishConn(conn BrokerConn) {
	n.signalMu.Lock()
	n.signalConn = conn
	n.signalMu.Unlock()
}

func (n *Node) handleEnvelope(env protocol.Envelope) {
	switch env.Type {
	case protocol.EnvOffer, protocol.EnvAnswer, protocol.EnvCandidate:
		signal := transport.Signal{
			Kind:         signalKind(env.Type),
			PeerID:       env.Src,
			ConnectionID: env.ConnectionID(),
		}
		if env.Payload != nil {
			signal.Payload = []byte(env.Payload.Data)
		}
		if err := n.transport.HandleSignal(n.ctx, signal); err != nil {
			n.logger.Warnf("Failed to handle %s from %s: %v", env.Type, env.Src, err)
		}

	case protocol.EnvExpire:
		n.logger.Warnf("Peer %s is not registered", env.Src)
		n.transport.Fail(env.ConnectionID(), &Error{Kind: KindPartnerUnreachable, PeerID: env.Src})

	case protocol.EnvLeave:
		n.logger.Infof("Peer %s left", env.Src)

	case protocol.EnvError:
		if env.Payload != nil {
			n.logger.Warnf("Broker error: %s", env.Payload.Data)
		} else {
			n.logger.Warn("Broker error")
		}

	case protocol.EnvHeartbeat, protocol.EnvOpen:

	default:
		n.logger.Debugf("Ignoring %s envelope", env.Type)
	}
}

func signalKind(t protocol.EnvelopeType) transport.SignalKind {
	switch t {
	case protocol.EnvAnswer:
		return transport.SignalAnswer
	case protocol.EnvCandidate:
		return transport.SignalCandidate
	default:
		return transport.SignalOffer
	}
}

func envelopeType(k transport.SignalKind) protocol.EnvelopeType {
	switch k {
	case transport.SignalAnswer:
		return protocol.EnvAnswer
	case transport.SignalCandidate:
		return protocol.EnvCandidate
	default:
		return protocol.EnvOffer
	}
}

// signaler relays transport negotiation through the current broker
// connection.
type signaler struct {
	n *Node
}

func (s signaler) SendSignal(ctx context.Context, signal transport.Signal) error {
	s.n.signalMu.Lock()
	conn := s.n.signalConn
	s.n.signalMu.Unlock()

	if conn == nil {
		return ErrNotRegistered
	}

	return conn.Send(ctx, protocol.Envelope{
		Type: envelopeType(signal.Kind),
		Dst:  signal.PeerID,
		Payload: &protocol.Payload{
			ConnectionID: signal.ConnectionID,
			Data:         string(signal.Payload),
		},
	})
}
