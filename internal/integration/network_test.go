package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/exchangelink/internal/broker"
	"github.com/rudransh-shrivastava/exchangelink/internal/logger"
	"github.com/rudransh-shrivastava/exchangelink/internal/node"
	"github.com/rudransh-shrivastava/exchangelink/internal/protocol"
	"github.com/rudransh-shrivastava/exchangelink/internal/signaling"
)

// Network is a broker plus any number of nodes registered with it.
type Network struct {
	broker *broker.Server
	nodes  []*node.Node
	cancel context.CancelFunc
	ctx    context.Context
	t      *testing.T
}

func NewNetwork(t *testing.T) *Network {
	t.Helper()

	n := &Network{t: t}
	n.ctx, n.cancel = context.WithTimeout(context.Background(), 30*time.Second)
	n.startBroker("127.0.0.1:0")
	t.Cleanup(n.Close)
	return n
}

func (n *Network) startBroker(addr string) {
	n.t.Helper()

	srv, err := broker.NewServer(broker.Config{
		Addr:   addr,
		Logger: logger.Discard(),
	})
	if err != nil {
		n.t.Fatalf("Failed to create broker: %v", err)
	}

	go func() {
		_ = srv.Start(n.ctx)
	}()

	n.broker = srv
}

// RestartBroker stops the broker and starts a new one on the same address.
func (n *Network) RestartBroker() {
	n.t.Helper()

	addr := n.broker.Addr()
	_ = n.broker.Shutdown()
	n.startBroker(addr)
}

func (n *Network) URL() string {
	return "ws://" + n.broker.Addr() + broker.Path
}

type Peer struct {
	Node     *node.Node
	Notifier *Notifier
	statuses chan node.Status
	messages chan protocol.Message
}

func (n *Network) NewPeer(role protocol.Role, policy node.Policy) *Peer {
	n.t.Helper()

	p := &Peer{
		Notifier: &Notifier{},
		statuses: make(chan node.Status, 64),
		messages: make(chan protocol.Message, 64),
	}

	nd, err := node.New(node.Options{
		Broker: node.NewBroker(&signaling.Dialer{
			URL:               n.URL(),
			HeartbeatInterval: time.Second,
			Logger:            logger.Discard(),
		}),
		ICEServers: nil,
		Notifier:   p.Notifier,
		Role:       role,
		Reconnect:  policy,
		Logger:     logger.Discard(),
	})
	if err != nil {
		n.t.Fatalf("Failed to create node: %v", err)
	}
	nd.OnMessage(func(msg protocol.Message) { p.messages <- msg })

	p.Node = nd
	n.nodes = append(n.nodes, nd)
	return p
}

func (p *Peer) Initialize(t *testing.T, id string) {
	t.Helper()

	if err := p.Node.Initialize(id, func(s node.Status) { p.statuses <- s }); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
}

// WaitStatus waits for the next status equal to want, skipping others.
func (p *Peer) WaitStatus(t *testing.T, want node.Status, timeout time.Duration) {
	t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case s := <-p.statuses:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("Timeout waiting for status %s (current %s)", want, p.Node.Status())
		}
	}
}

func (p *Peer) WaitMessage(t *testing.T, kind protocol.Kind, timeout time.Duration) protocol.Message {
	t.Helper()

	deadline := time.After(timeout)
	for {
		select {
		case msg := <-p.messages:
			if msg.Kind == kind {
				return msg
			}
		case <-deadline:
			t.Fatalf("Timeout waiting for %s message", kind)
		}
	}
}

func (n *Network) Context() context.Context {
	return n.ctx
}

func (n *Network) Close() {
	for _, nd := range n.nodes {
		_ = nd.Close()
	}
	n.nodes = nil
	_ = n.broker.Shutdown()
	n.cancel()
}

type Notifier struct {
	mu    sync.Mutex
	calls [][2]string
}

func (f *Notifier) Notify(title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]string{title, body})
	return nil
}

func (f *Notifier) Calls() [][2]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]string(nil), f.calls...)
}
