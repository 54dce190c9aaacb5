package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rudransh-shrivastava/exchangelink/internal/logger"
	"github.com/rudransh-shrivastava/exchangelink/internal/protocol"
	"github.com/rudransh-shrivastava/exchangelink/internal/transport"
)

type fakeBroker struct {
	mu      sync.Mutex
	dials   []time.Time
	conns   []*fakeConn
	reply   protocol.EnvelopeType
	dialErr error
	gate    chan struct{}
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{reply: protocol.EnvOpen}
}

func (b *fakeBroker) Dial(ctx context.Context, localID string) (BrokerConn, error) {
	b.mu.Lock()
	b.dials = append(b.dials, time.Now())
	gate := b.gate
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dialErr != nil {
		return nil, b.dialErr
	}

	c := &fakeConn{id: localID, recv: make(chan protocol.Envelope, 16)}
	if b.reply != "" {
		c.recv <- protocol.Envelope{Type: b.reply}
	}
	b.conns = append(b.conns, c)
	return c, nil
}

func (b *fakeBroker) setDialErr(err error) {
	b.mu.Lock()
	b.dialErr = err
	b.mu.Unlock()
}

func (b *fakeBroker) setReply(reply protocol.EnvelopeType) {
	b.mu.Lock()
	b.reply = reply
	b.mu.Unlock()
}

func (b *fakeBroker) dialCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.dials)
}

func (b *fakeBroker) dialTimes() []time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]time.Time(nil), b.dials...)
}

func (b *fakeBroker) conn(i int) *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i >= len(b.conns) {
		return nil
	}
	return b.conns[i]
}

type fakeConn struct {
	id        string
	recv      chan protocol.Envelope
	mu        sync.Mutex
	sent      []protocol.Envelope
	closed    bool
	closeOnce sync.Once
}

func (c *fakeConn) Send(_ context.Context, env protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("fake conn closed")
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeConn) Recv() <-chan protocol.Envelope {
	return c.recv
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.drop()
	return nil
}

// drop simulates the broker going away.
func (c *fakeConn) drop() {
	c.closeOnce.Do(func() { close(c.recv) })
}

func (c *fakeConn) push(env protocol.Envelope) {
	c.recv <- env
}

func (c *fakeConn) sentEnvelopes() []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Envelope(nil), c.sent...)
}

type fakeTransport struct {
	mu       sync.Mutex
	sig      transport.Signaler
	events   chan transport.Event
	channels []*fakeChannel
	signals  []transport.Signal
	openErr  error
	closed   bool
	seq      int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan transport.Event, 64)}
}

func (t *fakeTransport) factory(sig transport.Signaler) transport.Transport {
	t.sig = sig
	return t
}

func (t *fakeTransport) Open(ctx context.Context, peerID string) (transport.Channel, error) {
	t.mu.Lock()
	if t.openErr != nil {
		t.mu.Unlock()
		return nil, t.openErr
	}
	t.seq++
	ch := &fakeChannel{id: fmt.Sprintf("dc_%d", t.seq), peerID: peerID}
	t.channels = append(t.channels, ch)
	t.mu.Unlock()

	if err := t.sig.SendSignal(ctx, transport.Signal{
		Kind:         transport.SignalOffer,
		PeerID:       peerID,
		ConnectionID: ch.id,
		Payload:      []byte("v=0"),
	}); err != nil {
		return nil, err
	}
	return ch, nil
}

func (t *fakeTransport) HandleSignal(_ context.Context, signal transport.Signal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.signals = append(t.signals, signal)
	if signal.Kind != transport.SignalOffer {
		return nil
	}
	for _, ch := range t.channels {
		if ch.id == signal.ConnectionID {
			return nil
		}
	}
	t.channels = append(t.channels, &fakeChannel{id: signal.ConnectionID, peerID: signal.PeerID, inbound: true})
	return nil
}

func (t *fakeTransport) Fail(connectionID string, err error) {
	if ch := t.find(connectionID); ch != nil {
		go func() { t.events <- transport.Event{Kind: transport.EventError, Channel: ch, Err: err} }()
	}
}

func (t *fakeTransport) Events() <-chan transport.Event {
	return t.events
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) find(id string) *fakeChannel {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.channels {
		if ch.id == id {
			return ch
		}
	}
	return nil
}

func (t *fakeTransport) channel(i int) *fakeChannel {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.channels) {
		return nil
	}
	return t.channels[i]
}

func (t *fakeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.channels)
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) open(ch *fakeChannel) {
	t.events <- transport.Event{Kind: transport.EventOpen, Channel: ch}
}

func (t *fakeTransport) closeRemote(ch *fakeChannel) {
	t.events <- transport.Event{Kind: transport.EventClose, Channel: ch}
}

func (t *fakeTransport) fail(ch *fakeChannel, err error) {
	t.events <- transport.Event{Kind: transport.EventError, Channel: ch, Err: err}
}

func (t *fakeTransport) deliver(ch *fakeChannel, data []byte) {
	t.events <- transport.Event{Kind: transport.EventMessage, Channel: ch, Data: data}
}

type fakeChannel struct {
	id      string
	peerID  string
	inbound bool
	mu      sync.Mutex
	sent    [][]byte
	closed  bool
}

func (c *fakeChannel) ID() string     { return c.id }
func (c *fakeChannel) PeerID() string { return c.peerID }
func (c *fakeChannel) Inbound() bool  { return c.inbound }

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrChannelClosed
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) messages() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	codec := protocol.NewCodec()
	var msgs []protocol.Message
	for _, data := range c.sent {
		if msg, err := codec.DecodeFromBytes(data); err == nil {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func (c *fakeChannel) lastSent() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return nil
	}
	return c.sent[len(c.sent)-1]
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls [][2]string
}

func (f *fakeNotifier) Notify(title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]string{title, body})
	return nil
}

func (f *fakeNotifier) snapshot() [][2]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]string(nil), f.calls...)
}

type recorder struct {
	mu       sync.Mutex
	statuses []Status
	messages []protocol.Message
}

func (r *recorder) onStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) onMessage(msg protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorder) statusLog() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func (r *recorder) messageLog() []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Message(nil), r.messages...)
}

func (r *recorder) count(s Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.statuses {
		if got == s {
			n++
		}
	}
	return n
}

type harness struct {
	node     *Node
	broker   *fakeBroker
	tr       *fakeTransport
	notifier *fakeNotifier
	rec      *recorder
}

func newHarness(policy Policy) *harness {
	h := &harness{
		broker:   newFakeBroker(),
		tr:       newFakeTransport(),
		notifier: &fakeNotifier{},
		rec:      &recorder{},
	}

	n, err := New(Options{
		Broker:    h.broker,
		Transport: h.tr.factory,
		Notifier:  h.notifier,
		Role:      protocol.RoleBitcoin,
		Reconnect: policy,
		Logger:    logger.Discard(),
	})
	if err != nil {
		panic(err)
	}
	h.node = n
	n.OnMessage(h.rec.onMessage)
	return h
}
