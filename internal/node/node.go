// Package node manages the peer session of one client: broker registration,
// the channel to the current partner and delivery of inbound messages.
//
// All state is owned by a single loop goroutine. Public methods hand work to
// the loop and wait for it; status and message callbacks are invoked from the
// loop in the order the underlying events arrive.
package node

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rudransh-shrivastava/exchangelink/internal/logger"
	"github.com/rudransh-shrivastava/exchangelink/internal/notify"
	"github.com/rudransh-shrivastava/exchangelink/internal/protocol"
	"github.com/rudransh-shrivastava/exchangelink/internal/transport"
	"github.com/rudransh-shrivastava/exchangelink/internal/transport/webrtc"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Broker Broker
	// Transport builds the channel transport. Defaults to WebRTC.
	Transport  func(transport.Signaler) transport.Transport
	ICEServers []string
	Notifier   notify.Notifier
	// Role is stamped on the PING/PONG messages the node sends itself.
	Role      protocol.Role
	Reconnect Policy
	Logger    *logrus.Logger
}

type Node struct {
	broker    Broker
	transport transport.Transport
	notifier  notify.Notifier
	codec     *protocol.Codec
	policy    Policy
	logger    *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc

	cmds         chan func()
	registration chan registration
	retries      chan int
	quit         chan struct{}
	stopped      chan struct{}
	closeOnce    sync.Once

	// The transport signals from its own goroutines, so the live broker
	// connection is also published here outside the loop.
	signalMu   sync.Mutex
	signalConn BrokerConn

	// Loop-owned state.
	localID     string
	role        protocol.Role
	initialized bool
	registering bool
	registered  bool
	generation  int
	conn        BrokerConn
	recv        <-chan protocol.Envelope

	// everRegistered pins localID after the first successful registration.
	everRegistered bool

	status  Status
	lastErr error
	bridge  bridge

	active        transport.Channel
	activePartner string
	activeOpen    bool

	retry    backoff.BackOff
	attempts int
	retrySeq int
	timers   map[int]*time.Timer
}

func New(opts Options) (*Node, error) {
	if opts.Broker == nil {
		return nil, errors.New("node: broker is required")
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		broker:       opts.Broker,
		notifier:     notifier,
		codec:        protocol.NewCodec(),
		policy:       opts.Reconnect.withDefaults(),
		logger:       log,
		ctx:          ctx,
		cancel:       cancel,
		cmds:         make(chan func()),
		registration: make(chan registration),
		retries:      make(chan int),
		quit:         make(chan struct{}),
		stopped:      make(chan struct{}),
		role:         opts.Role,
		timers:       make(map[int]*time.Timer),
	}
	n.retry = n.policy.newBackOff()

	newTransport := opts.Transport
	if newTransport == nil {
		newTransport = func(sig transport.Signaler) transport.Transport {
			return webrtc.New(sig, webrtc.Config{ICEServers: opts.ICEServers, Logger: log})
		}
	}
	n.transport = newTransport(signaler{n})

	go n.run()
	return n, nil
}

func (n *Node) run() {
	defer close(n.stopped)

	for {
		select {
		case <-n.quit:
			n.shutdown()
			return
		case fn := <-n.cmds:
			fn()
		case res := <-n.registration:
			n.handleRegistration(res)
		case env, ok := <-n.recv:
			if !ok {
				n.handleBrokerLoss()
				continue
			}
			n.handleEnvelope(env)
		case ev := <-n.transport.Events():
			n.handleTransportEvent(ev)
		case seq := <-n.retries:
			n.handleRetry(seq)
		}
	}
}

// do runs fn on the loop and waits for it to finish.
func (n *Node) do(fn func()) error {
	done := make(chan struct{})
	select {
	case n.cmds <- func() { fn(); close(done) }:
	case <-n.stopped:
		return ErrClosed
	}
	<-done
	return nil
}

// SetRole changes the role stamped on PING/PONG messages.
func (n *Node) SetRole(role protocol.Role) {
	_ = n.do(func() { n.role = role })
}

// Close releases the channel, the broker registration and the transport.
// The node cannot be used afterwards.
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		n.cancel()
		close(n.quit)
		<-n.stopped
	})
	return nil
}

func (n *Node) shutdown() {
	for seq, timer := range n.timers {
		timer.Stop()
		delete(n.timers, seq)
	}

	n.clearActive()
	n.dropBroker()
	if err := n.transport.Close(); err != nil {
		n.logger.Debugf("Transport close: %v", err)
	}
	n.logger.Info("Node closed")
}
