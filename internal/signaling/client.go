// Package signaling is the websocket client side of the broker protocol.
package signaling

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rudransh-shrivastava/exchangelink/internal/logger"
	"github.com/rudransh-shrivastava/exchangelink/internal/protocol"
	"github.com/sirupsen/logrus"
)

const (
	DefaultHeartbeat = 5 * time.Second
	writeTimeout     = 5 * time.Second
	recvBuffer       = 64
)

var ErrClosed = errors.New("broker connection closed")

// Dialer opens broker connections under a given id.
type Dialer struct {
	URL               string
	HeartbeatInterval time.Duration
	Logger            *logrus.Logger
}

// Conn is one registration at the broker. Envelopes from the broker are
// delivered on Recv, which is closed once the connection is gone.
type Conn struct {
	ws     *websocket.Conn
	logger *logrus.Logger
	recv   chan protocol.Envelope
	done   chan struct{}

	closeOnce sync.Once
	writeMu   sync.Mutex
	err       error
	errMu     sync.Mutex
}

func (d *Dialer) Dial(ctx context.Context, localID string) (*Conn, error) {
	target, err := endpoint(d.URL, localID)
	if err != nil {
		return nil, err
	}

	log := d.Logger
	if log == nil {
		log = logger.Discard()
	}

	log.Debugf("Dialing broker %s", target)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}

	c := &Conn{
		ws:     ws,
		logger: log,
		recv:   make(chan protocol.Envelope, recvBuffer),
		done:   make(chan struct{}),
	}

	interval := d.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeat
	}

	go c.readLoop()
	go c.heartbeat(interval)
	return c, nil
}

func endpoint(raw, localID string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid broker url %q: %w", raw, err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid broker url %q: unsupported scheme", raw)
	}

	q := u.Query()
	q.Set("id", localID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Conn) Send(ctx context.Context, env protocol.Envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(deadline)
	err := c.ws.WriteJSON(env)
	c.writeMu.Unlock()

	if err != nil {
		c.shutdown(err)
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	return nil
}

func (c *Conn) Recv() <-chan protocol.Envelope {
	return c.recv
}

// Err reports why the connection ended, nil for a local Close.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Conn) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Conn) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()

		close(c.done)

		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
}

func (c *Conn) readLoop() {
	defer close(c.recv)

	for {
		var env protocol.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Debugf("Broker read failed: %v", err)
				c.shutdown(err)
			}
			return
		}

		select {
		case c.recv <- env:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.Send(context.Background(), protocol.Envelope{Type: protocol.EnvHeartbeat}); err != nil {
				c.logger.Debugf("Heartbeat failed: %v", err)
				return
			}
		}
	}
}
