// Package broker is the rendezvous server: it registers ids and relays
// signaling envelopes between them.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rudransh-shrivastava/exchangelink/internal/logger"
	"github.com/rudransh-shrivastava/exchangelink/internal/protocol"
	"github.com/sirupsen/logrus"
)

const (
	Path                 = "/peerjs"
	DefaultClientTimeout = 10 * time.Second
	writeTimeout         = 5 * time.Second
)

var validID = regexp.MustCompile(fmt.Sprintf(`^[A-Za-z0-9_-]{1,%d}$`, protocol.MaxIDSize))

type Config struct {
	Addr          string
	Logger        *logrus.Logger
	ClientTimeout time.Duration
}

type Server struct {
	config   Config
	logger   *logrus.Logger
	store    *Store
	listener net.Listener
	http     *http.Server
	upgrader websocket.Upgrader
}

func NewServer(cfg Config) (*Server, error) {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger()
	}
	if cfg.ClientTimeout <= 0 {
		cfg.ClientTimeout = DefaultClientTimeout
	}

	s := &Server{
		config:   cfg,
		logger:   log,
		store:    NewStore(),
		listener: ln,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.http = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	return s, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleConnect)
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Infof("Broker started on %s", s.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		_ = s.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down broker")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.http.Shutdown(ctx)
	_ = s.listener.Close()
	s.store.CloseAll()
	return err
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugf("Upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}
	defer func() { _ = ws.Close() }()

	c := &client{id: r.URL.Query().Get("id"), ws: ws}

	if !validID.MatchString(c.id) {
		s.logger.Warnf("Rejected invalid id %q from %s", c.id, r.RemoteAddr)
		_ = c.send(protocol.Envelope{
			Type:    protocol.EnvInvalidID,
			Payload: &protocol.Payload{Data: fmt.Sprintf("id %q is invalid", c.id)},
		})
		return
	}

	if !s.store.Add(c) {
		s.logger.Warnf("Rejected taken id %s from %s", c.id, r.RemoteAddr)
		_ = c.send(protocol.Envelope{
			Type:    protocol.EnvIDTaken,
			Payload: &protocol.Payload{Data: fmt.Sprintf("id %q is taken", c.id)},
		})
		return
	}
	defer func() {
		s.store.Remove(c)
		s.logger.Infof("Peer %s disconnected", c.id)
	}()

	if err := c.send(protocol.Envelope{Type: protocol.EnvOpen}); err != nil {
		return
	}
	s.logger.Infof("Peer %s registered from %s", c.id, r.RemoteAddr)

	for {
		_ = ws.SetReadDeadline(time.Now().Add(s.config.ClientTimeout))

		var env protocol.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			s.logger.Debugf("Read from %s ended: %v", c.id, err)
			return
		}

		s.handleEnvelope(c, env)
	}
}

func (s *Server) handleEnvelope(from *client, env protocol.Envelope) {
	switch {
	case env.Type == protocol.EnvHeartbeat:
	case env.Type.Relayed():
		s.relay(from, env)
	default:
		s.logger.Warnf("Unhandled envelope %q from %s", env.Type, from.id)
		_ = from.send(protocol.Envelope{
			Type:    protocol.EnvError,
			Payload: &protocol.Payload{Data: fmt.Sprintf("unsupported message type %q", env.Type)},
		})
	}
}

func (s *Server) relay(from *client, env protocol.Envelope) {
	env.Src = from.id

	to, ok := s.store.Get(env.Dst)
	if !ok {
		if env.Type == protocol.EnvLeave {
			return
		}
		s.logger.Debugf("%s from %s to unknown %s", env.Type, from.id, env.Dst)
		_ = from.send(protocol.Envelope{
			Type:    protocol.EnvExpire,
			Src:     env.Dst,
			Payload: env.Payload,
		})
		return
	}

	if err := to.send(env); err != nil {
		s.logger.Debugf("Relay %s to %s failed: %v", env.Type, to.id, err)
	}
}
