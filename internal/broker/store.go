package broker

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rudransh-shrivastava/exchangelink/internal/protocol"
)

type client struct {
	id      string
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) send(env protocol.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(env)
}

// Store holds the ids currently registered at the broker.
type Store struct {
	mu      sync.Mutex
	clients map[string]*client
}

func NewStore() *Store {
	return &Store{
		clients: make(map[string]*client),
	}
}

// Add registers c under its id. It reports false if the id is taken.
func (s *Store) Add(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[c.id]; exists {
		return false
	}
	s.clients[c.id] = c
	return true
}

// Remove drops the registration only if it still belongs to c.
func (s *Store) Remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clients[c.id] == c {
		delete(s.clients, c.id)
	}
}

func (s *Store) Get(id string) (*client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	return c, ok
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// CloseAll disconnects every registered client.
func (s *Store) CloseAll() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "broker shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	}
}
