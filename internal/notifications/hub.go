// Package notifications streams interaction events to connected browsers
// over websockets.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"gallery/internal/events"
	"gallery/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	maxConnsPerUser = 12
	maxTotalConns   = 10000
)

var (
	ErrServerFull = errors.New("server connection limit reached")
	ErrUserFull   = errors.New("user connection limit reached")
)

// Hub fans events out to every registered client. It implements
// events.Publisher so it can sit behind the bus subscriber.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]map[*Client]struct{}
	total  int
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*Client]struct{})}
}

// Register adds a connection for userID ("" for anonymous viewers).
func (h *Hub) Register(userID string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.total >= maxTotalConns {
		return nil, ErrServerFull
	}
	m, ok := h.conns[userID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[userID] = m
	}
	if userID != "" && len(m) >= maxConnsPerUser {
		return nil, ErrUserFull
	}

	client := newClient(h, conn, userID)
	m[client] = struct{}{}
	h.total++
	observability.ActiveWebSockets.Inc()
	return client, nil
}

// Unregister removes the client and closes its queue. Safe to call twice.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[client.UserID]
	if !ok {
		return
	}
	if _, exists := m[client]; !exists {
		return
	}
	delete(m, client)
	if len(m) == 0 {
		delete(h.conns, client.UserID)
	}
	h.total--
	observability.ActiveWebSockets.Dec()
	close(client.queue)
}

// Count reports the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Publish sends the event to every connection.
func (h *Hub) Publish(_ context.Context, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	h.BroadcastAll(data)
	return nil
}

// BroadcastAll sends message to every connected websocket client.
func (h *Hub) BroadcastAll(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.conns {
		for c := range clients {
			c.offer(message)
		}
	}
}

// Shutdown closes every client queue; each write loop then sends a
// close frame and drops its connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for userID, clients := range h.conns {
		for c := range clients {
			close(c.queue)
			observability.ActiveWebSockets.Dec()
		}
		delete(h.conns, userID)
	}
	h.total = 0
}
