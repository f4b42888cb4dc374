// Package realtime relays post activity to connected feed viewers over
// websockets.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"shutter/internal/events"
	"shutter/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const defaultMaxConns = 10000

// ErrTooManyConnections is returned by Register when the hub is full.
var ErrTooManyConnections = errors.New("server connection limit reached")

// Hub tracks feed relay clients and broadcasts events to all of them.
// It also satisfies events.Publisher so a single-instance deployment can
// relay without an external broker.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	maxConns int
	closed   bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{}), maxConns: defaultMaxConns}
}

// Register adds a connection. Returns ErrTooManyConnections when full.
func (h *Hub) Register(conn Conn, subject string) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || len(h.clients) >= h.maxConns {
		return nil, ErrTooManyConnections
	}
	client := newClient(h, conn, subject)
	h.clients[client] = struct{}{}
	observability.WebSocketConnections.Inc()
	return client, nil
}

// Unregister forgets client and stops its writer. It is safe to call twice.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(client, nil)
}

func (h *Hub) drop(client *Client, closeFrame []byte) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	client.stop(closeFrame)
	observability.WebSocketConnections.Dec()
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastAll sends message to every connected client.
func (h *Hub) BroadcastAll(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.TrySend(message)
	}
}

// Publish relays e to every client.
func (h *Hub) Publish(_ context.Context, e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	h.BroadcastAll(payload)
	return nil
}

// Close is part of events.Publisher; connections are closed by Shutdown.
func (h *Hub) Close() error { return nil }

// StartWiring forwards events from a Redis channel to this hub's clients so
// every API instance relays activity produced by any instance.
func (h *Hub) StartWiring(ctx context.Context, sub *events.RedisPublisher) error {
	return sub.Subscribe(ctx, func(e events.Event) {
		_ = h.Publish(ctx, e)
	})
}

// Shutdown stops every client with a going-away close frame and refuses
// new registrations.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	goingAway := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for client := range h.clients {
		h.drop(client, goingAway)
	}
	return nil
}
