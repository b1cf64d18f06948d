package realtime

import (
	"context"
	"log/slog"
	"sync"

	v1 "rsvp/shared/contracts/rsvpfeed/v1"
)

// Hub fans feed envelopes out to every connected subscriber on this instance.
//
// Concurrency guarantees:
//   - Register/Unregister are safe under concurrent Publish.
//   - Publish never blocks; slow subscribers miss events.
type Hub struct {
	log    *slog.Logger
	onDrop func()

	mu      sync.RWMutex
	clients map[string]*Client
}

// HubOption configures Hub.
type HubOption func(*Hub)

// WithDropHook is called once per envelope a subscriber missed.
func WithDropHook(fn func()) HubOption {
	return func(h *Hub) { h.onDrop = fn }
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger, opts ...HubOption) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		log:     log,
		clients: make(map[string]*Client),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register adds a subscriber.
func (h *Hub) Register(c *Client) {
	if h == nil || c == nil || c.ID == "" {
		return
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	h.log.Info("feed.subscriber.join", "client_id", c.ID)
}

// Unregister removes a subscriber and signals its shutdown.
func (h *Hub) Unregister(id string) {
	if h == nil || id == "" {
		return
	}

	h.mu.Lock()
	c := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()

	// Close after removal so no publisher still holds the client.
	if c != nil {
		c.Close()
	}

	h.log.Info("feed.subscriber.leave", "client_id", id)
}

// Len reports the number of connected subscribers.
func (h *Hub) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish implements Publisher for local fan-out. It never fails.
func (h *Hub) Publish(_ context.Context, env v1.Envelope) error {
	if h == nil {
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		select {
		case <-c.Done():
			continue
		default:
		}

		select {
		case c.Send <- env:
		default:
			if h.onDrop != nil {
				h.onDrop()
			}
		}
	}
	return nil
}
