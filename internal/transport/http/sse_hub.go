package http

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/brainwaves/notification/internal/domain"
	"github.com/brainwaves/notification/internal/messages"
)

// Client represents a connected SSE client.
type Client struct {
	userID string
	send   chan []byte
}

// Hub manages the SSE connections of this process and delivers realtime
// events to them. Across processes, redisbus relays events into each Hub.
type Hub struct {
	mu      sync.RWMutex
	clients map[string][]*Client // userID -> clients
}

// NewHub creates a new SSE Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string][]*Client)}
}

// Register adds a new SSE client.
func (h *Hub) Register(userID string, send chan []byte) *Client {
	c := &Client{userID: userID, send: send}

	h.mu.Lock()
	h.clients[userID] = append(h.clients[userID], c)
	h.mu.Unlock()

	log.Debug().Str("user", userID).Msg("SSE client connected")
	return c
}

// Unregister removes an SSE client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.clients[c.userID]
	updated := make([]*Client, 0, len(clients))
	for _, existing := range clients {
		if existing != c {
			updated = append(updated, existing)
		}
	}
	if len(updated) == 0 {
		delete(h.clients, c.userID)
	} else {
		h.clients[c.userID] = updated
	}

	log.Debug().Str("user", c.userID).Msg("SSE client disconnected")
}

// Publish delivers ev to every connected client of userID on this process.
// It satisfies application.Publisher. Slow clients are skipped, never waited on.
func (h *Hub) Publish(_ context.Context, userID string, ev domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.clients[userID]
	if len(clients) == 0 {
		return
	}

	msg := buildSSEMessage(ev)
	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			log.Warn().Str("user", userID).Str("kind", string(ev.Kind)).Msg("SSE client send buffer full, skipping")
		}
	}
}

// ConnectedCount returns the total number of connected SSE clients.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

// StreamPayload is the data of an SSE frame.
type StreamPayload struct {
	Kind         domain.EventKind     `json:"kind"`
	Notification *domain.Notification `json:"notification"`
	Title        string               `json:"title,omitempty"`
	Body         string               `json:"body,omitempty"`
}

// buildSSEMessage formats an event as an SSE frame named after its kind.
func buildSSEMessage(ev domain.Event) []byte {
	p := StreamPayload{Kind: ev.Kind, Notification: ev.Notification}
	if ev.Notification != nil && ev.Kind != domain.EventDelete {
		p.Title, p.Body = messages.Render(ev.Notification)
	}
	b, _ := json.Marshal(p)
	return []byte("id: " + uuid.NewString() + "\nevent: " + string(ev.Kind) + "\ndata: " + string(b) + "\n\n")
}
