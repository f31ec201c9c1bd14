package websocket

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dukerupert/tripcart/internal/protocol"
)

// Mode selects which clients receive a broadcast.
type Mode int

const (
	// Scoped delivers to clients watching the trip and to the trip owner's
	// connections.
	Scoped Mode = iota
	// Global delivers to every connected client.
	Global
)

func (m Mode) String() string {
	if m == Global {
		return "global"
	}
	return "scoped"
}

// ParseMode parses "scoped" or "global". Empty means Scoped.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "scoped":
		return Scoped, nil
	case "global":
		return Global, nil
	default:
		return Scoped, fmt.Errorf("unknown broadcast mode %q", s)
	}
}

// Scope names the trip a broadcast concerns and the user who owns it.
type Scope struct {
	TripID string
	UserID string
}

// Hub maintains the set of active WebSocket clients and fans out events.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	mode    Mode
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger, mode Mode) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		mode:    mode,
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Watch records tripID as the trip c is looking at. It replaces any earlier
// trip.
func (h *Hub) Watch(c *Client, tripID string) {
	h.mu.Lock()
	c.tripID = tripID
	h.mu.Unlock()
}

// SetUser records the authenticated user behind c.
func (h *Hub) SetUser(c *Client, userID string) {
	h.mu.Lock()
	c.userID = userID
	h.mu.Unlock()
}

// Send delivers ev to a single client. Dropped if the client is gone or its
// buffer is full.
func (h *Hub) Send(c *Client, ev protocol.Event) {
	data, err := ev.Encode()
	if err != nil {
		h.logger.Error("marshal event", "event", ev.Name, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	h.deliver(c, ev.Name, data)
}

// Broadcast sends ev to every client in scope.
func (h *Hub) Broadcast(ev protocol.Event, scope Scope) {
	data, err := ev.Encode()
	if err != nil {
		h.logger.Error("marshal broadcast", "event", ev.Name, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if h.mode == Scoped && !c.inScope(scope) {
			continue
		}
		h.deliver(c, ev.Name, data)
	}
}

func (h *Hub) deliver(c *Client, name string, data []byte) {
	select {
	case c.send <- data:
	default:
		// Client buffer full, drop rather than block the sender
		h.logger.Warn("dropped event", "client_id", c.id, "event", name)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Watchers returns how many connected clients are watching tripID.
func (h *Hub) Watchers(tripID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if c.tripID == tripID {
			n++
		}
	}
	return n
}

// Mode returns the hub's broadcast mode.
func (h *Hub) Mode() Mode {
	return h.mode
}
