// Package websocket pushes state changes to the desktop renderer. The hub
// fans out typed events (entitlement, quota, reminder) to every connected
// client; the renderer holds one long-lived connection and re-renders from
// whatever arrives.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Event type constants pushed to the renderer
const (
	TypeConnection      = "connection"
	TypeLicenseChanged  = "license:changed"
	TypeQuotaChanged    = "quota:changed"
	TypeReminderState   = "reminder:state"
	TypeUpdateAvailable = "update:available"
	TypeError           = "error"
)

// Event is the wire envelope for every hub broadcast
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub maintains the set of active clients and broadcasts events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *slog.Logger

	quit    chan struct{}
	running bool
}

// NewHub creates a hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "websocket.hub"))

	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		quit:       make(chan struct{}),
	}
}

// Start runs the hub loop in its own goroutine. Idempotent.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.run()
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected",
				slog.String("client_id", client.id),
				slog.Int("active_connections", count),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected",
				slog.String("client_id", client.id),
				slog.Int("active_connections", count),
			)

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer, drop it rather than block the hub.
					go h.dropClient(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// dropClient hands a client back to the unregister path, giving up when the
// hub stops before the handoff is received.
func (h *Hub) dropClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

// Stop terminates the hub loop
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	h.running = false
	close(h.quit)
}

// Broadcast pushes a typed event to every connected client. Never blocks;
// a hub that is not running simply drops the event.
func (h *Hub) Broadcast(eventType string, data interface{}) {
	payload, err := json.Marshal(Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	})
	if err != nil {
		h.logger.Warn("failed to marshal event",
			slog.String("type", eventType),
			slog.String("error", err.Error()),
		)
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("broadcast buffer full, dropping event",
			slog.String("type", eventType),
		)
	}
}

// ClientCount returns the number of active connections
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
