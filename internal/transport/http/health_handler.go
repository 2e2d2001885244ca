package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"mmcore/internal/websocket"
)

// HealthHandler reports daemon liveness to the renderer.
type HealthHandler struct {
	version string
	started time.Time
	hub     *websocket.Hub
}

// NewHealthHandler creates a health handler
func NewHealthHandler(version string, hub *websocket.Hub) *HealthHandler {
	return &HealthHandler{
		version: version,
		started: time.Now(),
		hub:     hub,
	}
}

// HealthResponse is the liveness payload
type HealthResponse struct {
	Status        string    `json:"status"`
	Version       string    `json:"version"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Connections   int       `json:"connections"`
	Timestamp     time.Time `json:"timestamp"`
}

// Health handles GET /healthz
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Connections:   h.hub.ClientCount(),
		Timestamp:     time.Now(),
	})
}
