// Package notify delivers user-facing notifications by pushing them to the
// renderer over the websocket hub, which owns the native notification
// presentation. Strictly fire-and-forget: a notification that cannot be
// delivered is logged and forgotten.
package notify

import (
	"log/slog"

	"mmcore/internal/websocket"
)

const eventType = "notification:show"

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Notifier shows notifications through the renderer.
type Notifier struct {
	hub    *websocket.Hub
	logger *slog.Logger
}

// NewNotifier creates a hub-backed notifier
func NewNotifier(hub *websocket.Hub, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		hub:    hub,
		logger: logger,
	}
}

// Show pushes a notification to every connected renderer. When none is
// connected the event is simply dropped.
func (n *Notifier) Show(title, body string) {
	if n.hub.ClientCount() == 0 {
		n.logger.Debug("no renderer connected, dropping notification",
			slog.String("title", title),
		)
		return
	}

	n.hub.Broadcast(eventType, notification{Title: title, Body: body})
	n.logger.Debug("notification dispatched",
		slog.String("title", title),
	)
}
