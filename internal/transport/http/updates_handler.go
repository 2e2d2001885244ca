package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	apperrors "mmcore/internal/errors"
	"mmcore/internal/reminder"
	"mmcore/internal/updater"
)

// UpdatesHandler handles update-check and reminder HTTP requests.
type UpdatesHandler struct {
	scheduler *reminder.Scheduler
	updater   *updater.Updater
	logger    *slog.Logger
}

// NewUpdatesHandler creates an updates handler
func NewUpdatesHandler(scheduler *reminder.Scheduler, upd *updater.Updater, logger *slog.Logger) *UpdatesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UpdatesHandler{
		scheduler: scheduler,
		updater:   upd,
		logger:    logger.With(slog.String("handler", "updates")),
	}
}

// DismissRequest suppresses reminders for a chosen window
type DismissRequest struct {
	Duration string `json:"duration"`
}

// Bind implements the render.Binder interface
func (d *DismissRequest) Bind(r *http.Request) error {
	if _, ok := reminder.DismissDuration(d.Duration).Window(); !ok {
		return errors.New("duration must be one of: hour, day, week, session")
	}
	return nil
}

// AutoUpdateRequest toggles automatic update installation
type AutoUpdateRequest struct {
	Enabled bool `json:"enabled"`
}

// Bind implements the render.Binder interface
func (a *AutoUpdateRequest) Bind(r *http.Request) error {
	return nil
}

// Routes returns the chi router for update endpoints. Install gets a longer
// timeout since it downloads a release.
func (h *UpdatesHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/state", h.GetState)
		r.Post("/check", h.ForceCheck)
		r.Post("/dismiss", h.Dismiss)
		r.Post("/auto-update", h.SetAutoUpdate)
		r.Post("/prompts/onboarding", h.OnboardingPrompt)
		r.Post("/prompts/upgrade", h.UpgradePrompt)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Minute))
		r.Post("/install", h.Install)
	})

	return r
}

// GetState handles GET /api/updates/state
func (h *UpdatesHandler) GetState(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, struct {
		reminder.State
		CurrentVersion    string `json:"current_version"`
		AutoUpdateEnabled bool   `json:"auto_update_enabled"`
	}{
		State:             h.scheduler.Snapshot(),
		CurrentVersion:    h.updater.CurrentVersion(),
		AutoUpdateEnabled: h.updater.AutoUpdateEnabled(),
	})
}

// ForceCheck handles POST /api/updates/check
func (h *UpdatesHandler) ForceCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.scheduler.ForceUpdateCheck(r.Context()))
}

// Dismiss handles POST /api/updates/dismiss
func (h *UpdatesHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	var req DismissRequest
	if err := render.Bind(r, &req); err != nil {
		render.Render(w, r, apperrors.ErrValidation("duration", err.Error()))
		return
	}

	if err := h.scheduler.Dismiss(r.Context(), reminder.DismissDuration(req.Duration)); err != nil {
		render.Render(w, r, apperrors.FromEngine(err))
		return
	}
	render.JSON(w, r, h.scheduler.Snapshot())
}

// SetAutoUpdate handles POST /api/updates/auto-update. Enabling auto-update
// resolves any in-flight reminder cycle.
func (h *UpdatesHandler) SetAutoUpdate(w http.ResponseWriter, r *http.Request) {
	var req AutoUpdateRequest
	if err := render.Bind(r, &req); err != nil {
		render.Render(w, r, apperrors.ErrInvalidRequest)
		return
	}

	h.updater.SetAutoUpdate(req.Enabled)
	if req.Enabled {
		h.scheduler.OnAutoUpdateEnabled()
	}
	render.JSON(w, r, h.scheduler.Snapshot())
}

// Install handles POST /api/updates/install
func (h *UpdatesHandler) Install(w http.ResponseWriter, r *http.Request) {
	result := h.updater.InstallUpdate(r.Context())
	if result.Success {
		h.scheduler.OnUpdateInstalled()
	}
	render.JSON(w, r, result)
}

// OnboardingPrompt handles POST /api/updates/prompts/onboarding
func (h *UpdatesHandler) OnboardingPrompt(w http.ResponseWriter, r *http.Request) {
	shown := h.scheduler.ShowOnboardingPrompt()
	render.JSON(w, r, map[string]bool{"shown": shown})
}

// UpgradePrompt handles POST /api/updates/prompts/upgrade
func (h *UpdatesHandler) UpgradePrompt(w http.ResponseWriter, r *http.Request) {
	shown := h.scheduler.ShowUpgradePrompt()
	render.JSON(w, r, map[string]bool{"shown": shown})
}
