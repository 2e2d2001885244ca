package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "mmcore/internal/errors"
	"mmcore/internal/services"
)

var validate = validator.New()

// LicenseHandler handles license, feature, and quota HTTP requests.
type LicenseHandler struct {
	service services.EntitlementService
	logger  *slog.Logger
}

// NewLicenseHandler creates a license handler
func NewLicenseHandler(service services.EntitlementService, logger *slog.Logger) *LicenseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LicenseHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// VerifyRequest is the online verification request payload
type VerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Bind implements the render.Binder interface
func (v *VerifyRequest) Bind(r *http.Request) error {
	if err := validate.Struct(v); err != nil {
		return errors.New("a valid email is required")
	}
	return nil
}

// SimulateRequest forces a status transition for manual QA
type SimulateRequest struct {
	Kind string `json:"kind" validate:"required,oneof=free trial pro"`
}

// Bind implements the render.Binder interface
func (s *SimulateRequest) Bind(r *http.Request) error {
	if err := validate.Struct(s); err != nil {
		return errors.New("kind must be one of: free, trial, pro")
	}
	return nil
}

// Routes returns the chi router for license endpoints
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/status", h.GetStatus)
	r.Post("/verify", h.Verify)
	r.Get("/features/{feature}", h.CheckFeature)
	r.Post("/scan", h.PerformScan)
	r.Post("/simulate", h.Simulate)

	return r
}

// GetStatus handles GET /api/license/status
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.GetStatus(r.Context()))
}

// Verify handles POST /api/license/verify
func (h *LicenseHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := render.Bind(r, &req); err != nil {
		render.Render(w, r, apperrors.ErrValidation("email", err.Error()))
		return
	}

	result, err := h.service.Verify(r.Context(), req.Email)
	if err != nil {
		h.logger.Error("verification failed",
			slog.String("email", req.Email),
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apperrors.FromEngine(err))
		return
	}

	render.JSON(w, r, result)
}

// CheckFeature handles GET /api/license/features/{feature}
func (h *LicenseHandler) CheckFeature(w http.ResponseWriter, r *http.Request) {
	feature := chi.URLParam(r, "feature")
	if feature == "" {
		render.Render(w, r, apperrors.ErrValidation("feature", "feature is required"))
		return
	}
	render.JSON(w, r, h.service.CheckFeature(feature))
}

// PerformScan handles POST /api/license/scan
func (h *LicenseHandler) PerformScan(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.PerformScan(r.Context())
	if err != nil {
		render.Render(w, r, apperrors.FromEngine(err))
		return
	}
	render.JSON(w, r, resp)
}

// Simulate handles POST /api/license/simulate
func (h *LicenseHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := render.Bind(r, &req); err != nil {
		render.Render(w, r, apperrors.ErrValidation("kind", err.Error()))
		return
	}

	if err := h.service.Simulate(r.Context(), req.Kind); err != nil {
		render.Render(w, r, apperrors.FromEngine(err))
		return
	}

	render.JSON(w, r, h.service.GetStatus(r.Context()))
}
