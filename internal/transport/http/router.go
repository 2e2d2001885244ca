// Package http is the local HTTP surface the desktop renderer talks to. The
// daemon binds loopback only; there is no authentication because nothing
// off-host can reach it.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mmcore/internal/websocket"
)

// RouterDeps carries everything the router mounts.
type RouterDeps struct {
	License *LicenseHandler
	Updates *UpdatesHandler
	Health  *HealthHandler
	Hub     *websocket.Hub
	Logger  *slog.Logger
}

// NewRouter assembles the chi router for the daemon.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", deps.Health.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		websocket.ServeWS(deps.Hub, w, req, logger)
	})

	r.Route("/api", func(r chi.Router) {
		r.Mount("/license", deps.License.Routes())
		r.Mount("/updates", deps.Updates.Routes())
	})

	return r
}

// requestLogger logs each request with method, path, status, and duration.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
