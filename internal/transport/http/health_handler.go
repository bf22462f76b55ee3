package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"mertoncli/internal/services"
)

// HealthHandler serves the probe and version endpoints
type HealthHandler struct {
	health HealthReporter
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(health HealthReporter, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		health: health,
		logger: logger.With(slog.String("handler", "health")),
	}
}

// Register mounts the probes on r: /health, /health/ready, /health/live
// and /version. Liveness also answers HEAD for load balancers.
func (h *HealthHandler) Register(r chi.Router) {
	r.Get("/health", h.HealthCheck)
	r.Get("/health/ready", h.ReadinessCheck)
	r.Get("/health/live", h.LivenessCheck)
	r.Head("/health/live", h.LivenessCheck)
	r.Get("/version", h.Version)
}

// HealthCheck reports status with a runtime sample
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.health.HealthCheck(r.Context()))
}

// ReadinessCheck answers 503 while any readiness check fails
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := h.health.ReadinessCheck(r.Context())
	if status.Status != services.StatusReady {
		h.logger.DebugContext(r.Context(), "readiness probe failed", slog.Any("services", status.Services))
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, status)
}

func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	render.JSON(w, r, h.health.LivenessCheck(r.Context()))
}

// Version reports build and runtime information
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.health.Version())
}
