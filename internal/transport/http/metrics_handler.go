package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	apierrors "mertoncli/internal/errors"
	"mertoncli/internal/infrastructure"
	"mertoncli/internal/operations"
)

// MetricsHandler serves the Prometheus scrape endpoint and a JSON snapshot
// of runtime and queue state
type MetricsHandler struct {
	prometheus http.Handler
	system     *infrastructure.SystemMetrics
	jobs       JobService
}

// MetricsSnapshot is the body of GET /api/metrics
type MetricsSnapshot struct {
	Timestamp time.Time                   `json:"timestamp"`
	Runtime   infrastructure.RuntimeStats `json:"runtime"`
	Jobs      *operations.QueueStats      `json:"jobs,omitempty"`
}

// NewMetricsHandler creates a new metrics handler. Any argument may be nil.
func NewMetricsHandler(prometheus http.Handler, system *infrastructure.SystemMetrics, jobs JobService) *MetricsHandler {
	return &MetricsHandler{
		prometheus: prometheus,
		system:     system,
		jobs:       jobs,
	}
}

// Prometheus handles GET /metrics
func (h *MetricsHandler) Prometheus(w http.ResponseWriter, r *http.Request) {
	if h.prometheus == nil {
		render.Render(w, r, apierrors.ProblemFromAPIError(
			apierrors.ErrServiceUnavailable.WithDetails("metrics exporter disabled"), r.URL.Path))
		return
	}
	h.prometheus.ServeHTTP(w, r)
}

// Snapshot handles GET /api/metrics
func (h *MetricsHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snapshot := MetricsSnapshot{
		Timestamp: time.Now().UTC(),
		Runtime:   h.system.Snapshot(),
	}
	if h.jobs != nil {
		stats := h.jobs.Stats()
		snapshot.Jobs = &stats
	}
	render.JSON(w, r, snapshot)
}
