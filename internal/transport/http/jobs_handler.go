package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "mertoncli/internal/errors"
	"mertoncli/internal/middleware"
	"mertoncli/internal/operations"
	ws "mertoncli/internal/websocket"
)

// JobsBasePath is where the jobs routes are mounted
const JobsBasePath = "/api/jobs"

// Job listing bounds
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

var jobStatuses = []string{
	string(operations.JobStatusPending),
	string(operations.JobStatusRunning),
	string(operations.JobStatusCompleted),
	string(operations.JobStatusFailed),
	string(operations.JobStatusCancelled),
}

// JobsHandler serves asynchronous calibration batches
type JobsHandler struct {
	jobs     JobService
	streamer *ws.Streamer
	validate *validator.Validate
	query    *middleware.QueryParamValidator
	errors   *apierrors.ErrorHandler
	logger   *slog.Logger
}

// SubmitResponse acknowledges an accepted batch
type SubmitResponse struct {
	Job       *operations.Job `json:"job"`
	Message   string          `json:"message"`
	PollURL   string          `json:"poll_url"`
	StreamURL string          `json:"stream_url"`
}

// JobListResponse is a page of job summaries
type JobListResponse struct {
	Jobs  []*operations.Job     `json:"jobs"`
	Count int                   `json:"count"`
	Queue operations.QueueStats `json:"queue"`
}

// NewJobsHandler creates a new jobs handler. A nil streamer disables the
// stream endpoint.
func NewJobsHandler(jobs JobService, streamer *ws.Streamer, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *JobsHandler {
	if jobs == nil {
		panic("jobs cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if errorHandler == nil {
		errorHandler = apierrors.NewErrorHandler(logger, false)
	}
	return &JobsHandler{
		jobs:     jobs,
		streamer: streamer,
		validate: validator.New(),
		query:    middleware.NewQueryParamValidator(logger, errorHandler),
		errors:   errorHandler,
		logger:   logger.With(slog.String("handler", "jobs")),
	}
}

// Routes sets up the job routes. timeout, when set, wraps every route but the
// long-lived stream.
func (h *JobsHandler) Routes(timeout func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		if timeout != nil {
			r.Use(timeout)
		}
		r.Post("/", h.Submit)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Cancel)
	})
	r.Get("/{id}/stream", h.Stream)
	return r
}

// Submit handles POST /api/jobs
func (h *JobsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req operations.JobRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errors.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	job, err := h.jobs.Submit(ctx, req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.Int("job.items", job.Total),
	)
	h.logger.InfoContext(ctx, "calibration job accepted",
		slog.String("job_id", job.ID),
		slog.Int("items", job.Total),
		slog.String("request_id", middleware.GetRequestID(ctx)))

	pollURL := JobsBasePath + "/" + job.ID
	w.Header().Set("Location", pollURL)
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, SubmitResponse{
		Job:       job,
		Message:   "Job queued for processing",
		PollURL:   pollURL,
		StreamURL: pollURL + "/stream",
	})
}

// List handles GET /api/jobs?status=&limit=&since=
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	status, ok := h.query.ValidateEnum(w, r, "status", jobStatuses, "")
	if !ok {
		return
	}
	limit, ok := h.query.ValidateInt(w, r, "limit", 1, maxListLimit, defaultListLimit)
	if !ok {
		return
	}

	since, ok := h.query.ValidateTime(w, r, "since")
	if !ok {
		return
	}

	filter := operations.JobFilter{Status: operations.JobStatus(status), Since: since, Limit: limit}

	jobs, err := h.jobs.ListJobs(filter)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*operations.Job{}
	}

	render.JSON(w, r, JobListResponse{Jobs: jobs, Count: len(jobs), Queue: h.jobs.Stats()})
}

// Get handles GET /api/jobs/{id}
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetJob(chi.URLParam(r, "id"))
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, job)
}

// Cancel handles DELETE /api/jobs/{id}. Running jobs stop between items, so
// the returned summary may still read running.
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.jobs.CancelJob(id); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	job, err := h.jobs.GetJob(id)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "calibration job cancellation requested",
		slog.String("job_id", id),
		slog.String("status", string(job.Status)))

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, job.Summary())
}

// Stream handles GET /api/jobs/{id}/stream. Progress summaries are pushed
// while the job runs; the final frame carries the full job with results.
func (h *JobsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.streamer == nil {
		h.errors.HandleError(w, r, apierrors.ErrServiceUnavailable)
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := h.jobs.GetJob(id); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	h.streamer.Serve(w, r, func(ctx context.Context) (interface{}, bool, error) {
		job, err := h.jobs.GetJob(id)
		if err != nil {
			return nil, false, err
		}
		if job.Status.Terminal() {
			return job, true, nil
		}
		return job.Summary(), false, nil
	})
}
