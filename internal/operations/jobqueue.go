package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	apierrors "mertoncli/internal/errors"
	"mertoncli/internal/infrastructure"
)

// ErrQueueStopped is returned when submitting to a queue that is not running
var ErrQueueStopped = errors.New("job queue is not running")

// QueueConfig sizes the job queue
type QueueConfig struct {
	Workers      int
	QueueSize    int
	MaxBatchSize int
	// Retention is how long finished jobs are kept. Zero keeps them forever.
	Retention time.Duration
}

// JobQueue runs calibration batches on a fixed pool of workers
type JobQueue struct {
	mu         sync.Mutex
	jobs       chan string
	cfg        QueueConfig
	wg         sync.WaitGroup
	store      JobStore
	calibrator Calibrator
	metrics    *infrastructure.CalibrationMetrics
	logger     *slog.Logger
	shutdown   chan struct{}
	cancel     context.CancelFunc
	running    bool
	active     map[string]context.CancelFunc // Currently executing jobs
}

// NewJobQueue creates a new job queue
func NewJobQueue(cfg QueueConfig, store JobStore, calibrator Calibrator, metrics *infrastructure.CalibrationMetrics, logger *slog.Logger) *JobQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 4 // Default number of workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 2
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &JobQueue{
		jobs:       make(chan string, cfg.QueueSize),
		cfg:        cfg,
		store:      store,
		calibrator: calibrator,
		metrics:    metrics,
		logger:     logger.With(slog.String("component", "jobqueue")),
		shutdown:   make(chan struct{}),
		active:     make(map[string]context.CancelFunc),
	}
}

// Start begins processing jobs. Jobs inherit ctx; cancelling it aborts
// running batches.
func (q *JobQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}

	ctx, q.cancel = context.WithCancel(ctx)
	q.running = true

	q.logger.Info("starting job queue",
		slog.Int("workers", q.cfg.Workers),
		slog.Int("queue_size", q.cfg.QueueSize))

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}

	if q.cfg.Retention > 0 {
		q.wg.Add(1)
		go q.janitor(ctx)
	}
}

// Stop lets running batches finish within timeout, then cancels them
func (q *JobQueue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	close(q.shutdown)
	q.mu.Unlock()

	q.logger.Info("stopping job queue")

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.drainPending()
		q.logger.Info("job queue stopped gracefully")
		return nil
	case <-time.After(timeout):
		q.logger.Warn("job queue stop timeout exceeded, cancelling running jobs")
		q.cancel()
		<-done
		q.drainPending()
		return fmt.Errorf("timeout waiting for workers to finish")
	}
}

// drainPending cancels jobs still queued once the workers have exited
func (q *JobQueue) drainPending() {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := 0
	for {
		select {
		case id := <-q.jobs:
			job, err := q.store.GetJob(id)
			if err != nil || job.Status.Terminal() {
				continue
			}
			if err := q.markCancelled(job, "Job cancelled by shutdown"); err != nil {
				q.logger.Error("failed to cancel queued job",
					slog.String("job_id", id),
					slog.String("error", err.Error()))
				continue
			}
			drained++
		default:
			if drained > 0 {
				q.logger.Info("cancelled queued jobs", slog.Int("count", drained))
			}
			return
		}
	}
}

// markCancelled stores job as cancelled; callers hold q.mu
func (q *JobQueue) markCancelled(job *Job, message string) error {
	now := time.Now()
	job.Status = JobStatusCancelled
	job.Message = message
	job.CompletedAt = &now
	return q.store.UpdateJob(job)
}

// Ready reports whether the queue accepts jobs
func (q *JobQueue) Ready(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return ErrQueueStopped
	}
	return nil
}

// Submit validates a batch, stores it as pending and queues it
func (q *JobQueue) Submit(ctx context.Context, req JobRequest) (*Job, error) {
	if len(req.Items) == 0 {
		return nil, apierrors.ErrValidation("items", "at least one item is required")
	}
	if q.cfg.MaxBatchSize > 0 && len(req.Items) > q.cfg.MaxBatchSize {
		return nil, apierrors.ErrBatchTooLarge.WithDetails(map[string]int{"max": q.cfg.MaxBatchSize, "got": len(req.Items)})
	}
	for i, item := range req.Items {
		if _, err := item.Kind(); err != nil {
			return nil, apierrors.ErrValidation(fmt.Sprintf("items[%d]", i), err.Error())
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return nil, apierrors.ErrServiceUnavailable
	}

	job := &Job{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Status:    JobStatusPending,
		Total:     len(req.Items),
		TraceID:   infrastructure.GetTraceID(infrastructure.EnsureTraceID(ctx)),
		CreatedAt: time.Now(),
		Message:   "Job queued",
		Request:   &req,
	}

	if err := q.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	select {
	case q.jobs <- job.ID:
	default:
		job.Status = JobStatusFailed
		job.Error = "job queue is full"
		now := time.Now()
		job.CompletedAt = &now
		if err := q.store.UpdateJob(job); err != nil {
			q.logger.Error("failed to update rejected job", slog.String("error", err.Error()))
		}
		return nil, apierrors.ErrQueueFull
	}

	q.metrics.RecordJobSubmitted(ctx, job.Total)
	q.logger.InfoContext(ctx, "job enqueued",
		slog.String("job_id", job.ID),
		slog.Int("items", job.Total))

	return job.Summary(), nil
}

// GetJob retrieves a job by ID
func (q *JobQueue) GetJob(id string) (*Job, error) {
	return q.store.GetJob(id)
}

// ListJobs returns job summaries matching the filter
func (q *JobQueue) ListJobs(filter JobFilter) ([]*Job, error) {
	return q.store.ListJobs(filter)
}

// CancelJob cancels a pending or running job
func (q *JobQueue) CancelJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if cancel, ok := q.active[id]; ok {
		cancel()
		q.logger.Info("running job cancellation requested", slog.String("job_id", id))
		return nil
	}

	job, err := q.store.GetJob(id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return apierrors.ErrJobFinished.WithDetails(map[string]string{"status": string(job.Status)})
	}

	q.logger.Info("pending job cancelled", slog.String("job_id", id))
	return q.markCancelled(job, "Job cancelled before start")
}

// QueueStats is a point-in-time view of the queue
type QueueStats struct {
	Workers  int               `json:"workers"`
	Queued   int               `json:"queued"`
	Capacity int               `json:"capacity"`
	Active   int               `json:"active"`
	Running  bool              `json:"running"`
	ByStatus map[JobStatus]int `json:"by_status,omitempty"`
}

// Stats returns queue statistics
func (q *JobQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return QueueStats{
		Workers:  q.cfg.Workers,
		Queued:   len(q.jobs),
		Capacity: cap(q.jobs),
		Active:   len(q.active),
		Running:  q.running,
		ByStatus: q.store.CountByStatus(),
	}
}

// worker processes jobs from the queue
func (q *JobQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()

	logger := q.logger.With(slog.Int("worker_id", workerID))
	logger.Debug("worker started")

	for {
		// shutdown wins over queued work; drainPending cancels the rest
		select {
		case <-q.shutdown:
			logger.Debug("worker stopped by shutdown")
			return
		default:
		}

		select {
		case <-ctx.Done():
			logger.Debug("worker stopped by context")
			return
		case <-q.shutdown:
			logger.Debug("worker stopped by shutdown")
			return
		case id := <-q.jobs:
			q.processJob(ctx, id, logger)
		}
	}
}

// begin moves a pending job to running. It returns nil when the job was
// cancelled or removed while queued.
func (q *JobQueue) begin(ctx context.Context, id string) (*Job, context.Context, context.CancelFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(id)
	if err != nil || job.Status != JobStatusPending {
		return nil, nil, nil
	}

	jobCtx, cancel := context.WithCancel(ctx)
	if job.TraceID != "" {
		jobCtx = infrastructure.WithTraceID(jobCtx, job.TraceID)
	}

	now := time.Now()
	job.Status = JobStatusRunning
	job.StartedAt = &now
	job.Message = "Job started"
	job.Results = make([]ItemResult, 0, job.Total)
	if err := q.store.UpdateJob(job); err != nil {
		q.logger.Error("failed to update job status", slog.String("error", err.Error()))
	}

	q.active[id] = cancel
	return job, jobCtx, cancel
}

// finish stores the final state and releases the job
func (q *JobQueue) finish(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if cancel, ok := q.active[job.ID]; ok {
		cancel()
		delete(q.active, job.ID)
	}
	now := time.Now()
	job.CompletedAt = &now
	if err := q.store.UpdateJob(job); err != nil {
		q.logger.Error("failed to update job completion", slog.String("error", err.Error()))
	}
}

// processJob runs every item of a job. Item failures are recorded on the
// item; only a panic fails the whole job.
func (q *JobQueue) processJob(ctx context.Context, id string, logger *slog.Logger) {
	job, jobCtx, _ := q.begin(ctx, id)
	if job == nil {
		logger.Debug("skipping job no longer pending", slog.String("job_id", id))
		return
	}

	logger = infrastructure.LoggerWithContext(jobCtx, logger).With(slog.String("job_id", job.ID))
	logger.InfoContext(jobCtx, "processing job started", slog.Int("items", job.Total))
	q.metrics.RecordActiveJobChange(jobCtx, 1)

	defer func() {
		// Recover from any panics to prevent server crash
		if r := recover(); r != nil {
			logger.Error("job processing panicked", slog.Any("panic", r))
			job.Status = JobStatusFailed
			job.Error = fmt.Sprintf("job processing panicked: %v", r)
			job.Message = "Internal error occurred"
		}
		q.metrics.RecordActiveJobChange(context.WithoutCancel(jobCtx), -1)
		q.finish(job)
	}()

	cancelled := false
	for i, item := range job.Request.Items {
		if jobCtx.Err() != nil {
			cancelled = true
			break
		}

		result := runItem(jobCtx, q.calibrator, i, item)
		if result.Status == ItemStatusError && jobCtx.Err() != nil {
			// aborted mid-calibration
			result.Status = ItemStatusCancelled
			cancelled = true
		}

		job.Results = append(job.Results, result)
		job.Processed++
		switch {
		case result.Status != ItemStatusOK:
			job.Failed++
			logger.WarnContext(jobCtx, "batch item failed",
				slog.Int("index", i),
				slog.String("code", result.Code),
				slog.String("error", result.Error))
		case !result.Converged:
			job.NonConverged++
		}
		job.Progress = job.Processed * 100 / job.Total
		job.Message = fmt.Sprintf("Processed %d/%d", job.Processed, job.Total)

		if err := q.store.UpdateJob(job); err != nil {
			logger.Error("failed to update job progress", slog.String("error", err.Error()))
		}
	}

	if cancelled {
		job.Status = JobStatusCancelled
		job.Message = fmt.Sprintf("Job cancelled after %d/%d items", job.Processed, job.Total)
	} else {
		job.Status = JobStatusCompleted
		job.Message = fmt.Sprintf("Job completed: %d ok, %d failed, %d not converged",
			job.Processed-job.Failed, job.Failed, job.NonConverged)
	}

	logger.InfoContext(jobCtx, "processing job finished",
		slog.String("status", string(job.Status)),
		slog.Int("processed", job.Processed),
		slog.Int("failed", job.Failed),
		slog.Int("non_converged", job.NonConverged))
}

// janitor drops finished jobs older than the retention period
func (q *JobQueue) janitor(ctx context.Context) {
	defer q.wg.Done()

	interval := q.cfg.Retention / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.shutdown:
			return
		case <-ticker.C:
			deleted, err := q.store.CleanupOldJobs(q.cfg.Retention)
			if err != nil {
				q.logger.Error("job cleanup failed", slog.String("error", err.Error()))
				continue
			}
			if deleted > 0 {
				q.logger.Info("expired jobs removed", slog.Int("count", deleted))
			}
		}
	}
}
