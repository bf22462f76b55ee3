package operations

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "mertoncli/internal/errors"
	"mertoncli/internal/infrastructure"
	"mertoncli/internal/merton"
	"mertoncli/internal/services"
	"mertoncli/internal/shared/testutil"
)

type mockCalibrator struct {
	mock.Mock
}

func (m *mockCalibrator) CalibrateSingle(ctx context.Context, req services.SinglePointRequest) (*services.SinglePointResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*services.SinglePointResponse)
	return resp, args.Error(1)
}

func (m *mockCalibrator) CalibrateTimeSeries(ctx context.Context, req services.TimeSeriesRequest) (*services.TimeSeriesResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*services.TimeSeriesResponse)
	return resp, args.Error(1)
}

func (m *mockCalibrator) CalibrateDataset(ctx context.Context, req services.DatasetRequest) (*services.DatasetResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*services.DatasetResponse)
	return resp, args.Error(1)
}

// blockingCalibrator holds every single-point calibration until released or
// cancelled.
type blockingCalibrator struct {
	mockCalibrator
	release chan struct{}
	started atomic.Int32
}

func newBlockingCalibrator() *blockingCalibrator {
	return &blockingCalibrator{release: make(chan struct{})}
}

func (b *blockingCalibrator) CalibrateSingle(ctx context.Context, req services.SinglePointRequest) (*services.SinglePointResponse, error) {
	b.started.Add(1)
	select {
	case <-b.release:
		return &services.SinglePointResponse{Code: req.Code, Result: merton.SinglePointResult{Converged: true}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func singleItem(code string) JobItem {
	return JobItem{Single: &services.SinglePointRequest{Code: code, Equity: 3, EquityVol: 0.8, Debt: 10}}
}

func newTestQueue(t *testing.T, cfg QueueConfig, calibrator Calibrator) *JobQueue {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	q := NewJobQueue(cfg, NewMemoryJobStore(), calibrator, nil, logger)
	q.Start(context.Background())
	t.Cleanup(func() { _ = q.Stop(5 * time.Second) })
	return q
}

func waitForStatus(t *testing.T, q *JobQueue, id string, want JobStatus) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		var err error
		job, err = q.GetJob(id)
		return err == nil && job.Status == want
	}, 5*time.Second, 5*time.Millisecond, "job %s never reached %s", id, want)
	return job
}

func TestJobQueue_ProcessesBatch(t *testing.T) {
	calibrator := &mockCalibrator{}
	calibrator.On("CalibrateSingle", mock.Anything, mock.MatchedBy(func(r services.SinglePointRequest) bool { return r.Code == "OK" })).
		Return(&services.SinglePointResponse{Code: "OK", Result: merton.SinglePointResult{Converged: true}}, nil)
	calibrator.On("CalibrateSingle", mock.Anything, mock.MatchedBy(func(r services.SinglePointRequest) bool { return r.Code == "BAD" })).
		Return(nil, &merton.InputError{Field: "equity", Message: "must be positive"})
	calibrator.On("CalibrateTimeSeries", mock.Anything, mock.Anything).
		Return(&services.TimeSeriesResponse{Code: "SLOW", Result: merton.TimeSeriesResult{Converged: false, Status: merton.StatusCapped}}, nil)

	q := newTestQueue(t, QueueConfig{Workers: 2, QueueSize: 4, MaxBatchSize: 10}, calibrator)

	job, err := q.Submit(context.Background(), JobRequest{
		Name: "nightly",
		Items: []JobItem{
			singleItem("OK"),
			singleItem("BAD"),
			{TimeSeries: &services.TimeSeriesRequest{Code: "SLOW", Equities: []float64{1, 2}, Debt: 1}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, 3, job.Total)
	assert.NotEmpty(t, job.ID)

	done := waitForStatus(t, q, job.ID, JobStatusCompleted)
	assert.Equal(t, 3, done.Processed)
	assert.Equal(t, 1, done.Failed)
	assert.Equal(t, 1, done.NonConverged)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.CompletedAt)

	require.Len(t, done.Results, 3)
	assert.Equal(t, ItemStatusOK, done.Results[0].Status)
	assert.True(t, done.Results[0].Converged)
	assert.Equal(t, ItemStatusError, done.Results[1].Status)
	assert.Contains(t, done.Results[1].Error, "equity")
	assert.Equal(t, ItemStatusOK, done.Results[2].Status)
	assert.False(t, done.Results[2].Converged)
	assert.Equal(t, KindTimeSeries, done.Results[2].Kind)

	calibrator.AssertExpectations(t)
}

func TestJobQueue_PropagatesTraceID(t *testing.T) {
	calibrator := &mockCalibrator{}
	calibrator.On("CalibrateDataset", mock.MatchedBy(func(ctx context.Context) bool {
		return infrastructure.GetTraceID(ctx) == "trace-42"
	}), mock.Anything).Return(&services.DatasetResponse{Code: "X", Mode: services.ModeSingle}, nil)

	q := newTestQueue(t, QueueConfig{Workers: 1}, calibrator)

	ctx := infrastructure.WithTraceID(context.Background(), "trace-42")
	job, err := q.Submit(ctx, JobRequest{Items: []JobItem{{Dataset: &services.DatasetRequest{Code: "X", Mode: services.ModeSingle}}}})
	require.NoError(t, err)
	assert.Equal(t, "trace-42", job.TraceID)

	done := waitForStatus(t, q, job.ID, JobStatusCompleted)
	assert.Equal(t, ItemStatusOK, done.Results[0].Status)
	calibrator.AssertExpectations(t)
}

func TestJobQueue_SubmitValidation(t *testing.T) {
	q := newTestQueue(t, QueueConfig{Workers: 1, MaxBatchSize: 2}, &mockCalibrator{})

	tests := []struct {
		name     string
		req      JobRequest
		wantCode string
	}{
		{"empty", JobRequest{}, "VALIDATION_FAILED"},
		{"too large", JobRequest{Items: []JobItem{singleItem("a"), singleItem("b"), singleItem("c")}}, "BATCH_TOO_LARGE"},
		{"no request in item", JobRequest{Items: []JobItem{{}}}, "VALIDATION_FAILED"},
		{"two requests in item", JobRequest{Items: []JobItem{{
			Single:     &services.SinglePointRequest{},
			TimeSeries: &services.TimeSeriesRequest{},
		}}}, "VALIDATION_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := q.Submit(context.Background(), tt.req)
			require.Error(t, err)
			var apiErr *apierrors.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantCode, apiErr.ErrorCode)
		})
	}

	jobs, err := q.ListJobs(JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs, "rejected batches are not stored")
}

func TestJobQueue_NotRunning(t *testing.T) {
	q := NewJobQueue(QueueConfig{Workers: 1}, NewMemoryJobStore(), &mockCalibrator{}, nil, nil)

	assert.ErrorIs(t, q.Ready(context.Background()), ErrQueueStopped)
	_, err := q.Submit(context.Background(), JobRequest{Items: []JobItem{singleItem("a")}})
	assert.Equal(t, apierrors.ErrServiceUnavailable, err)

	q.Start(context.Background())
	assert.NoError(t, q.Ready(context.Background()))
	require.NoError(t, q.Stop(time.Second))
	assert.ErrorIs(t, q.Ready(context.Background()), ErrQueueStopped)
	assert.NoError(t, q.Stop(time.Second), "second stop is a no-op")
}

func TestJobQueue_QueueFullAndCancel(t *testing.T) {
	calibrator := newBlockingCalibrator()
	q := newTestQueue(t, QueueConfig{Workers: 1, QueueSize: 1}, calibrator)
	ctx := context.Background()

	first, err := q.Submit(ctx, JobRequest{Items: []JobItem{singleItem("a"), singleItem("b")}})
	require.NoError(t, err)
	waitForStatus(t, q, first.ID, JobStatusRunning)
	require.Eventually(t, func() bool { return calibrator.started.Load() == 1 }, 5*time.Second, 5*time.Millisecond)

	second, err := q.Submit(ctx, JobRequest{Items: []JobItem{singleItem("c")}})
	require.NoError(t, err)

	_, err = q.Submit(ctx, JobRequest{Items: []JobItem{singleItem("d")}})
	assert.Equal(t, apierrors.ErrQueueFull, err)

	stats := q.Stats()
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Queued)
	assert.Equal(t, 1, stats.ByStatus[JobStatusRunning])
	assert.Equal(t, 1, stats.ByStatus[JobStatusPending])

	// pending job
	require.NoError(t, q.CancelJob(second.ID))
	cancelled, err := q.GetJob(second.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, cancelled.Status)

	// running job
	require.NoError(t, q.CancelJob(first.ID))
	done := waitForStatus(t, q, first.ID, JobStatusCancelled)
	require.Len(t, done.Results, 1)
	assert.Equal(t, ItemStatusCancelled, done.Results[0].Status)
	assert.Equal(t, 1, done.Processed)

	// the cancelled pending job is skipped by the worker
	time.Sleep(20 * time.Millisecond)
	still, err := q.GetJob(second.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, still.Status)
	assert.Empty(t, still.Results)

	err = q.CancelJob(first.ID)
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "JOB_FINISHED", apiErr.ErrorCode)

	assert.ErrorIs(t, q.CancelJob("missing"), apierrors.ErrJobNotFound)
}

func TestJobQueue_StopWaitsForRunningJobs(t *testing.T) {
	calibrator := newBlockingCalibrator()
	logger, _ := testutil.NewTestLogger(t)
	q := NewJobQueue(QueueConfig{Workers: 1}, NewMemoryJobStore(), calibrator, nil, logger)
	q.Start(context.Background())

	job, err := q.Submit(context.Background(), JobRequest{Items: []JobItem{singleItem("a")}})
	require.NoError(t, err)
	waitForStatus(t, q, job.ID, JobStatusRunning)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(calibrator.release)
	}()
	require.NoError(t, q.Stop(5*time.Second))

	done, err := q.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, done.Status)
}

func TestJobQueue_StopTimeoutCancelsJobs(t *testing.T) {
	calibrator := newBlockingCalibrator()
	logger, _ := testutil.NewTestLogger(t)
	q := NewJobQueue(QueueConfig{Workers: 1}, NewMemoryJobStore(), calibrator, nil, logger)
	q.Start(context.Background())

	job, err := q.Submit(context.Background(), JobRequest{Items: []JobItem{singleItem("a")}})
	require.NoError(t, err)
	waitForStatus(t, q, job.ID, JobStatusRunning)

	assert.Error(t, q.Stop(10*time.Millisecond))

	done, err := q.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, done.Status)
}

func TestJobQueue_StopCancelsQueuedJobs(t *testing.T) {
	calibrator := newBlockingCalibrator()
	logger, logs := testutil.NewTestLogger(t)
	q := NewJobQueue(QueueConfig{Workers: 1, QueueSize: 4}, NewMemoryJobStore(), calibrator, nil, logger)
	q.Start(context.Background())

	running, err := q.Submit(context.Background(), JobRequest{Items: []JobItem{singleItem("a")}})
	require.NoError(t, err)
	waitForStatus(t, q, running.ID, JobStatusRunning)

	queued := make([]string, 0, 2)
	for _, code := range []string{"b", "c"} {
		job, err := q.Submit(context.Background(), JobRequest{Items: []JobItem{singleItem(code)}})
		require.NoError(t, err)
		queued = append(queued, job.ID)
	}

	assert.Error(t, q.Stop(10*time.Millisecond))

	for _, id := range queued {
		job, err := q.GetJob(id)
		require.NoError(t, err)
		assert.Equal(t, JobStatusCancelled, job.Status)
		assert.Equal(t, "Job cancelled by shutdown", job.Message)
		assert.NotNil(t, job.CompletedAt)
	}
	assert.Equal(t, 0, q.Stats().Queued)
	assert.Zero(t, q.Stats().ByStatus[JobStatusPending])
	assert.Equal(t, int32(1), calibrator.started.Load())
	testutil.AssertLogAttr(t, logs, "count", int64(2))
}

func TestJobQueue_PanicFailsJob(t *testing.T) {
	calibrator := &mockCalibrator{}
	calibrator.On("CalibrateSingle", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("boom")
	})

	q := newTestQueue(t, QueueConfig{Workers: 1}, calibrator)
	job, err := q.Submit(context.Background(), JobRequest{Items: []JobItem{singleItem("a")}})
	require.NoError(t, err)

	done := waitForStatus(t, q, job.ID, JobStatusFailed)
	assert.Contains(t, done.Error, "boom")
	assert.NotNil(t, done.CompletedAt)
	assert.NoError(t, q.Ready(context.Background()), "worker survives the panic")
}

func TestJobItem_Kind(t *testing.T) {
	kind, err := singleItem("a").Kind()
	require.NoError(t, err)
	assert.Equal(t, KindSingle, kind)
	assert.Equal(t, "a", singleItem("a").Code())

	_, err = JobItem{}.Kind()
	assert.Error(t, err)
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusRunning.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.True(t, JobStatusCancelled.Terminal())
}
