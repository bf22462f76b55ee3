package operations

import (
	"context"
	"fmt"
	"time"

	"mertoncli/internal/services"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is final
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Item kinds
const (
	KindSingle     = "single"
	KindTimeSeries = "timeseries"
	KindDataset    = "dataset"
)

// JobItem is one firm of a batch. Exactly one request must be set.
type JobItem struct {
	Single     *services.SinglePointRequest `json:"single,omitempty"`
	TimeSeries *services.TimeSeriesRequest  `json:"timeseries,omitempty"`
	Dataset    *services.DatasetRequest     `json:"dataset,omitempty"`
}

// Kind returns which request the item carries
func (it JobItem) Kind() (string, error) {
	var kinds []string
	if it.Single != nil {
		kinds = append(kinds, KindSingle)
	}
	if it.TimeSeries != nil {
		kinds = append(kinds, KindTimeSeries)
	}
	if it.Dataset != nil {
		kinds = append(kinds, KindDataset)
	}
	if len(kinds) != 1 {
		return "", fmt.Errorf("exactly one of single, timeseries or dataset is required, got %d", len(kinds))
	}
	return kinds[0], nil
}

// Code returns the firm code carried by the item's request
func (it JobItem) Code() string {
	switch {
	case it.Single != nil:
		return it.Single.Code
	case it.TimeSeries != nil:
		return it.TimeSeries.Code
	case it.Dataset != nil:
		return it.Dataset.Code
	}
	return ""
}

// JobRequest is a batch of firms to calibrate asynchronously
type JobRequest struct {
	Name  string    `json:"name,omitempty" validate:"max=128"`
	Items []JobItem `json:"items" validate:"required,min=1"`
}

// ItemStatus is the outcome of one batch item
type ItemStatus string

const (
	ItemStatusOK        ItemStatus = "ok"
	ItemStatusError     ItemStatus = "error"
	ItemStatusCancelled ItemStatus = "cancelled"
)

// ItemResult is the outcome of one firm. Non-convergence is an ok item with
// Converged=false.
type ItemResult struct {
	Index      int                           `json:"index"`
	Code       string                        `json:"code,omitempty"`
	Kind       string                        `json:"kind"`
	Status     ItemStatus                    `json:"status"`
	Converged  bool                          `json:"converged"`
	Error      string                        `json:"error,omitempty"`
	Single     *services.SinglePointResponse `json:"single,omitempty"`
	TimeSeries *services.TimeSeriesResponse  `json:"timeseries,omitempty"`
	Dataset    *services.DatasetResponse     `json:"dataset,omitempty"`
}

// Job represents an async calibration batch
type Job struct {
	ID           string       `json:"id"`
	Name         string       `json:"name,omitempty"`
	Status       JobStatus    `json:"status"`
	Progress     int          `json:"progress"`
	Message      string       `json:"message,omitempty"`
	Error        string       `json:"error,omitempty"`
	Total        int          `json:"total"`
	Processed    int          `json:"processed"`
	Failed       int          `json:"failed"`
	NonConverged int          `json:"non_converged"`
	TraceID      string       `json:"trace_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	Results      []ItemResult `json:"results,omitempty"`
	Request      *JobRequest  `json:"-"`
}

// Clone returns a copy that shares no mutable state with j
func (j *Job) Clone() *Job {
	c := *j
	if j.Results != nil {
		c.Results = append([]ItemResult(nil), j.Results...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Summary returns the job without per-item results
func (j *Job) Summary() *Job {
	c := j.Clone()
	c.Results = nil
	return c
}

// JobFilter for querying jobs
type JobFilter struct {
	Status JobStatus
	Since  time.Time
	Limit  int
}

// JobStore interface for job persistence
type JobStore interface {
	CreateJob(job *Job) error
	GetJob(id string) (*Job, error)
	UpdateJob(job *Job) error
	ListJobs(filter JobFilter) ([]*Job, error)
	CleanupOldJobs(olderThan time.Duration) (int, error)
	CountByStatus() map[JobStatus]int
}

// Calibrator runs the calibrations of a batch
type Calibrator interface {
	CalibrateSingle(ctx context.Context, req services.SinglePointRequest) (*services.SinglePointResponse, error)
	CalibrateTimeSeries(ctx context.Context, req services.TimeSeriesRequest) (*services.TimeSeriesResponse, error)
	CalibrateDataset(ctx context.Context, req services.DatasetRequest) (*services.DatasetResponse, error)
}

var _ Calibrator = (*services.CalibrationService)(nil)

// runItem calibrates one item with c
func runItem(ctx context.Context, c Calibrator, index int, item JobItem) ItemResult {
	kind, err := item.Kind()
	result := ItemResult{Index: index, Code: item.Code(), Kind: kind}
	if err != nil {
		result.Status = ItemStatusError
		result.Error = err.Error()
		return result
	}

	switch kind {
	case KindSingle:
		var resp *services.SinglePointResponse
		if resp, err = c.CalibrateSingle(ctx, *item.Single); err == nil {
			result.Single = resp
			result.Converged = resp.Result.Converged
		}
	case KindTimeSeries:
		var resp *services.TimeSeriesResponse
		if resp, err = c.CalibrateTimeSeries(ctx, *item.TimeSeries); err == nil {
			result.TimeSeries = resp
			result.Converged = resp.Result.Converged
		}
	case KindDataset:
		var resp *services.DatasetResponse
		if resp, err = c.CalibrateDataset(ctx, *item.Dataset); err == nil {
			result.Dataset = resp
			result.Converged = datasetConverged(resp)
		}
	}

	if err != nil {
		result.Status = ItemStatusError
		result.Error = err.Error()
		return result
	}
	result.Status = ItemStatusOK
	return result
}

func datasetConverged(resp *services.DatasetResponse) bool {
	switch {
	case resp.Single != nil:
		return resp.Single.Result.Converged
	case resp.TimeSeries != nil:
		return resp.TimeSeries.Result.Converged
	}
	return false
}

