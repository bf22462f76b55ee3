package http

import (
	"context"

	"mertoncli/internal/files"
	"mertoncli/internal/operations"
	"mertoncli/internal/services"
)

// CalibrationService runs synchronous calibrations
type CalibrationService interface {
	CalibrateSingle(ctx context.Context, req services.SinglePointRequest) (*services.SinglePointResponse, error)
	CalibrateTimeSeries(ctx context.Context, req services.TimeSeriesRequest) (*services.TimeSeriesResponse, error)
	CalibrateDataset(ctx context.Context, req services.DatasetRequest) (*services.DatasetResponse, error)
}

// JobService runs calibration batches asynchronously
type JobService interface {
	Submit(ctx context.Context, req operations.JobRequest) (*operations.Job, error)
	GetJob(id string) (*operations.Job, error)
	ListJobs(filter operations.JobFilter) ([]*operations.Job, error)
	CancelJob(id string) error
	Stats() operations.QueueStats
}

// HealthReporter answers the probe endpoints
type HealthReporter interface {
	HealthCheck(ctx context.Context) services.HealthStatus
	ReadinessCheck(ctx context.Context) services.HealthStatus
	LivenessCheck(ctx context.Context) services.HealthStatus
	Version() services.VersionInfo
}

// FileCatalog lists dataset inputs and generated reports
type FileCatalog interface {
	ListDatasets() ([]files.FileInfo, error)
	ListReports() ([]files.FileInfo, error)
	Report(name string) (files.FileInfo, error)
}

var (
	_ CalibrationService = (*services.CalibrationService)(nil)
	_ JobService         = (*operations.JobQueue)(nil)
	_ FileCatalog        = (*files.Discovery)(nil)
	_ HealthReporter     = (*services.HealthService)(nil)
)
