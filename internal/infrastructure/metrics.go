package infrastructure

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CalibrationMetrics holds the application instruments. A nil
// *CalibrationMetrics is valid and records nothing.
type CalibrationMetrics struct {
	CalibrationsTotal   metric.Int64Counter
	CalibrationErrors   metric.Int64Counter
	NonConverged        metric.Int64Counter
	Iterations          metric.Int64Histogram
	Duration            metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	JobsSubmitted       metric.Int64Counter
	JobsActive          metric.Int64UpDownCounter
}

var iterationBuckets = []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000, 10000, 100000}

// NewCalibrationMetrics registers the instruments on meter
func NewCalibrationMetrics(meter metric.Meter) (*CalibrationMetrics, error) {
	m := &CalibrationMetrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.CalibrationsTotal, "calibrations_total", "Calibrations run"},
		{&m.CalibrationErrors, "calibration_errors_total", "Calibrations rejected or failed"},
		{&m.NonConverged, "calibration_non_converged_total", "Calibrations that hit their iteration cap"},
		{&m.HTTPRequestsTotal, "http_requests_total", "HTTP requests served"},
		{&m.JobsSubmitted, "calibration_jobs_submitted_total", "Batch calibration jobs submitted"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("instrument %s: %w", c.name, err)
		}
	}

	seconds := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&m.Duration, "calibration_duration_seconds", "Calibration wall time"},
		{&m.HTTPRequestDuration, "http_request_duration_seconds", "HTTP request latency"},
	}
	for _, h := range seconds {
		if *h.dst, err = meter.Float64Histogram(h.name, metric.WithDescription(h.desc), metric.WithUnit("s")); err != nil {
			return nil, fmt.Errorf("instrument %s: %w", h.name, err)
		}
	}

	if m.Iterations, err = meter.Int64Histogram("calibration_iterations",
		metric.WithDescription("Outer iterations used per calibration"),
		metric.WithExplicitBucketBoundaries(iterationBuckets...)); err != nil {
		return nil, fmt.Errorf("instrument calibration_iterations: %w", err)
	}
	if m.JobsActive, err = meter.Int64UpDownCounter("calibration_jobs_active",
		metric.WithDescription("Batch calibration jobs running")); err != nil {
		return nil, fmt.Errorf("instrument calibration_jobs_active: %w", err)
	}

	return m, nil
}

// calibrationStatus buckets an outcome for the status attribute
func calibrationStatus(converged bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case !converged:
		return "capped"
	default:
		return "converged"
	}
}

// RecordCalibration records one finished calibration; kind is the mode name
func (m *CalibrationMetrics) RecordCalibration(ctx context.Context, kind string, iterations int, converged bool, duration time.Duration, err error) {
	if m == nil {
		return
	}

	byKind := metric.WithAttributes(attribute.String("calibration.kind", kind))
	withStatus := metric.WithAttributes(
		attribute.String("calibration.kind", kind),
		attribute.String("status", calibrationStatus(converged, err)),
	)
	m.CalibrationsTotal.Add(ctx, 1, withStatus)
	m.Duration.Record(ctx, duration.Seconds(), withStatus)

	if err != nil {
		m.CalibrationErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("calibration.kind", kind),
			attribute.String("error.type", fmt.Sprintf("%T", err)),
		))
		return
	}
	m.Iterations.Record(ctx, int64(iterations), byKind)
	if !converged {
		m.NonConverged.Add(ctx, 1, byKind)
	}
}

// RecordHTTPRequest records one served request under its route pattern
func (m *CalibrationMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *CalibrationMetrics) RecordJobSubmitted(ctx context.Context, items int) {
	if m == nil {
		return
	}
	m.JobsSubmitted.Add(ctx, 1, metric.WithAttributes(attribute.Int("job.items", items)))
}

func (m *CalibrationMetrics) RecordActiveJobChange(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.JobsActive.Add(ctx, delta)
}
