package infrastructure

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestCalibrationStatus(t *testing.T) {
	assert.Equal(t, "converged", calibrationStatus(true, nil))
	assert.Equal(t, "capped", calibrationStatus(false, nil))
	assert.Equal(t, "error", calibrationStatus(true, assert.AnError))
}

func TestNewCalibrationMetrics_NoopMeter(t *testing.T) {
	metrics, err := NewCalibrationMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	assert.NotNil(t, metrics.JobsActive)
	assert.NotNil(t, metrics.Iterations)
	assert.NotNil(t, metrics.HTTPRequestDuration)
}

func TestCalibrationMetricsExposed(t *testing.T) {
	providers, err := InitializeOTel(nil, discardLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := NewCalibrationMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordCalibration(ctx, "single", 2, true, 3*time.Millisecond, nil)
	metrics.RecordCalibration(ctx, "timeseries", 1000, false, time.Second, nil)
	metrics.RecordCalibration(ctx, "single", 0, false, time.Millisecond, errors.New("bad input"))
	metrics.RecordHTTPRequest(ctx, http.MethodPost, "/api/v1/calibrations/single", http.StatusOK, 5*time.Millisecond)
	metrics.RecordJobSubmitted(ctx, 3)
	metrics.RecordActiveJobChange(ctx, 1)

	sm, err := NewSystemMetrics(providers.Meter)
	require.NoError(t, err)
	defer sm.Stop()

	server := httptest.NewServer(providers.PrometheusHTTP)
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	for _, name := range []string{
		"calibrations_total",
		"calibration_errors_total",
		"calibration_non_converged_total",
		"calibration_iterations",
		"http_requests_total",
		"calibration_jobs_active",
		"system_goroutines",
		"go_goroutines",
	} {
		assert.Contains(t, text, name)
	}
}

func TestCalibrationMetricsNilSafe(t *testing.T) {
	var metrics *CalibrationMetrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		metrics.RecordCalibration(ctx, "single", 1, true, time.Millisecond, nil)
		metrics.RecordHTTPRequest(ctx, http.MethodGet, "/health", http.StatusOK, time.Millisecond)
		metrics.RecordJobSubmitted(ctx, 1)
		metrics.RecordActiveJobChange(ctx, -1)
	})
}

func BenchmarkRecordCalibration(b *testing.B) {
	providers, err := InitializeOTel(nil, discardLogger())
	require.NoError(b, err)
	defer providers.Shutdown(context.Background())

	metrics, err := NewCalibrationMetrics(providers.Meter)
	require.NoError(b, err)

	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		metrics.RecordCalibration(ctx, "single", 2, true, time.Millisecond, nil)
	}
}
