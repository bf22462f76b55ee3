package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "mertoncli/internal/errors"
	"mertoncli/internal/files"
	"mertoncli/internal/middleware"
	"mertoncli/internal/operations"
	"mertoncli/internal/services"
)

// MockCalibrationService is a mock implementation of CalibrationService
type MockCalibrationService struct {
	mock.Mock
}

func (m *MockCalibrationService) CalibrateSingle(ctx context.Context, req services.SinglePointRequest) (*services.SinglePointResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SinglePointResponse), args.Error(1)
}

func (m *MockCalibrationService) CalibrateTimeSeries(ctx context.Context, req services.TimeSeriesRequest) (*services.TimeSeriesResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TimeSeriesResponse), args.Error(1)
}

func (m *MockCalibrationService) CalibrateDataset(ctx context.Context, req services.DatasetRequest) (*services.DatasetResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.DatasetResponse), args.Error(1)
}

// MockJobService is a mock implementation of JobService
type MockJobService struct {
	mock.Mock
}

func (m *MockJobService) Submit(ctx context.Context, req operations.JobRequest) (*operations.Job, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*operations.Job), args.Error(1)
}

func (m *MockJobService) GetJob(id string) (*operations.Job, error) {
	args := m.Called(id)
	if fn, ok := args.Get(0).(func(string) *operations.Job); ok {
		return fn(id), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*operations.Job), args.Error(1)
}

func (m *MockJobService) ListJobs(filter operations.JobFilter) ([]*operations.Job, error) {
	args := m.Called(filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*operations.Job), args.Error(1)
}

func (m *MockJobService) CancelJob(id string) error {
	return m.Called(id).Error(0)
}

func (m *MockJobService) Stats() operations.QueueStats {
	return m.Called().Get(0).(operations.QueueStats)
}

// MockFileCatalog is a mock implementation of FileCatalog
type MockFileCatalog struct {
	mock.Mock
}

func (m *MockFileCatalog) ListDatasets() ([]files.FileInfo, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]files.FileInfo), args.Error(1)
}

func (m *MockFileCatalog) ListReports() ([]files.FileInfo, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]files.FileInfo), args.Error(1)
}

func (m *MockFileCatalog) Report(name string) (files.FileInfo, error) {
	args := m.Called(name)
	return args.Get(0).(files.FileInfo), args.Error(1)
}

// MockHealthReporter is a mock implementation of HealthReporter
type MockHealthReporter struct {
	mock.Mock
}

func (m *MockHealthReporter) HealthCheck(ctx context.Context) services.HealthStatus {
	return m.Called(ctx).Get(0).(services.HealthStatus)
}

func (m *MockHealthReporter) ReadinessCheck(ctx context.Context) services.HealthStatus {
	return m.Called(ctx).Get(0).(services.HealthStatus)
}

func (m *MockHealthReporter) LivenessCheck(ctx context.Context) services.HealthStatus {
	return m.Called(ctx).Get(0).(services.HealthStatus)
}

func (m *MockHealthReporter) Version() services.VersionInfo {
	return m.Called().Get(0).(services.VersionInfo)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newErrorHandler() *apierrors.ErrorHandler {
	return apierrors.NewErrorHandler(discardLogger(), false)
}

// newTestRouter mounts a handler the way the application does
func newTestRouter(mount func(r chi.Router)) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	mount(r)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}
