package http

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "mertoncli/internal/errors"
	"mertoncli/internal/files"
)

func setupFilesRouter() (chi.Router, *MockFileCatalog) {
	catalog := &MockFileCatalog{}
	handler := NewFilesHandler(catalog, newErrorHandler(), discardLogger())
	router := newTestRouter(func(r chi.Router) {
		r.Mount("/api/datasets", handler.DatasetRoutes())
		r.Mount("/api/reports", handler.ReportRoutes())
	})
	return router, catalog
}

func TestFilesHandler_List(t *testing.T) {
	older := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	tests := []struct {
		name       string
		path       string
		method     string
		found      []files.FileInfo
		err        error
		wantStatus int
		wantCount  float64
		wantLatest string
	}{
		{
			name:   "datasets",
			path:   "/api/datasets",
			method: "ListDatasets",
			found: []files.FileInfo{
				{Name: "stock_db.csv", Kind: files.KindCSV, ModTime: older},
				{Name: "firm.xlsx", Kind: files.KindWorkbook, ModTime: newer},
			},
			wantStatus: http.StatusOK,
			wantCount:  2,
			wantLatest: "firm.xlsx",
		},
		{
			name:       "no reports",
			path:       "/api/reports",
			method:     "ListReports",
			found:      nil,
			wantStatus: http.StatusOK,
			wantCount:  0,
		},
		{
			name:       "storage failure",
			path:       "/api/reports",
			method:     "ListReports",
			err:        apierrors.NewStorageError("failed to list reports", os.ErrPermission),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, catalog := setupFilesRouter()
			if tt.err != nil {
				catalog.On(tt.method).Return(nil, tt.err)
			} else {
				catalog.On(tt.method).Return(tt.found, nil)
			}

			w := doJSON(t, router, http.MethodGet, tt.path, nil)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.err == nil {
				body := decodeBody(t, w)
				assert.Equal(t, tt.wantCount, body["count"])
				assert.NotNil(t, body["files"])
				if tt.wantLatest != "" {
					assert.Equal(t, tt.wantLatest, body["latest"].(map[string]interface{})["name"])
				} else {
					assert.NotContains(t, body, "latest")
				}
			}
			catalog.AssertExpectations(t)
		})
	}
}

func TestFilesHandler_DownloadReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a_merton.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,th_asset\n2026-01-02,12.5\n"), 0644))

	router, catalog := setupFilesRouter()
	catalog.On("Report", "nested/a_merton.csv").Return(files.FileInfo{
		Name: "nested/a_merton.csv", Kind: files.KindCSV, Path: path, ModTime: time.Now(),
	}, nil)
	catalog.On("Report", "missing.csv").Return(files.FileInfo{}, apierrors.NotFoundError("report"))

	w := doJSON(t, router, http.MethodGet, "/api/reports/nested/a_merton.csv", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="a_merton.csv"`)
	assert.Equal(t, "date,th_asset\n2026-01-02,12.5\n", w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/api/reports/missing.csv", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	catalog.AssertExpectations(t)
}
