package http

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "mertoncli/internal/errors"
	"mertoncli/internal/files"
)

var reportContentTypes = map[files.Kind]string{
	files.KindCSV:      "text/csv; charset=utf-8",
	files.KindWorkbook: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// FileListResponse is a listing of dataset or report files
type FileListResponse struct {
	Files  []files.FileInfo `json:"files"`
	Count  int              `json:"count"`
	Latest *files.FileInfo  `json:"latest,omitempty"`
}

// FilesHandler serves the dataset and report catalog
type FilesHandler struct {
	catalog      FileCatalog
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewFilesHandler creates a new files handler
func NewFilesHandler(catalog FileCatalog, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *FilesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if errorHandler == nil {
		errorHandler = apierrors.NewErrorHandler(logger, false)
	}
	return &FilesHandler{
		catalog:      catalog,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "files")),
	}
}

// DatasetRoutes serves GET / with the dataset listing
func (h *FilesHandler) DatasetRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list(h.catalog.ListDatasets))
	return r
}

// ReportRoutes serves the report listing and downloads
func (h *FilesHandler) ReportRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list(h.catalog.ListReports))
	r.Get("/*", h.DownloadReport)
	return r
}

func (h *FilesHandler) list(source func() ([]files.FileInfo, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		found, err := source()
		if err != nil {
			h.errorHandler.HandleError(w, r, err)
			return
		}
		if found == nil {
			found = []files.FileInfo{}
		}

		resp := FileListResponse{Files: found, Count: len(found)}
		if latest, ok := files.GetLatestFile(found); ok {
			resp.Latest = &latest
		}
		render.JSON(w, r, resp)
	}
}

// DownloadReport handles GET /api/reports/{name}
func (h *FilesHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	info, err := h.catalog.Report(chi.URLParam(r, "*"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	f, err := os.Open(info.Path)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	defer f.Close()

	h.logger.InfoContext(r.Context(), "serving report",
		slog.String("name", info.Name),
		slog.Int64("size", info.Size))

	w.Header().Set("Content-Type", reportContentTypes[info.Kind])
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(info.Path)+`"`)
	http.ServeContent(w, r, info.Name, info.ModTime, f)
}
