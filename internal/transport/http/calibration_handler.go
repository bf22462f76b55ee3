package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "mertoncli/internal/errors"
	"mertoncli/internal/services"
)

// CalibrationHandler serves synchronous calibrations
type CalibrationHandler struct {
	service CalibrationService
	errors  *apierrors.ErrorHandler
	logger  *slog.Logger
}

// NewCalibrationHandler creates a new calibration handler
func NewCalibrationHandler(service CalibrationService, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *CalibrationHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if errorHandler == nil {
		errorHandler = apierrors.NewErrorHandler(logger, false)
	}
	return &CalibrationHandler{
		service: service,
		errors:  errorHandler,
		logger:  logger.With(slog.String("handler", "calibration")),
	}
}

// Routes sets up the calibration routes
func (h *CalibrationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/single", h.Single)
	r.Post("/timeseries", h.TimeSeries)
	r.Post("/dataset", h.Dataset)
	return r
}

// Single handles POST /api/calibrations/single
func (h *CalibrationHandler) Single(w http.ResponseWriter, r *http.Request) {
	var req services.SinglePointRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errors.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	annotate(r, services.ModeSingle, req.Code)

	resp, err := h.service.CalibrateSingle(r.Context(), req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// TimeSeries handles POST /api/calibrations/timeseries
func (h *CalibrationHandler) TimeSeries(w http.ResponseWriter, r *http.Request) {
	var req services.TimeSeriesRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errors.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	annotate(r, services.ModeTimeSeries, req.Code)

	resp, err := h.service.CalibrateTimeSeries(r.Context(), req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	h.logger.DebugContext(r.Context(), "time-series calibration served",
		slog.String("code", resp.Code),
		slog.Int("observations", resp.Observations),
		slog.Bool("converged", resp.Result.Converged))
	render.JSON(w, r, resp)
}

// Dataset handles POST /api/calibrations/dataset
func (h *CalibrationHandler) Dataset(w http.ResponseWriter, r *http.Request) {
	var req services.DatasetRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.errors.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	annotate(r, req.Mode, req.Code)

	resp, err := h.service.CalibrateDataset(r.Context(), req)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// annotate tags the request span with the calibration being served
func annotate(r *http.Request, mode, code string) {
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("calibration.mode", mode))
	if code != "" {
		span.SetAttributes(attribute.String("calibration.code", code))
	}
}
