package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mertoncli/internal/config"
	"mertoncli/internal/dataset"
	apierrors "mertoncli/internal/errors"
	"mertoncli/internal/infrastructure"
	"mertoncli/internal/merton"
)

// TracerName names the tracer used for calibration spans
const TracerName = "mertoncli.calibration"

// CalibrationService validates calibration requests, runs the engine and
// records telemetry for every run.
type CalibrationService struct {
	cfg      config.CalibrationConfig
	paths    *config.Paths
	validate *validator.Validate
	tracer   trace.Tracer
	metrics  *infrastructure.CalibrationMetrics
	logger   *slog.Logger
}

// NewCalibrationService creates a calibration service. A nil tracer uses the
// global provider; nil metrics disable recording.
func NewCalibrationService(cfg config.CalibrationConfig, paths *config.Paths, tracer trace.Tracer, metrics *infrastructure.CalibrationMetrics, logger *slog.Logger) *CalibrationService {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}

	logger.Info("CalibrationService initialized",
		slog.String("cdf_method", cfg.CDFMethod),
		slog.Float64("tolerance", cfg.Tolerance),
		slog.Int("workers", cfg.Workers))

	return &CalibrationService{
		cfg:      cfg,
		paths:    paths,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		tracer:   tracer,
		metrics:  metrics,
		logger:   infrastructure.WithComponent(logger, "calibration_service"),
	}
}

// Validate checks a request against its struct tags
func (s *CalibrationService) Validate(req interface{}) error {
	return s.validate.Struct(req)
}

// CalibrateSingle runs a single-point calibration
func (s *CalibrationService) CalibrateSingle(ctx context.Context, req SinglePointRequest) (*SinglePointResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	snap := merton.FirmSnapshot{
		Equity:    req.Equity,
		EquityVol: req.EquityVol,
		Debt:      req.Debt,
		Rate:      s.rate(req.Rate),
		Horizon:   s.horizon(req.Horizon),
	}
	return s.runSingle(ctx, req.Code, snap, req.Options)
}

// CalibrateTimeSeries runs a time-series calibration
func (s *CalibrationService) CalibrateTimeSeries(ctx context.Context, req TimeSeriesRequest) (*TimeSeriesResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	series := merton.FirmTimeSeries{
		Equities: append([]float64(nil), req.Equities...),
		Debt:     req.Debt,
		Rate:     s.rate(req.Rate),
		Horizon:  s.horizon(req.Horizon),
	}
	return s.runTimeSeries(ctx, req.Code, series, req.Options)
}

// CalibrateDataset loads a firm from dataset files and calibrates it
func (s *CalibrationService) CalibrateDataset(ctx context.Context, req DatasetRequest) (*DatasetResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	source, err := s.source(req)
	if err != nil {
		return nil, err
	}

	window := req.Window
	if window == 0 {
		window = s.cfg.Window
	}

	ctx, span := s.tracer.Start(ctx, "calibration.dataset.load",
		trace.WithAttributes(
			attribute.String("firm.code", req.Code),
			attribute.Int("dataset.window", window),
		))
	series, err := source.Load(req.Code, window)
	if err != nil {
		infrastructure.FailSpan(span, err)
		span.End()
		return nil, err
	}
	span.SetAttributes(attribute.Int("dataset.observations", series.Len()))
	span.End()

	rate, horizon := s.rate(req.Rate), s.horizon(req.Horizon)
	resp := &DatasetResponse{Code: series.Code, Mode: req.Mode, Series: &series}

	switch req.Mode {
	case ModeSingle:
		snap, err := series.Snapshot(rate, horizon)
		if err != nil {
			return nil, err
		}
		resp.Single, err = s.runSingle(ctx, series.Code, snap, req.Options)
		if err != nil {
			return nil, err
		}
	case ModeTimeSeries:
		resp.TimeSeries, err = s.runTimeSeries(ctx, series.Code, series.TimeSeries(rate, horizon), req.Options)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, req.Mode)
	}
	return resp, nil
}

func (s *CalibrationService) runSingle(ctx context.Context, code string, snap merton.FirmSnapshot, opts *CalibrationOptions) (*SinglePointResponse, error) {
	ctx, span := s.tracer.Start(ctx, "calibration.single",
		trace.WithAttributes(
			attribute.String("firm.code", code),
			attribute.Float64("firm.equity", snap.Equity),
			attribute.Float64("firm.debt", snap.Debt),
		))
	defer span.End()

	logger := infrastructure.ForFirm(ctx, s.logger, code)
	calibrator := merton.NewSinglePointCalibrator(s.singleConfig(opts, logger))

	start := time.Now()
	result, err := calibrator.Calibrate(ctx, snap)
	elapsed := time.Since(start)
	s.metrics.RecordCalibration(ctx, ModeSingle, result.Iterations, result.Converged, elapsed, err)

	if err != nil {
		infrastructure.FailSpan(span, err)
		logger.WarnContext(ctx, "single-point calibration failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", elapsed))
		return nil, classifyFailure(ModeSingle, code, err)
	}

	span.SetAttributes(
		attribute.Int("calibration.iterations", result.Iterations),
		attribute.Bool("calibration.converged", result.Converged),
		attribute.Float64("calibration.default_probability", result.DefaultProbability),
	)
	logger.InfoContext(ctx, "single-point calibration completed",
		slog.Int("iterations", result.Iterations),
		slog.Bool("converged", result.Converged),
		slog.Float64("asset", result.Asset),
		slog.Float64("asset_vol", result.AssetVol),
		slog.Float64("default_probability", result.DefaultProbability),
		slog.Duration("duration", elapsed))

	return &SinglePointResponse{
		Code:       code,
		Input:      snap,
		Result:     result,
		DurationMS: float64(elapsed.Microseconds()) / 1000,
	}, nil
}

func (s *CalibrationService) runTimeSeries(ctx context.Context, code string, series merton.FirmTimeSeries, opts *CalibrationOptions) (*TimeSeriesResponse, error) {
	ctx, span := s.tracer.Start(ctx, "calibration.timeseries",
		trace.WithAttributes(
			attribute.String("firm.code", code),
			attribute.Int("series.observations", len(series.Equities)),
			attribute.Float64("firm.debt", series.Debt),
		))
	defer span.End()

	logger := infrastructure.ForFirm(ctx, s.logger, code)
	calibrator := merton.NewTimeSeriesCalibrator(s.timeSeriesConfig(opts, logger))

	start := time.Now()
	result, err := calibrator.Calibrate(ctx, series)
	elapsed := time.Since(start)
	s.metrics.RecordCalibration(ctx, ModeTimeSeries, result.Iterations, result.Converged, elapsed, err)

	if err != nil {
		infrastructure.FailSpan(span, err)
		logger.WarnContext(ctx, "time-series calibration failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", elapsed))
		return nil, classifyFailure(ModeTimeSeries, code, err)
	}

	latest := result.LatestDefaultProbability()
	span.SetAttributes(
		attribute.Int("calibration.iterations", result.Iterations),
		attribute.Bool("calibration.converged", result.Converged),
		attribute.Float64("calibration.asset_vol", result.AssetVol),
	)
	logger.InfoContext(ctx, "time-series calibration completed",
		slog.Int("observations", len(series.Equities)),
		slog.Int("iterations", result.Iterations),
		slog.Bool("converged", result.Converged),
		slog.Float64("asset_vol", result.AssetVol),
		slog.Float64("latest_default_probability", latest),
		slog.Duration("duration", elapsed))

	return &TimeSeriesResponse{
		Code:                     code,
		Observations:             len(series.Equities),
		Debt:                     series.Debt,
		Rate:                     series.Rate,
		Horizon:                  series.Horizon,
		Result:                   result,
		LatestDefaultProbability: latest,
		DurationMS:               float64(elapsed.Microseconds()) / 1000,
	}, nil
}

func (s *CalibrationService) singleConfig(opts *CalibrationOptions, logger *slog.Logger) merton.SinglePointConfig {
	cfg := merton.SinglePointConfig{
		Tolerance:     s.cfg.Tolerance,
		MaxIterations: s.cfg.MaxIterations,
		Minimizer:     s.minimizer(),
		CDF:           s.cdf(""),
		Logger:        logger,
	}
	if opts != nil {
		if opts.Tolerance > 0 {
			cfg.Tolerance = opts.Tolerance
		}
		if opts.MaxIterations > 0 {
			cfg.MaxIterations = opts.MaxIterations
		}
		cfg.CDF = s.cdf(opts.CDFMethod)
	}
	return cfg
}

func (s *CalibrationService) timeSeriesConfig(opts *CalibrationOptions, logger *slog.Logger) merton.TimeSeriesConfig {
	cfg := merton.TimeSeriesConfig{
		Tolerance:     s.cfg.Tolerance,
		MaxIterations: s.cfg.SeriesMaxIterations,
		Workers:       s.cfg.Workers,
		Minimizer:     s.minimizer(),
		CDF:           s.cdf(""),
		Logger:        logger,
	}
	if opts != nil {
		if opts.Tolerance > 0 {
			cfg.Tolerance = opts.Tolerance
		}
		if opts.MaxIterations > 0 {
			cfg.MaxIterations = opts.MaxIterations
		}
		cfg.CDF = s.cdf(opts.CDFMethod)
	}
	return cfg
}

func (s *CalibrationService) minimizer() merton.Minimizer {
	return &merton.NelderMead{
		StepTolerance:   s.cfg.StepTolerance,
		StallIterations: s.cfg.StallIterations,
		MaxIterations:   s.cfg.MinimizerIterations,
	}
}

// cdf picks the evaluator; an empty override uses the configured method
func (s *CalibrationService) cdf(method string) merton.CDF {
	if method == "" {
		method = s.cfg.CDFMethod
	}
	if method == config.CDFQuadrature {
		return merton.NewQuadrature(s.cfg.QuadratureTolerance)
	}
	return merton.ClosedForm{}
}

func (s *CalibrationService) rate(r *float64) float64 {
	if r == nil {
		return s.cfg.DefaultRate
	}
	return *r
}

func (s *CalibrationService) horizon(h *float64) float64 {
	if h == nil {
		return s.cfg.DefaultHorizon
	}
	return *h
}

// source resolves dataset file names under the data directory
func (s *CalibrationService) source(req DatasetRequest) (dataset.Source, error) {
	resolve := func(field, name string) (string, error) {
		if name == "" {
			return "", nil
		}
		if !filepath.IsLocal(name) {
			return "", &merton.InputError{Field: field, Message: "must be a path inside the data directory", Value: name}
		}
		if s.paths == nil {
			return name, nil
		}
		return s.paths.GetDataPath(name), nil
	}

	var (
		src dataset.Source
		err error
	)
	if src.WorkbookPath, err = resolve("workbook", req.Workbook); err != nil {
		return src, err
	}
	if src.WorkbookPath != "" {
		return src, nil
	}
	if src.PricesPath, err = resolve("prices", req.Prices); err != nil {
		return src, err
	}
	if src.FundamentalsPath, err = resolve("fundamentals", req.Fundamentals); err != nil {
		return src, err
	}
	return src, nil
}

// classifyFailure passes input, domain and cancellation errors through and
// wraps any other engine failure with the firm it belongs to
func classifyFailure(mode, code string, err error) error {
	if errors.Is(err, merton.ErrInput) || errors.Is(err, merton.ErrDomain) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apierrors.NewCalibrationError(mode+" calibration failed", err).
		WithContext("code", code).
		WithContext("mode", mode)
}
