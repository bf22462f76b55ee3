package merton

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"
)

// TimeSeriesConfig configures a TimeSeriesCalibrator. Zero fields take the
// package defaults.
type TimeSeriesConfig struct {
	Tolerance     float64
	MaxIterations int
	// Workers bounds the per-observation fan-out inside one iteration.
	// Values below two run the inversions sequentially.
	Workers   int
	Minimizer Minimizer
	CDF       CDF
	Logger    *slog.Logger
}

// DefaultTimeSeriesConfig returns the standard configuration.
func DefaultTimeSeriesConfig() TimeSeriesConfig {
	return TimeSeriesConfig{
		Tolerance:     DefaultTolerance,
		MaxIterations: DefaultSeriesMaxIterations,
		Workers:       1,
		Minimizer:     DefaultNelderMead(),
		CDF:           ClosedForm{},
	}
}

// TimeSeriesCalibrator recovers an asset value path and a single asset
// volatility from an equity value history by fixed-point iteration.
type TimeSeriesCalibrator struct {
	tolerance     float64
	maxIterations int
	workers       int
	minimizer     Minimizer
	cdf           CDF
	logger        *slog.Logger
}

// NewTimeSeriesCalibrator creates a calibrator from cfg.
func NewTimeSeriesCalibrator(cfg TimeSeriesConfig) *TimeSeriesCalibrator {
	c := &TimeSeriesCalibrator{
		tolerance:     cfg.Tolerance,
		maxIterations: cfg.MaxIterations,
		workers:       cfg.Workers,
		minimizer:     cfg.Minimizer,
		cdf:           cfg.CDF,
		logger:        cfg.Logger,
	}
	if c.tolerance <= 0 {
		c.tolerance = DefaultTolerance
	}
	if c.maxIterations <= 0 {
		c.maxIterations = DefaultSeriesMaxIterations
	}
	if c.workers < 1 {
		c.workers = 1
	}
	if c.minimizer == nil {
		c.minimizer = DefaultNelderMead()
	}
	if c.cdf == nil {
		c.cdf = ClosedForm{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// CalibrateTimeSeries calibrates a series with the default configuration.
func CalibrateTimeSeries(ctx context.Context, equities []float64, debt, rate, horizon float64) (TimeSeriesResult, error) {
	calibrator := NewTimeSeriesCalibrator(DefaultTimeSeriesConfig())
	return calibrator.Calibrate(ctx, FirmTimeSeries{
		Equities: equities,
		Debt:     debt,
		Rate:     rate,
		Horizon:  horizon,
	})
}

// Calibrate iterates until the squared change of the asset volatility between
// two iterations drops below the tolerance or the iteration cap is reached.
// Default probabilities are computed for every observation either way.
func (c *TimeSeriesCalibrator) Calibrate(ctx context.Context, series FirmTimeSeries) (TimeSeriesResult, error) {
	if err := series.Validate(); err != nil {
		return TimeSeriesResult{Status: StatusInitialized}, err
	}

	pricer, err := NewPricer(series.Debt, series.Rate, series.Horizon, c.cdf)
	if err != nil {
		return TimeSeriesResult{Status: StatusInitialized}, err
	}

	equities := append([]float64(nil), series.Equities...)
	equityVol, err := ReturnVolatility(equities)
	if err != nil {
		return TimeSeriesResult{Status: StatusInitialized}, err
	}
	if !(equityVol > 0) {
		return TimeSeriesResult{Status: StatusInitialized}, &InputError{
			Field:   "equities",
			Message: "series has zero return volatility",
			Value:   equityVol,
		}
	}

	assets := make([]float64, len(equities))
	for i, e := range equities {
		assets[i] = e + series.Debt
	}
	assetVol, err := ReturnVolatility(assets)
	if err != nil {
		return TimeSeriesResult{Status: StatusInitialized}, err
	}

	c.logger.InfoContext(ctx, "starting time-series calibration",
		slog.Int("observations", len(equities)),
		slog.Float64("equity_vol", equityVol),
		slog.Float64("initial_asset_vol", assetVol),
		slog.Float64("debt", series.Debt),
		slog.Int("workers", c.workers))

	result := TimeSeriesResult{
		EquityVol: equityVol,
		Eval:      math.Inf(1),
		Status:    StatusIterating,
	}

	for result.Status == StatusIterating {
		if result.Iterations >= c.maxIterations {
			result.Status = StatusCapped
			break
		}

		select {
		case <-ctx.Done():
			result.Assets = assets
			result.AssetVol = assetVol
			return result, ctx.Err()
		default:
		}

		next, err := c.updateAssets(ctx, pricer, equities, assets, equityVol, assetVol)
		if err != nil {
			result.Assets = assets
			result.AssetVol = assetVol
			return result, fmt.Errorf("iteration %d: %w", result.Iterations+1, err)
		}

		newVol, err := ReturnVolatility(next)
		if err != nil {
			return result, fmt.Errorf("iteration %d: %w", result.Iterations+1, err)
		}

		diff := newVol - assetVol
		result.Eval = diff * diff
		result.Iterations++
		assets = next
		assetVol = newVol

		if c.logger.Enabled(ctx, slog.LevelDebug) {
			c.logger.DebugContext(ctx, "time-series iteration",
				slog.Int("iteration", result.Iterations),
				slog.Float64("asset_vol", assetVol),
				slog.Float64("eval", result.Eval))
		}

		if result.Eval < c.tolerance {
			result.Status = StatusConverged
		}
	}

	result.Assets = assets
	result.AssetVol = assetVol
	result.Converged = result.Status == StatusConverged

	result.DefaultProbs = make([]float64, len(assets))
	result.DistancesToDefault = make([]float64, len(assets))
	for i, a := range assets {
		dd, err := pricer.DistanceToDefault(a, assetVol)
		if err != nil {
			return result, fmt.Errorf("default probability at %d: %w", i, err)
		}
		pd, err := pricer.DefaultProbability(a, assetVol)
		if err != nil {
			return result, fmt.Errorf("default probability at %d: %w", i, err)
		}
		result.DistancesToDefault[i] = dd
		result.DefaultProbs[i] = pd
	}

	if result.Status == StatusCapped {
		c.logger.WarnContext(ctx, "time-series calibration hit iteration cap",
			slog.Int("iterations", result.Iterations),
			slog.Float64("eval", result.Eval))
	}
	c.logger.InfoContext(ctx, "time-series calibration completed",
		slog.String("status", string(result.Status)),
		slog.Int("iterations", result.Iterations),
		slog.Float64("asset_vol", result.AssetVol),
		slog.Float64("latest_default_probability", result.LatestDefaultProbability()))

	return result, nil
}

// updateAssets inverts every observation's asset value from the volatility
// equation under assetVol. The inversions are independent; with more than one
// worker they run on a bounded pool and the call returns once all are done.
func (c *TimeSeriesCalibrator) updateAssets(ctx context.Context, pricer *Pricer, equities, assets []float64, equityVol, assetVol float64) ([]float64, error) {
	next := make([]float64, len(assets))

	if c.workers < 2 {
		for i := range assets {
			a, err := c.invert(pricer, equities[i], assets[i], equityVol, assetVol)
			if err != nil {
				return nil, fmt.Errorf("observation %d: %w", i, err)
			}
			next[i] = a
		}
		return next, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i := range assets {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a, err := c.invert(pricer, equities[i], assets[i], equityVol, assetVol)
			if err != nil {
				return fmt.Errorf("observation %d: %w", i, err)
			}
			next[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return next, nil
}

// invert finds the asset value whose implied equity volatility under assetVol
// matches equityVol, seeded at the current asset value.
func (c *TimeSeriesCalibrator) invert(pricer *Pricer, equity, asset, equityVol, assetVol float64) (float64, error) {
	a, err := c.minimizer.Minimize(func(candidate float64) float64 {
		implied, err := pricer.EquityVol(candidate, assetVol, equity)
		if err != nil {
			return math.Inf(1)
		}
		diff := equityVol - implied
		return diff * diff
	}, asset)
	if err != nil {
		return 0, err
	}
	if !positiveFinite(a) {
		return 0, domainError("asset inversion", "asset", a)
	}
	return a, nil
}
