package merton

import (
	"context"
	"fmt"
	"log/slog"
	"math"
)

// SinglePointConfig configures a SinglePointCalibrator. Zero fields take the
// package defaults.
type SinglePointConfig struct {
	Tolerance     float64
	MaxIterations int
	Minimizer     Minimizer
	CDF           CDF
	Logger        *slog.Logger
}

// DefaultSinglePointConfig returns the standard configuration.
func DefaultSinglePointConfig() SinglePointConfig {
	return SinglePointConfig{
		Tolerance:     DefaultTolerance,
		MaxIterations: DefaultMaxIterations,
		Minimizer:     DefaultNelderMead(),
		CDF:           ClosedForm{},
	}
}

// SinglePointCalibrator jointly recovers asset value and asset volatility
// from one equity value and one equity volatility.
type SinglePointCalibrator struct {
	tolerance     float64
	maxIterations int
	minimizer     Minimizer
	cdf           CDF
	logger        *slog.Logger
}

// singlePointState is the calibration state threaded through the loop.
type singlePointState struct {
	asset      float64
	assetVol   float64
	residual   float64
	iterations int
}

// NewSinglePointCalibrator creates a calibrator from cfg.
func NewSinglePointCalibrator(cfg SinglePointConfig) *SinglePointCalibrator {
	c := &SinglePointCalibrator{
		tolerance:     cfg.Tolerance,
		maxIterations: cfg.MaxIterations,
		minimizer:     cfg.Minimizer,
		cdf:           cfg.CDF,
		logger:        cfg.Logger,
	}
	if c.tolerance <= 0 {
		c.tolerance = DefaultTolerance
	}
	if c.maxIterations <= 0 {
		c.maxIterations = DefaultMaxIterations
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

// CalibrateSinglePoint calibrates one snapshot with the default configuration.
func CalibrateSinglePoint(ctx context.Context, equity, equityVol, debt, rate, horizon float64) (SinglePointResult, error) {
	calibrator := NewSinglePointCalibrator(DefaultSinglePointConfig())
	return calibrator.Calibrate(ctx, FirmSnapshot{
		Equity:    equity,
		EquityVol: equityVol,
		Debt:      debt,
		Rate:      rate,
		Horizon:   horizon,
	})
}

// Calibrate runs alternating minimization until the combined squared residual
// of the price and volatility equations drops below the tolerance, or the
// iteration counter exceeds the cap. A capped run returns its best estimate
// with Converged=false and a nil error.
func (c *SinglePointCalibrator) Calibrate(ctx context.Context, snap FirmSnapshot) (SinglePointResult, error) {
	if err := snap.Validate(); err != nil {
		return SinglePointResult{Status: StatusInitialized}, err
	}

	pricer, err := NewPricer(snap.Debt, snap.Rate, snap.Horizon, c.cdf)
	if err != nil {
		return SinglePointResult{Status: StatusInitialized}, err
	}

	c.logger.InfoContext(ctx, "starting single-point calibration",
		slog.Float64("equity", snap.Equity),
		slog.Float64("equity_vol", snap.EquityVol),
		slog.Float64("debt", snap.Debt),
		slog.Float64("rate", snap.Rate),
		slog.Float64("horizon", snap.Horizon))

	state := singlePointState{
		asset:    snap.Equity + snap.Debt,
		assetVol: snap.EquityVol,
		residual: math.Inf(1),
	}
	state.residual, err = c.residual(pricer, snap, state)
	if err != nil {
		return SinglePointResult{Status: StatusInitialized}, err
	}

	status := StatusIterating
	for {
		if state.residual < c.tolerance {
			status = StatusConverged
			break
		}
		if state.iterations > c.maxIterations {
			status = StatusCapped
			break
		}

		select {
		case <-ctx.Done():
			return c.result(pricer, state, StatusIterating), ctx.Err()
		default:
		}

		state, err = c.iterate(pricer, snap, state)
		if err != nil {
			return c.result(pricer, state, StatusIterating), fmt.Errorf("iteration %d: %w", state.iterations, err)
		}

		if c.logger.Enabled(ctx, slog.LevelDebug) {
			c.logger.DebugContext(ctx, "single-point iteration",
				slog.Int("iteration", state.iterations),
				slog.Float64("asset", state.asset),
				slog.Float64("asset_vol", state.assetVol),
				slog.Float64("residual", state.residual))
		}
	}

	result := c.result(pricer, state, status)
	if status == StatusCapped {
		c.logger.WarnContext(ctx, "single-point calibration hit iteration cap",
			slog.Int("iterations", state.iterations),
			slog.Float64("residual", state.residual))
	}
	c.logger.InfoContext(ctx, "single-point calibration completed",
		slog.String("status", string(status)),
		slog.Int("iterations", result.Iterations),
		slog.Float64("asset", result.Asset),
		slog.Float64("asset_vol", result.AssetVol),
		slog.Float64("default_probability", result.DefaultProbability))

	return result, nil
}

// iterate performs one volatility sub-step, one asset sub-step and refreshes
// the residual.
func (c *SinglePointCalibrator) iterate(pricer *Pricer, snap FirmSnapshot, state singlePointState) (singlePointState, error) {
	next := state

	vol, err := c.minimizer.Minimize(func(sigma float64) float64 {
		implied, err := pricer.EquityVol(next.asset, sigma, snap.Equity)
		if err != nil {
			return math.Inf(1)
		}
		diff := snap.EquityVol - implied
		return diff * diff
	}, state.assetVol)
	if err != nil {
		return state, fmt.Errorf("asset volatility step: %w", err)
	}
	if !positiveFinite(vol) {
		return state, domainError("asset volatility step", "asset_vol", vol)
	}
	next.assetVol = vol

	asset, err := c.minimizer.Minimize(func(a float64) float64 {
		value, err := pricer.EquityValue(a, next.assetVol)
		if err != nil {
			return math.Inf(1)
		}
		diff := snap.Equity - value
		return diff * diff
	}, state.asset)
	if err != nil {
		return state, fmt.Errorf("asset value step: %w", err)
	}
	if !positiveFinite(asset) {
		return state, domainError("asset value step", "asset", asset)
	}
	next.asset = asset

	next.residual, err = c.residual(pricer, snap, next)
	if err != nil {
		return state, err
	}
	next.iterations++
	return next, nil
}

// residual returns (E − EquityValue)² + (σE − EquityVol)².
func (c *SinglePointCalibrator) residual(pricer *Pricer, snap FirmSnapshot, state singlePointState) (float64, error) {
	value, err := pricer.EquityValue(state.asset, state.assetVol)
	if err != nil {
		return 0, err
	}
	vol, err := pricer.EquityVol(state.asset, state.assetVol, snap.Equity)
	if err != nil {
		return 0, err
	}
	dv := snap.Equity - value
	ds := snap.EquityVol - vol
	return dv*dv + ds*ds, nil
}

func (c *SinglePointCalibrator) result(pricer *Pricer, state singlePointState, status Status) SinglePointResult {
	result := SinglePointResult{
		Asset:      state.asset,
		AssetVol:   state.assetVol,
		Residual:   state.residual,
		Iterations: state.iterations,
		Converged:  status == StatusConverged,
		Status:     status,
	}
	if pd, err := pricer.DefaultProbability(state.asset, state.assetVol); err == nil {
		result.DefaultProbability = pd
	}
	if dd, err := pricer.DistanceToDefault(state.asset, state.assetVol); err == nil {
		result.DistanceToDefault = dd
	}
	return result
}
