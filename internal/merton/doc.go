// Package merton implements structural credit-risk calibration under the
// Black-Scholes-Merton model, where a firm's equity is priced as a European
// call option on its assets struck at the face value of its debt.
//
// Asset value and asset volatility cannot be observed directly. This package
// recovers them from what the market does show: the value of equity and,
// depending on the procedure, either an equity volatility estimate or the
// equity value history. The calibrated state yields a distance to default
// and a probability of default for each observation.
//
// # Core Components
//
//   - normal.go: cumulative normal evaluators (closed form and adaptive quadrature)
//   - pricing.go: d1/d2 terms, theoretical equity value and volatility, default probability
//   - minimize.go: derivative-free univariate minimizer used by both calibrators
//   - single.go: single-point joint calibration by alternating minimization
//   - timeseries.go: Vasicek-Kealhofer style fixed-point calibration on a value series
//   - stats.go: period-over-period returns and return volatility
//   - errors.go: domain and input error types
//
// # Single-Point Calibration
//
// Given one equity value E and one equity volatility σE, the calibrator solves
//
//	E  = A·N(d1) − D·e^{−rT}·N(d2)
//	σE = A·σA·N(d1) / E
//
// for the asset value A and asset volatility σA. The two equations are coupled
// and have no closed form, so each iteration minimizes the volatility residual
// over σA with A held fixed and then the price residual over A with σA held
// fixed. The loop stops when the combined squared residual drops below the
// tolerance or when the iteration cap is exceeded:
//
//	result, err := merton.CalibrateSinglePoint(ctx, 27648346000, 0.107645819, 33801000000, 0.01, 1)
//	if err != nil {
//	    return err
//	}
//	if !result.Converged {
//	    // best estimate is still reported
//	}
//
// # Time-Series Calibration
//
// Given a chronological series of equity values, the equity volatility is
// measured once from the series. Asset volatility is then found by fixed-point
// iteration: assume σA, invert every observation's asset value from the
// volatility equation, measure the volatility realized by the resulting asset
// path, and repeat until assumed and realized volatility agree:
//
//	calibrator := merton.NewTimeSeriesCalibrator(merton.DefaultTimeSeriesConfig())
//	result, err := calibrator.Calibrate(ctx, merton.FirmTimeSeries{
//	    Equities: caps,
//	    Debt:     debt,
//	    Rate:     0.01,
//	    Horizon:  1,
//	})
//
// The per-observation inversions inside one iteration are independent. Setting
// TimeSeriesConfig.Workers above one fans them out over a bounded pool and
// waits for all of them before the volatility is re-measured.
//
// # Errors
//
// Evaluating a primitive outside its domain (non-positive asset, volatility,
// horizon or debt) returns a *DomainError. Bad calibration inputs (a series
// shorter than two observations, non-positive values) return an *InputError
// before any iteration starts. Failing to converge is not an error: results
// carry Converged=false together with the best estimate found.
package merton
