package merton

import (
	"math"
)

// Calibration defaults.
const (
	DefaultTolerance           = 1e-8
	DefaultMaxIterations       = 100000
	DefaultSeriesMaxIterations = 1000

	// MinSeriesLength is the shortest equity series that yields a return.
	MinSeriesLength = 2
)

// Status is the lifecycle state of a calibration.
type Status string

const (
	StatusInitialized Status = "initialized"
	StatusIterating   Status = "iterating"
	StatusConverged   Status = "converged"
	StatusCapped      Status = "capped"
)

// FirmSnapshot is one observation of a firm used by single-point calibration.
type FirmSnapshot struct {
	Equity    float64 `json:"equity"`
	EquityVol float64 `json:"equity_vol"`
	Debt      float64 `json:"debt"`
	Rate      float64 `json:"rate"`
	Horizon   float64 `json:"horizon"`
}

// Validate checks the snapshot before calibration.
func (s FirmSnapshot) Validate() error {
	checks := []struct {
		field string
		value float64
	}{
		{"equity", s.Equity},
		{"equity_vol", s.EquityVol},
		{"debt", s.Debt},
		{"horizon", s.Horizon},
	}
	for _, c := range checks {
		if !positiveFinite(c.value) {
			return &InputError{Field: c.field, Message: "must be positive and finite", Value: c.value}
		}
	}
	if !isFinite(s.Rate) {
		return &InputError{Field: "rate", Message: "must be finite", Value: s.Rate}
	}
	return nil
}

// FirmTimeSeries is a chronological equity value history of one firm with a
// constant debt level.
type FirmTimeSeries struct {
	Equities []float64 `json:"equities"`
	Debt     float64   `json:"debt"`
	Rate     float64   `json:"rate"`
	Horizon  float64   `json:"horizon"`
}

// Validate checks the series before calibration.
func (ts FirmTimeSeries) Validate() error {
	if len(ts.Equities) < MinSeriesLength {
		return &InputError{
			Field:   "equities",
			Message: "at least two observations are required",
			Value:   len(ts.Equities),
		}
	}
	for i, e := range ts.Equities {
		if !positiveFinite(e) {
			return &InputError{
				Field:   "equities",
				Message: "observations must be positive and finite",
				Value:   map[string]interface{}{"index": i, "value": e},
			}
		}
	}
	if !positiveFinite(ts.Debt) {
		return &InputError{Field: "debt", Message: "must be positive and finite", Value: ts.Debt}
	}
	if !positiveFinite(ts.Horizon) {
		return &InputError{Field: "horizon", Message: "must be positive and finite", Value: ts.Horizon}
	}
	if !isFinite(ts.Rate) {
		return &InputError{Field: "rate", Message: "must be finite", Value: ts.Rate}
	}
	return nil
}

// SinglePointResult is the outcome of a single-point calibration.
type SinglePointResult struct {
	Asset              float64 `json:"asset"`
	AssetVol           float64 `json:"asset_vol"`
	Residual           float64 `json:"residual"`
	Iterations         int     `json:"iterations"`
	Converged          bool    `json:"converged"`
	Status             Status  `json:"status"`
	DefaultProbability float64 `json:"default_probability"`
	DistanceToDefault  float64 `json:"distance_to_default"`
}

// TimeSeriesResult is the outcome of a time-series calibration.
type TimeSeriesResult struct {
	Assets             []float64 `json:"assets"`
	AssetVol           float64   `json:"asset_vol"`
	EquityVol          float64   `json:"equity_vol"`
	Eval               float64   `json:"eval"`
	Iterations         int       `json:"iterations"`
	Converged          bool      `json:"converged"`
	Status             Status    `json:"status"`
	DefaultProbs       []float64 `json:"default_probs"`
	DistancesToDefault []float64 `json:"distances_to_default"`
}

// LatestDefaultProbability returns the default probability of the most
// recent observation, or NaN for an empty result.
func (r TimeSeriesResult) LatestDefaultProbability() float64 {
	if len(r.DefaultProbs) == 0 {
		return math.NaN()
	}
	return r.DefaultProbs[len(r.DefaultProbs)-1]
}
