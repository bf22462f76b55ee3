package services

import (
	"mertoncli/internal/dataset"
	"mertoncli/internal/merton"
)

// Calibration modes
const (
	ModeSingle     = "single"
	ModeTimeSeries = "timeseries"
)

// CalibrationOptions overrides the configured engine settings for one request
type CalibrationOptions struct {
	Tolerance     float64 `json:"tolerance,omitempty" validate:"omitempty,gt=0,lt=1"`
	MaxIterations int     `json:"max_iterations,omitempty" validate:"omitempty,min=1,max=1000000"`
	CDFMethod     string  `json:"cdf_method,omitempty" validate:"omitempty,oneof=closed_form quadrature"`
}

// SinglePointRequest asks for a single-point calibration. Rate and Horizon
// fall back to the configured defaults when omitted.
type SinglePointRequest struct {
	Code      string              `json:"code,omitempty" validate:"max=64"`
	Equity    float64             `json:"equity" validate:"gt=0"`
	EquityVol float64             `json:"equity_vol" validate:"gt=0"`
	Debt      float64             `json:"debt" validate:"gt=0"`
	Rate      *float64            `json:"rate,omitempty" validate:"omitempty,gte=-1,lte=1"`
	Horizon   *float64            `json:"horizon,omitempty" validate:"omitempty,gt=0"`
	Options   *CalibrationOptions `json:"options,omitempty"`
}

// TimeSeriesRequest asks for a time-series calibration
type TimeSeriesRequest struct {
	Code     string              `json:"code,omitempty" validate:"max=64"`
	Equities []float64           `json:"equities" validate:"required,min=2,max=20000,dive,gt=0"`
	Debt     float64             `json:"debt" validate:"gt=0"`
	Rate     *float64            `json:"rate,omitempty" validate:"omitempty,gte=-1,lte=1"`
	Horizon  *float64            `json:"horizon,omitempty" validate:"omitempty,gt=0"`
	Options  *CalibrationOptions `json:"options,omitempty"`
}

// DatasetRequest calibrates a firm straight from dataset files under the
// data directory. Either Workbook or both Prices and Fundamentals are needed.
type DatasetRequest struct {
	Code         string              `json:"code" validate:"required,max=64"`
	Mode         string              `json:"mode" validate:"required,oneof=single timeseries"`
	Window       int                 `json:"window,omitempty" validate:"omitempty,min=3,max=20000"`
	Prices       string              `json:"prices,omitempty" validate:"required_without=Workbook"`
	Fundamentals string              `json:"fundamentals,omitempty" validate:"required_without=Workbook"`
	Workbook     string              `json:"workbook,omitempty"`
	Rate         *float64            `json:"rate,omitempty" validate:"omitempty,gte=-1,lte=1"`
	Horizon      *float64            `json:"horizon,omitempty" validate:"omitempty,gt=0"`
	Options      *CalibrationOptions `json:"options,omitempty"`
}

// SinglePointResponse is a single-point calibration with the inputs it used
type SinglePointResponse struct {
	Code       string                   `json:"code,omitempty"`
	Input      merton.FirmSnapshot      `json:"input"`
	Result     merton.SinglePointResult `json:"result"`
	DurationMS float64                  `json:"duration_ms"`
}

// TimeSeriesResponse is a time-series calibration with the inputs it used
type TimeSeriesResponse struct {
	Code                     string                  `json:"code,omitempty"`
	Observations             int                     `json:"observations"`
	Debt                     float64                 `json:"debt"`
	Rate                     float64                 `json:"rate"`
	Horizon                  float64                 `json:"horizon"`
	Result                   merton.TimeSeriesResult `json:"result"`
	LatestDefaultProbability float64                 `json:"latest_default_probability"`
	DurationMS               float64                 `json:"duration_ms"`
}

// DatasetResponse is a calibration of a firm loaded from dataset files.
// Exactly one of Single and TimeSeries is set.
type DatasetResponse struct {
	Code       string               `json:"code"`
	Mode       string               `json:"mode"`
	Series     *dataset.FirmSeries  `json:"series"`
	Single     *SinglePointResponse `json:"single,omitempty"`
	TimeSeries *TimeSeriesResponse  `json:"timeseries,omitempty"`
}
