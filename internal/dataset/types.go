package dataset

import (
	"time"

	"mertoncli/internal/merton"
)

// Column names expected in the source tables
const (
	ColCode         = "ccode"
	ColDate         = "date"
	ColClose        = "close"
	ColIssuedShares = "all_issued_stock"
	ColDebt         = "dept_with_interest"
	ColTotalAssets  = "total_asset"
)

// Sheet names read from a workbook
const (
	PricesSheet       = "prices"
	FundamentalsSheet = "fundamentals"
)

// PriceRow is one daily close for a firm
type PriceRow struct {
	Code  string
	Date  time.Time
	Close float64
}

// Fundamentals is the balance-sheet snapshot used for calibration
type Fundamentals struct {
	Code         string
	IssuedShares float64
	Debt         float64
	TotalAssets  float64
}

// FirmSeries is the calibration-ready market cap history of one firm
type FirmSeries struct {
	Code         string      `json:"code"`
	Dates        []time.Time `json:"dates"`
	MarketCaps   []float64   `json:"market_caps"`
	Debt         float64     `json:"debt"`
	BookAssets   float64     `json:"book_assets"`
	IssuedShares float64     `json:"issued_shares"`
}

// Len returns the number of observations
func (s FirmSeries) Len() int {
	return len(s.MarketCaps)
}

// TimeSeries converts the series to time-series calibration input
func (s FirmSeries) TimeSeries(rate, horizon float64) merton.FirmTimeSeries {
	return merton.FirmTimeSeries{
		Equities: append([]float64(nil), s.MarketCaps...),
		Debt:     s.Debt,
		Rate:     rate,
		Horizon:  horizon,
	}
}

// Snapshot converts the series to single-point calibration input: the latest
// market cap and the realised volatility of market cap returns over the window.
func (s FirmSeries) Snapshot(rate, horizon float64) (merton.FirmSnapshot, error) {
	vol, err := merton.ReturnVolatility(s.MarketCaps)
	if err != nil {
		return merton.FirmSnapshot{}, err
	}
	return merton.FirmSnapshot{
		Equity:    s.MarketCaps[len(s.MarketCaps)-1],
		EquityVol: vol,
		Debt:      s.Debt,
		Rate:      rate,
		Horizon:   horizon,
	}, nil
}
