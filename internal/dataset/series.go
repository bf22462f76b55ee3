package dataset

import (
	"fmt"
	"time"

	"mertoncli/internal/merton"
)

// BuildSeries derives the market cap series of one firm. Only the trailing
// window of price rows is used, and the most recent row within it is held
// out, so at most window-1 observations are returned.
func BuildSeries(prices []PriceRow, fundamentals Fundamentals, window int) (FirmSeries, error) {
	if window < merton.MinSeriesLength+1 {
		return FirmSeries{}, &merton.InputError{
			Field:   "window",
			Message: fmt.Sprintf("must be at least %d", merton.MinSeriesLength+1),
			Value:   window,
		}
	}
	if !(fundamentals.IssuedShares > 0) {
		return FirmSeries{}, &merton.InputError{Field: ColIssuedShares, Message: "must be positive", Value: fundamentals.IssuedShares}
	}
	if !(fundamentals.Debt > 0) {
		return FirmSeries{}, &merton.InputError{Field: ColDebt, Message: "must be positive", Value: fundamentals.Debt}
	}

	n := len(prices)
	start := n - window
	if start < 0 {
		start = 0
	}
	end := n - 1
	if end-start < merton.MinSeriesLength {
		return FirmSeries{}, &merton.InputError{
			Field:   "prices",
			Message: fmt.Sprintf("need at least %d price rows, have %d", merton.MinSeriesLength+1, n),
			Value:   n,
		}
	}

	rows := prices[start:end]
	series := FirmSeries{
		Code:         fundamentals.Code,
		Dates:        make([]time.Time, len(rows)),
		MarketCaps:   make([]float64, len(rows)),
		Debt:         fundamentals.Debt,
		BookAssets:   fundamentals.TotalAssets,
		IssuedShares: fundamentals.IssuedShares,
	}
	for i, row := range rows {
		series.Dates[i] = row.Date
		series.MarketCaps[i] = row.Close * fundamentals.IssuedShares
	}
	if series.Code == "" && len(rows) > 0 {
		series.Code = rows[0].Code
	}

	return series, nil
}

// Source names where a firm's tables live: either a workbook or a pair of CSV files
type Source struct {
	PricesPath       string
	FundamentalsPath string
	WorkbookPath     string
}

// Load reads both tables for code and builds its series
func (s Source) Load(code string, window int) (FirmSeries, error) {
	var (
		prices       []PriceRow
		fundamentals Fundamentals
		err          error
	)

	switch {
	case s.WorkbookPath != "":
		prices, fundamentals, err = LoadWorkbook(s.WorkbookPath, code)
	case s.PricesPath != "" && s.FundamentalsPath != "":
		prices, err = LoadPricesCSV(s.PricesPath, code)
		if err == nil {
			fundamentals, err = LoadFundamentalsCSV(s.FundamentalsPath, code)
		}
	default:
		return FirmSeries{}, &merton.InputError{Field: "source", Message: "a workbook or both CSV files are required"}
	}
	if err != nil {
		return FirmSeries{}, err
	}

	return BuildSeries(prices, fundamentals, window)
}
