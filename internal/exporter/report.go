package exporter

import (
	"fmt"
	"log/slog"
	"time"

	"mertoncli/internal/config"
	apierrors "mertoncli/internal/errors"
	"mertoncli/internal/merton"
)

// TimeSeriesHeaders are the columns of a time-series report
var TimeSeriesHeaders = []string{"date", "th_asset", "asset", "vola_a", "mktcap", "debt", "pd", "dd"}

// SinglePointHeaders are the columns of a single-point report
var SinglePointHeaders = []string{
	"code", "equity", "equity_vol", "debt", "rate", "horizon",
	"asset", "asset_vol", "pd", "dd", "iterations", "converged", "status", "residual",
}

// TimeSeriesRow is one observation of a calibrated firm
type TimeSeriesRow struct {
	Date               time.Time `json:"date"`
	TheoreticalAsset   float64   `json:"th_asset"`
	BookAsset          float64   `json:"asset"`
	AssetVol           float64   `json:"vola_a"`
	MarketCap          float64   `json:"mktcap"`
	Debt               float64   `json:"debt"`
	DefaultProbability float64   `json:"pd"`
	DistanceToDefault  float64   `json:"dd"`
}

// TimeSeriesReport is the tabular form of a time-series calibration
type TimeSeriesReport struct {
	Code      string          `json:"code"`
	Converged bool            `json:"converged"`
	Rows      []TimeSeriesRow `json:"rows"`
}

// SeriesInput is the market data side of a time-series report
type SeriesInput struct {
	Code       string
	Dates      []time.Time
	MarketCaps []float64
	Debt       float64
	BookAssets float64
}

// NewTimeSeriesReport joins market data with its calibration result.
// Dates are optional; when present there must be one per market cap.
func NewTimeSeriesReport(in SeriesInput, result merton.TimeSeriesResult) (*TimeSeriesReport, error) {
	n := len(in.MarketCaps)
	if n == 0 {
		return nil, apierrors.NewAppValidationError("no observations to report")
	}
	lengths := []struct {
		name string
		len  int
	}{
		{"assets", len(result.Assets)},
		{"default_probs", len(result.DefaultProbs)},
		{"distances_to_default", len(result.DistancesToDefault)},
	}
	if len(in.Dates) > 0 {
		lengths = append(lengths, struct {
			name string
			len  int
		}{"dates", len(in.Dates)})
	}
	for _, l := range lengths {
		if l.len != n {
			return nil, apierrors.NewAppValidationError(
				fmt.Sprintf("%s has %d entries, expected %d", l.name, l.len, n)).
				WithContext("field", l.name)
		}
	}

	rows := make([]TimeSeriesRow, n)
	for i := range rows {
		row := TimeSeriesRow{
			TheoreticalAsset:   result.Assets[i],
			BookAsset:          in.BookAssets,
			AssetVol:           result.AssetVol,
			MarketCap:          in.MarketCaps[i],
			Debt:               in.Debt,
			DefaultProbability: result.DefaultProbs[i],
			DistanceToDefault:  result.DistancesToDefault[i],
		}
		if len(in.Dates) > 0 {
			row.Date = in.Dates[i]
		}
		rows[i] = row
	}

	return &TimeSeriesReport{Code: in.Code, Converged: result.Converged, Rows: rows}, nil
}

// Records renders the report rows as CSV records
func (r *TimeSeriesReport) Records() [][]string {
	records := make([][]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		records = append(records, []string{
			formatDate(row.Date),
			formatAmount(row.TheoreticalAsset),
			formatAmount(row.BookAsset),
			formatRatio(row.AssetVol),
			formatAmount(row.MarketCap),
			formatAmount(row.Debt),
			formatRatio(row.DefaultProbability),
			formatRatio(row.DistanceToDefault),
		})
	}
	return records
}

// SinglePointRecord is one single-point calibration with its inputs
type SinglePointRecord struct {
	Code     string
	Snapshot merton.FirmSnapshot
	Result   merton.SinglePointResult
}

func (r SinglePointRecord) csv() []string {
	return []string{
		r.Code,
		formatAmount(r.Snapshot.Equity),
		formatRatio(r.Snapshot.EquityVol),
		formatAmount(r.Snapshot.Debt),
		formatRatio(r.Snapshot.Rate),
		formatRatio(r.Snapshot.Horizon),
		formatAmount(r.Result.Asset),
		formatRatio(r.Result.AssetVol),
		formatRatio(r.Result.DefaultProbability),
		formatRatio(r.Result.DistanceToDefault),
		formatInt(r.Result.Iterations),
		formatBool(r.Result.Converged),
		string(r.Result.Status),
		formatRatio(r.Result.Residual),
	}
}

// WriteTimeSeriesCSV writes a time-series report to filePath
func (w *CSVWriter) WriteTimeSeriesCSV(filePath string, report *TimeSeriesReport) error {
	if report == nil {
		return apierrors.NewAppValidationError("nil report")
	}
	if err := w.WriteTable(filePath, TimeSeriesHeaders, report.Records()); err != nil {
		return apierrors.NewStorageError("failed to write time-series report", err).
			WithContext("path", filePath)
	}
	w.logger.Info("Time-series report written",
		slog.String("code", report.Code),
		slog.Int("rows", len(report.Rows)),
		slog.Bool("converged", report.Converged))
	return nil
}

// WriteSinglePointCSV writes one row per single-point calibration. With
// appendRows set the records go after the existing ones and no header is
// written; a missing file is created with a header.
func (w *CSVWriter) WriteSinglePointCSV(filePath string, records []SinglePointRecord, appendRows bool) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, r.csv())
	}

	var err error
	if appendRows && config.FileExists(w.ResolvePath(filePath)) {
		err = w.AppendRows(filePath, rows)
	} else {
		err = w.WriteTable(filePath, SinglePointHeaders, rows)
	}
	if err != nil {
		return apierrors.NewStorageError("failed to write single-point report", err).
			WithContext("path", filePath)
	}
	return nil
}
