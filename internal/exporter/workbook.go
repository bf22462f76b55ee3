package exporter

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	apierrors "mertoncli/internal/errors"
)

// Workbook layout
const (
	ReportSheet = "report"
	ChartSheet  = "charts"
)

// WriteTimeSeriesWorkbook writes the report table to an xlsx workbook with a
// line chart of theoretical assets against debt and a default probability
// chart.
func (w *CSVWriter) WriteTimeSeriesWorkbook(filePath string, report *TimeSeriesReport) error {
	if report == nil || len(report.Rows) == 0 {
		return apierrors.NewAppValidationError("empty report")
	}
	fullPath := w.ResolvePath(filePath)

	f, err := buildWorkbook(report)
	if err != nil {
		return apierrors.NewStorageError("failed to build workbook", err).
			WithContext("path", filePath)
	}
	defer f.Close()

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return apierrors.NewStorageError("failed to create directory", err).
			WithContext("path", filePath)
	}
	if err := f.SaveAs(fullPath); err != nil {
		return apierrors.NewStorageError("failed to save workbook", err).
			WithContext("path", filePath)
	}

	w.logger.Info("Time-series workbook written",
		slog.String("code", report.Code),
		slog.String("full_path", fullPath),
		slog.Int("rows", len(report.Rows)))
	return nil
}

func buildWorkbook(report *TimeSeriesReport) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", ReportSheet); err != nil {
		f.Close()
		return nil, err
	}

	header := make([]interface{}, len(TimeSeriesHeaders))
	for i, h := range TimeSeriesHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(ReportSheet, "A1", &header); err != nil {
		f.Close()
		return nil, err
	}

	for i, row := range report.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, err
		}
		values := []interface{}{
			formatDate(row.Date),
			cellValue(row.TheoreticalAsset),
			cellValue(row.BookAsset),
			cellValue(row.AssetVol),
			cellValue(row.MarketCap),
			cellValue(row.Debt),
			cellValue(row.DefaultProbability),
			cellValue(row.DistanceToDefault),
		}
		if err := f.SetSheetRow(ReportSheet, cell, &values); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := styleColumns(f); err != nil {
		f.Close()
		return nil, err
	}

	if _, err := f.NewSheet(ChartSheet); err != nil {
		f.Close()
		return nil, err
	}
	last := len(report.Rows) + 1
	if err := f.AddChart(ChartSheet, "A1", assetChart(report.Code, last)); err != nil {
		f.Close()
		return nil, fmt.Errorf("asset chart: %w", err)
	}
	if err := f.AddChart(ChartSheet, "A22", pdChart(report.Code, last)); err != nil {
		f.Close()
		return nil, fmt.Errorf("default probability chart: %w", err)
	}
	return f, nil
}

func styleColumns(f *excelize.File) error {
	amount, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return err
	}
	if err := f.SetColStyle(ReportSheet, "B:C", amount); err != nil {
		return err
	}
	if err := f.SetColStyle(ReportSheet, "E:F", amount); err != nil {
		return err
	}
	if err := f.SetColWidth(ReportSheet, "A", "A", 12); err != nil {
		return err
	}
	return f.SetColWidth(ReportSheet, "B", "H", 18)
}

// seriesRange returns an absolute column range on the report sheet
func seriesRange(col string, last int) string {
	return fmt.Sprintf("%s!$%s$2:$%s$%d", ReportSheet, col, col, last)
}

func assetChart(code string, last int) *excelize.Chart {
	return &excelize.Chart{
		Type: excelize.Line,
		Series: []excelize.ChartSeries{
			{
				Name:       fmt.Sprintf("%s!$B$1", ReportSheet),
				Categories: seriesRange("A", last),
				Values:     seriesRange("B", last),
			},
			{
				Name:       fmt.Sprintf("%s!$F$1", ReportSheet),
				Categories: seriesRange("A", last),
				Values:     seriesRange("F", last),
			},
		},
		Title:     []excelize.RichTextRun{{Text: code + " theoretical assets vs debt"}},
		Legend:    excelize.ChartLegend{Position: "bottom"},
		Dimension: excelize.ChartDimension{Width: 720, Height: 400},
	}
}

func pdChart(code string, last int) *excelize.Chart {
	return &excelize.Chart{
		Type: excelize.Line,
		Series: []excelize.ChartSeries{
			{
				Name:       fmt.Sprintf("%s!$G$1", ReportSheet),
				Categories: seriesRange("A", last),
				Values:     seriesRange("G", last),
			},
		},
		Title:     []excelize.RichTextRun{{Text: code + " default probability"}},
		Legend:    excelize.ChartLegend{Position: "none"},
		Dimension: excelize.ChartDimension{Width: 720, Height: 300},
	}
}

// cellValue leaves non-finite numbers as blank cells
func cellValue(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
