package exporter

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"mertoncli/internal/config"
	apierrors "mertoncli/internal/errors"
	"mertoncli/internal/merton"
)

func setupTestEnv(t *testing.T) (*CSVWriter, *config.Paths) {
	t.Helper()
	paths := config.ResolvePaths(t.TempDir(), config.PathsConfig{})
	require.NoError(t, paths.EnsureDirectories())
	return NewCSVWriter(paths), paths
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	content = bytes.TrimPrefix(content, utf8BOM)
	records, err := csv.NewReader(bytes.NewReader(content)).ReadAll()
	require.NoError(t, err)
	return records
}

func sampleReport(t *testing.T) *TimeSeriesReport {
	t.Helper()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	report, err := NewTimeSeriesReport(SeriesInput{
		Code:       "005930",
		Dates:      []time.Time{day, day.AddDate(0, 0, 1), day.AddDate(0, 0, 2)},
		MarketCaps: []float64{1000, 1010, 990},
		Debt:       800,
		BookAssets: 2100,
	}, merton.TimeSeriesResult{
		Assets:             []float64{1780.5, 1790.25, 1770},
		AssetVol:           0.0123,
		DefaultProbs:       []float64{0, 1e-12, 0.25},
		DistancesToDefault: []float64{40.5, 12.25, math.Inf(1)},
		Converged:          true,
	})
	require.NoError(t, err)
	return report
}

func TestCSVWriter_ResolvePath(t *testing.T) {
	writer, paths := setupTestEnv(t)
	abs := filepath.Join(t.TempDir(), "x.csv")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"report relative", "a.csv", filepath.Join(paths.ReportsDir, "a.csv")},
		{"data prefix", "data/prices.csv", filepath.Join(paths.DataDir, "prices.csv")},
		{"absolute", abs, abs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, writer.ResolvePath(tt.in))
		})
	}

	assert.Equal(t, "a.csv", NewCSVWriter(nil).ResolvePath("a.csv"))
}

func TestCSVWriter_WriteAndAppend(t *testing.T) {
	writer, paths := setupTestEnv(t)

	require.NoError(t, writer.WriteTable("out.csv", []string{"a", "b"}, [][]string{{"1", "2"}}))
	require.NoError(t, writer.AppendRows("out.csv", [][]string{{"3", "4"}}))

	full := paths.GetReportPath("out.csv")
	raw, err := os.ReadFile(full)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, utf8BOM))
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}, {"3", "4"}}, readCSV(t, full))
}

func TestCSVWriter_WriteTableReplaces(t *testing.T) {
	writer, paths := setupTestEnv(t)

	require.NoError(t, writer.WriteTable("nested/out.csv", []string{"code"}, [][]string{{"A"}, {"B"}}))
	require.NoError(t, writer.WriteTable("nested/out.csv", []string{"code"}, [][]string{{"C"}}))

	full := paths.GetReportPath("nested/out.csv")
	assert.Equal(t, [][]string{{"code"}, {"C"}}, readCSV(t, full))

	entries, err := os.ReadDir(filepath.Dir(full))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestCSVWriter_AppendCreatesFile(t *testing.T) {
	writer, paths := setupTestEnv(t)

	require.NoError(t, writer.AppendRows("fresh.csv", [][]string{{"1"}}))
	assert.Equal(t, [][]string{{"1"}}, readCSV(t, paths.GetReportPath("fresh.csv")))
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "1234.50", formatAmount(1234.5))
	assert.Equal(t, "", formatAmount(math.NaN()))
	assert.Equal(t, "0.0123", formatRatio(0.0123))
	assert.Equal(t, "1e-12", formatRatio(1e-12))
	assert.Equal(t, "", formatRatio(math.Inf(-1)))
	assert.Equal(t, "42", formatInt(42))
	assert.Equal(t, "false", formatBool(false))
	assert.Equal(t, "", formatDate(time.Time{}))
	assert.Equal(t, "2024-03-01", formatDate(time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)))
}

func TestNewTimeSeriesReport_LengthMismatch(t *testing.T) {
	tests := []struct {
		name      string
		in        SeriesInput
		result    merton.TimeSeriesResult
		wantField string
	}{
		{
			name:      "assets short",
			in:        SeriesInput{MarketCaps: []float64{1, 2}},
			result:    merton.TimeSeriesResult{Assets: []float64{1}, DefaultProbs: []float64{0, 0}, DistancesToDefault: []float64{1, 1}},
			wantField: "assets",
		},
		{
			name:      "dates short",
			in:        SeriesInput{MarketCaps: []float64{1, 2}, Dates: []time.Time{{}}},
			result:    merton.TimeSeriesResult{Assets: []float64{1, 2}, DefaultProbs: []float64{0, 0}, DistancesToDefault: []float64{1, 1}},
			wantField: "dates",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTimeSeriesReport(tt.in, tt.result)
			require.Error(t, err)
			var appErr *apierrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apierrors.ErrTypeValidation, appErr.Type)
			assert.Equal(t, tt.wantField, appErr.Context["field"])
		})
	}

	_, err := NewTimeSeriesReport(SeriesInput{}, merton.TimeSeriesResult{})
	assert.Error(t, err)
}

func TestWriteTimeSeriesCSV(t *testing.T) {
	writer, paths := setupTestEnv(t)
	report := sampleReport(t)

	name := config.ReportFileName(report.Code, "csv")
	require.NoError(t, writer.WriteTimeSeriesCSV(name, report))

	records := readCSV(t, paths.GetReportPath(name))
	require.Len(t, records, 4)
	assert.Equal(t, TimeSeriesHeaders, records[0])
	assert.Equal(t, []string{"2024-03-01", "1780.50", "2100.00", "0.0123", "1000.00", "800.00", "0", "40.5"}, records[1])
	assert.Equal(t, "", records[3][7], "infinite distance to default is blank")

	assert.Error(t, writer.WriteTimeSeriesCSV(name, nil))
}

func TestWriteSinglePointCSV(t *testing.T) {
	writer, paths := setupTestEnv(t)
	record := SinglePointRecord{
		Code:     "A",
		Snapshot: merton.FirmSnapshot{Equity: 3, EquityVol: 0.8, Debt: 10, Rate: 0.05, Horizon: 1},
		Result: merton.SinglePointResult{
			Asset: 12.5, AssetVol: 0.19, Iterations: 7, Converged: true, Status: merton.StatusConverged,
		},
	}

	require.NoError(t, writer.WriteSinglePointCSV("single.csv", []SinglePointRecord{record}, true))
	record.Code = "B"
	require.NoError(t, writer.WriteSinglePointCSV("single.csv", []SinglePointRecord{record}, true))

	records := readCSV(t, paths.GetReportPath("single.csv"))
	require.Len(t, records, 3)
	assert.Equal(t, SinglePointHeaders, records[0])
	assert.Equal(t, "A", records[1][0])
	assert.Equal(t, "B", records[2][0])
	assert.Equal(t, "7", records[1][10])
	assert.Equal(t, "true", records[1][11])
	assert.Equal(t, "converged", records[1][12])

	require.NoError(t, writer.WriteSinglePointCSV("single.csv", []SinglePointRecord{record}, false))
	assert.Len(t, readCSV(t, paths.GetReportPath("single.csv")), 2)
}

func TestWriteTimeSeriesWorkbook(t *testing.T) {
	writer, paths := setupTestEnv(t)
	report := sampleReport(t)

	require.NoError(t, writer.WriteTimeSeriesWorkbook("series.xlsx", report))

	f, err := excelize.OpenFile(paths.GetReportPath("series.xlsx"))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{ReportSheet, ChartSheet}, f.GetSheetList())
	rows, err := f.GetRows(ReportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, TimeSeriesHeaders, rows[0])
	assert.Equal(t, "2024-03-01", rows[1][0])

	assert.Error(t, writer.WriteTimeSeriesWorkbook("empty.xlsx", &TimeSeriesReport{}))
}
