// Package exporter writes calibration reports.
//
// CSVWriter is the low-level writer: headers, append mode, streaming and a
// UTF-8 BOM for Excel. Relative paths resolve under the configured reports
// directory.
//
// On top of it:
//
//   - WriteTimeSeriesCSV: one row per observation with columns
//     date, th_asset, asset, vola_a, mktcap, debt, pd, dd
//   - WriteTimeSeriesWorkbook: the same table in an xlsx workbook, with line
//     charts of theoretical asset value against debt and of default probability
//   - WriteSinglePointCSV: one row per single-point calibration
//
// Example usage:
//
//	writer := exporter.NewCSVWriter(paths)
//	report, err := exporter.NewTimeSeriesReport(series, result)
//	if err != nil {
//		return err
//	}
//	err = writer.WriteTimeSeriesCSV(config.ReportFileName(series.Code, "csv"), report)
package exporter
