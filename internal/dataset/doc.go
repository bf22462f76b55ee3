// Package dataset loads firm market and balance-sheet data for calibration.
//
// Two tables are read, either from CSV files or from the sheets of one
// Excel workbook:
//
//   - prices: ccode, date, close (one row per trading day, file order)
//   - fundamentals: ccode, all_issued_stock, dept_with_interest, total_asset
//
// Columns are located by header name, so extra columns and any column order
// are accepted. Rows for other company codes are skipped. For fundamentals
// the last matching row wins.
//
// BuildSeries turns the two tables into a FirmSeries: market capitalisation
// (close times issued shares) over the trailing window, with the most recent
// observation held out.
package dataset
