package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	apierrors "mertoncli/internal/errors"
)

// dateLayouts are tried in order when parsing the date column
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"2006-01-02T15:04:05Z07:00",
}

// table is a header row plus data rows, as read from CSV or a sheet
type table struct {
	source  string
	columns map[string]int
	rows    [][]string
}

// newTable indexes the header row. Names are trimmed and lower-cased and a
// leading UTF-8 BOM is dropped.
func newTable(source string, records [][]string) (*table, error) {
	if len(records) == 0 {
		return nil, apierrors.NewParsingError("empty table", nil).WithContext("source", source)
	}

	columns := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if name == "" {
			continue
		}
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}

	return &table{source: source, columns: columns, rows: records[1:]}, nil
}

// require fails when any of names is missing from the header
func (t *table) require(names ...string) error {
	var missing []string
	for _, name := range names {
		if _, ok := t.columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return apierrors.NewParsingError(
			fmt.Sprintf("missing column(s): %s", strings.Join(missing, ", ")), nil,
		).WithContext("source", t.source)
	}
	return nil
}

func (t *table) has(name string) bool {
	_, ok := t.columns[name]
	return ok
}

// cell returns the trimmed value of a column, or "" for short rows
func (t *table) cell(row []string, name string) string {
	idx, ok := t.columns[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// float parses a numeric cell. Thousands separators are accepted.
func (t *table) float(row []string, line int, name string) (float64, error) {
	raw := t.cell(row, name)
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		return 0, t.rowError(line, name, raw, err)
	}
	return v, nil
}

// date parses the date cell with the first matching layout
func (t *table) date(row []string, line int, name string) (time.Time, error) {
	raw := t.cell(row, name)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d, nil
		}
	}
	return time.Time{}, t.rowError(line, name, raw, fmt.Errorf("unrecognised date format"))
}

// rowError reports a bad cell. line is 1-based and counts the header.
func (t *table) rowError(line int, column, value string, cause error) error {
	return apierrors.NewParsingError(
		fmt.Sprintf("invalid %s at line %d", column, line), cause,
	).WithContext("source", t.source).
		WithContext("line", line).
		WithContext("value", value)
}

// matches reports whether a row belongs to code. Empty rows never match.
func (t *table) matches(row []string, code string) bool {
	return t.cell(row, ColCode) == code
}

// parsePrices extracts the price rows of one firm in table order
func parsePrices(t *table, code string) ([]PriceRow, error) {
	if err := t.require(ColCode, ColDate, ColClose); err != nil {
		return nil, err
	}

	var prices []PriceRow
	for i, row := range t.rows {
		if !t.matches(row, code) {
			continue
		}
		line := i + 2

		date, err := t.date(row, line, ColDate)
		if err != nil {
			return nil, err
		}
		closePrice, err := t.float(row, line, ColClose)
		if err != nil {
			return nil, err
		}

		prices = append(prices, PriceRow{Code: code, Date: date, Close: closePrice})
	}

	if len(prices) == 0 {
		return nil, apierrors.NewNotFoundError(fmt.Sprintf("prices for firm %s", code)).
			WithContext("source", t.source)
	}
	return prices, nil
}

// parseFundamentals extracts the last fundamentals row of one firm
func parseFundamentals(t *table, code string) (Fundamentals, error) {
	if err := t.require(ColCode, ColIssuedShares, ColDebt); err != nil {
		return Fundamentals{}, err
	}

	var (
		out   Fundamentals
		found bool
	)
	for i, row := range t.rows {
		if !t.matches(row, code) {
			continue
		}
		line := i + 2

		shares, err := t.float(row, line, ColIssuedShares)
		if err != nil {
			return Fundamentals{}, err
		}
		debt, err := t.float(row, line, ColDebt)
		if err != nil {
			return Fundamentals{}, err
		}
		var assets float64
		if t.has(ColTotalAssets) && t.cell(row, ColTotalAssets) != "" {
			if assets, err = t.float(row, line, ColTotalAssets); err != nil {
				return Fundamentals{}, err
			}
		}

		out = Fundamentals{Code: code, IssuedShares: shares, Debt: debt, TotalAssets: assets}
		found = true
	}

	if !found {
		return Fundamentals{}, apierrors.NewNotFoundError(fmt.Sprintf("fundamentals for firm %s", code)).
			WithContext("source", t.source)
	}
	return out, nil
}
