package exporter

import (
	"math"
	"strconv"
	"time"
)

// DateLayout is the date format used in reports
const DateLayout = "2006-01-02"

// formatAmount formats a currency amount with exactly 2 decimal places
func formatAmount(f float64) string {
	return formatFinite(f, func(v float64) string {
		return strconv.FormatFloat(v, 'f', 2, 64)
	})
}

// formatRatio formats volatilities, probabilities and distances at full
// significance without exponent noise for ordinary magnitudes
func formatRatio(f float64) string {
	return formatFinite(f, func(v float64) string {
		return strconv.FormatFloat(v, 'g', 12, 64)
	})
}

// formatFinite writes NaN and infinities as empty cells
func formatFinite(f float64, format func(float64) string) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	return format(f)
}

// formatInt formats an int value for CSV output
func formatInt(i int) string {
	return strconv.Itoa(i)
}

// formatBool formats a boolean value for CSV output
func formatBool(b bool) string {
	return strconv.FormatBool(b)
}

// formatDate formats a report date; the zero time becomes an empty cell
func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}
