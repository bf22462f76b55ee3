package merton

import (
	"gonum.org/v1/gonum/stat"
)

// PercentChanges returns the period-over-period relative changes
// values[i]/values[i-1] − 1 for i ≥ 1.
func PercentChanges(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	changes := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		changes[i-1] = values[i]/values[i-1] - 1
	}
	return changes
}

// ReturnVolatility returns the population standard deviation (divisor n) of
// the percentage changes of values. The series must hold at least two
// positive, finite values.
func ReturnVolatility(values []float64) (float64, error) {
	if len(values) < MinSeriesLength {
		return 0, &InputError{
			Field:   "series",
			Message: "at least two observations are required",
			Value:   len(values),
		}
	}
	for i, v := range values {
		if !positiveFinite(v) {
			return 0, &InputError{
				Field:   "series",
				Message: "observations must be positive and finite",
				Value:   map[string]interface{}{"index": i, "value": v},
			}
		}
	}
	return stat.PopStdDev(PercentChanges(values), nil), nil
}
