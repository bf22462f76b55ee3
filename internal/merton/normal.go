package merton

import (
	"math"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// DefaultQuadratureTolerance is the absolute error target of Quadrature.
	DefaultQuadratureTolerance = 1e-12

	// tailCutoff is the number of standard deviations below the mean past
	// which the cumulative probability is reported as exactly zero.
	tailCutoff = 40.0

	defaultQuadraturePoints = 16
	defaultQuadratureDepth  = 40
)

var invSqrt2Pi = 1 / math.Sqrt(2*math.Pi)

// CDF evaluates the cumulative normal distribution function.
// Implementations must be pure and safe for concurrent use.
type CDF interface {
	CDF(x, mean, stddev float64) (float64, error)
}

// ClosedForm evaluates the normal CDF through the complementary error function.
type ClosedForm struct{}

// CDF returns P(X <= x) for X ~ Normal(mean, stddev²).
func (ClosedForm) CDF(x, mean, stddev float64) (float64, error) {
	if err := checkNormalArgs(x, mean, stddev); err != nil {
		return 0, err
	}
	return distuv.Normal{Mu: mean, Sigma: stddev}.CDF(x), nil
}

// Quadrature evaluates the normal CDF by integrating the density from the far
// left tail up to x with adaptive Gauss-Legendre bisection.
type Quadrature struct {
	// Tolerance is the absolute error target. Zero means DefaultQuadratureTolerance.
	Tolerance float64
	// Points is the Gauss-Legendre order per panel. Zero means 16.
	Points int
	// MaxDepth bounds the bisection depth of a single panel. Zero means 40.
	MaxDepth int
}

// NewQuadrature returns a quadrature evaluator with the given absolute tolerance.
func NewQuadrature(tolerance float64) Quadrature {
	return Quadrature{Tolerance: tolerance}
}

// CDF returns P(X <= x) for X ~ Normal(mean, stddev²).
func (q Quadrature) CDF(x, mean, stddev float64) (float64, error) {
	if err := checkNormalArgs(x, mean, stddev); err != nil {
		return 0, err
	}

	lower := mean - tailCutoff*stddev
	if x <= lower {
		return 0, nil
	}
	if x >= mean+tailCutoff*stddev {
		return 1, nil
	}

	density := func(t float64) float64 {
		z := (t - mean) / stddev
		return math.Exp(-0.5*z*z) * invSqrt2Pi / stddev
	}

	// Panels one standard deviation wide keep the bulk of the mass resolved
	// before bisection starts.
	panels := int(math.Ceil((x - lower) / stddev))
	if panels < 1 {
		panels = 1
	}
	width := (x - lower) / float64(panels)
	tol := q.tolerance() / float64(panels)

	var total float64
	for i := 0; i < panels; i++ {
		a := lower + float64(i)*width
		b := a + width
		if i == panels-1 {
			b = x
		}
		whole := quad.Fixed(density, a, b, q.points(), nil, 0)
		total += q.refine(density, a, b, whole, tol, 0)
	}

	return math.Min(1, math.Max(0, total)), nil
}

// refine bisects [a, b] until the two halves agree with the whole-panel
// estimate to within tol.
func (q Quadrature) refine(f func(float64) float64, a, b, whole, tol float64, depth int) float64 {
	mid := 0.5 * (a + b)
	left := quad.Fixed(f, a, mid, q.points(), nil, 0)
	right := quad.Fixed(f, mid, b, q.points(), nil, 0)
	if depth >= q.maxDepth() || math.Abs(left+right-whole) <= tol {
		return left + right
	}
	return q.refine(f, a, mid, left, tol/2, depth+1) + q.refine(f, mid, b, right, tol/2, depth+1)
}

func (q Quadrature) tolerance() float64 {
	if q.Tolerance > 0 {
		return q.Tolerance
	}
	return DefaultQuadratureTolerance
}

func (q Quadrature) points() int {
	if q.Points > 0 {
		return q.Points
	}
	return defaultQuadraturePoints
}

func (q Quadrature) maxDepth() int {
	if q.MaxDepth > 0 {
		return q.MaxDepth
	}
	return defaultQuadratureDepth
}

// N is the standard normal CDF.
func N(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

func checkNormalArgs(x, mean, stddev float64) error {
	switch {
	case math.IsNaN(x):
		return domainError("normal cdf", "x", x)
	case math.IsNaN(mean) || math.IsInf(mean, 0):
		return domainError("normal cdf", "mean", mean)
	case !(stddev > 0) || math.IsInf(stddev, 0):
		return domainError("normal cdf", "stddev", stddev)
	}
	return nil
}
