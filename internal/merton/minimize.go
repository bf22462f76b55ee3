package merton

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

const (
	// DefaultStepTolerance is the absolute distance within which the best point
	// must stay for the minimizer to stop.
	DefaultStepTolerance = 1e-8

	// DefaultStallIterations is the number of consecutive iterations the best
	// point must stay within DefaultStepTolerance.
	DefaultStallIterations = 64

	// DefaultMinimizerIterations bounds the iterations of one minimization.
	DefaultMinimizerIterations = 20000

	// DefaultSimplexFraction sizes the initial simplex relative to |x0|.
	DefaultSimplexFraction = 0.05

	minSimplexSize = 0.00025
)

// Minimizer finds a local minimizer of a univariate objective near x0.
// Implementations must be safe for concurrent use. The objective may return
// +Inf to reject a candidate.
type Minimizer interface {
	Minimize(f func(float64) float64, x0 float64) (float64, error)
}

// MinimizerFunc adapts a function to the Minimizer interface.
type MinimizerFunc func(f func(float64) float64, x0 float64) (float64, error)

// Minimize calls fn(f, x0).
func (fn MinimizerFunc) Minimize(f func(float64) float64, x0 float64) (float64, error) {
	return fn(f, x0)
}

// NelderMead is a derivative-free simplex minimizer. The zero value uses the
// package defaults.
type NelderMead struct {
	StepTolerance   float64
	StallIterations int
	MaxIterations   int
	SimplexFraction float64
}

// DefaultNelderMead returns a NelderMead configured with the package defaults.
func DefaultNelderMead() *NelderMead {
	return &NelderMead{
		StepTolerance:   DefaultStepTolerance,
		StallIterations: DefaultStallIterations,
		MaxIterations:   DefaultMinimizerIterations,
		SimplexFraction: DefaultSimplexFraction,
	}
}

// Minimize runs the simplex search from x0 and returns the best point found.
// Exhausting the iteration budget is not an error.
func (nm *NelderMead) Minimize(f func(float64) float64, x0 float64) (float64, error) {
	if !isFinite(x0) {
		return x0, fmt.Errorf("minimize: invalid starting point %g", x0)
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			v := f(x[0])
			if math.IsNaN(v) {
				return math.Inf(1)
			}
			return v
		},
	}
	settings := &optimize.Settings{
		Converger: &stepConverger{
			tolerance: nm.stepTolerance(),
			stall:     nm.stallIterations(),
		},
		MajorIterations: nm.maxIterations(),
	}
	method := &optimize.NelderMead{SimplexSize: nm.simplexSize(x0)}

	result, err := optimize.Minimize(problem, []float64{x0}, settings, method)
	if result == nil {
		return x0, fmt.Errorf("minimize: %w", err)
	}
	if err != nil && !budgetExhausted(result.Status) {
		return result.X[0], fmt.Errorf("minimize: %w", err)
	}
	best := result.X[0]
	if !isFinite(best) {
		return x0, errors.New("minimize: search diverged")
	}
	return best, nil
}

func budgetExhausted(status optimize.Status) bool {
	switch status {
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit:
		return true
	}
	return false
}

func (nm *NelderMead) stepTolerance() float64 {
	if nm.StepTolerance > 0 {
		return nm.StepTolerance
	}
	return DefaultStepTolerance
}

func (nm *NelderMead) stallIterations() int {
	if nm.StallIterations > 0 {
		return nm.StallIterations
	}
	return DefaultStallIterations
}

func (nm *NelderMead) maxIterations() int {
	if nm.MaxIterations > 0 {
		return nm.MaxIterations
	}
	return DefaultMinimizerIterations
}

func (nm *NelderMead) simplexSize(x0 float64) float64 {
	fraction := nm.SimplexFraction
	if fraction <= 0 {
		fraction = DefaultSimplexFraction
	}
	if size := fraction * math.Abs(x0); size > 0 {
		return size
	}
	return minSimplexSize
}

// stepConverger stops the search once the best point has stayed within
// tolerance of an anchor for stall consecutive major iterations. The anchor
// moves whenever the best point leaves that band.
type stepConverger struct {
	tolerance float64
	stall     int

	anchor  float64
	count   int
	started bool
}

func (c *stepConverger) Init(dim int) {
	c.anchor = 0
	c.count = 0
	c.started = false
}

func (c *stepConverger) Converged(loc *optimize.Location) optimize.Status {
	x := loc.X[0]
	if !c.started || math.Abs(x-c.anchor) > c.tolerance {
		c.anchor = x
		c.count = 0
		c.started = true
		return optimize.NotTerminated
	}
	c.count++
	if c.count >= c.stall {
		return optimize.StepConvergence
	}
	return optimize.NotTerminated
}
