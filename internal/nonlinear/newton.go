// Package nonlinear finds roots of vector equations g(x) = 0.
package nonlinear

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/ivpsolve/internal/diff"
	"github.com/san-kum/ivpsolve/internal/linalg"
)

// Func is a square vector function. It must not retain or return its argument.
type Func func(x []float64) []float64

// Method produces the next iterate from the current one.
type Method interface {
	Iterate(g Func, x []float64) ([]float64, error)
}

// Newton solves J·Δ = −g(x) and returns x + Δ. Nil fields select a central
// difference Jacobian and partial-pivot LU.
type Newton struct {
	Jacobian diff.JacobianMethod
	Linear   linalg.Solver
}

func (n Newton) Iterate(g Func, x []float64) ([]float64, error) {
	jm := n.Jacobian
	if jm == nil {
		jm = diff.Central{}
	}
	ls := n.Linear
	if ls == nil {
		ls = linalg.PartialPivotLU{}
	}

	jac := jm.Jacobian(diff.VectorFunc(g), x)
	rhs := g(x)
	floats.Scale(-1, rhs)

	delta, err := ls.Solve(jac, rhs)
	if err != nil {
		return nil, fmt.Errorf("newton: %w", err)
	}

	next := make([]float64, len(x))
	floats.AddTo(next, x, delta)
	return next, nil
}

var DefaultPrecision = math.Pow(math.Nextafter(1, 2)-1, 2.0/3.0)

const DefaultMaxIterations = 100

type Settings struct {
	Precision     float64
	MaxIterations int
	Method        Method
}

func DefaultSettings() Settings {
	return Settings{
		Precision:     DefaultPrecision,
		MaxIterations: DefaultMaxIterations,
		Method:        Newton{},
	}
}

func (s Settings) withDefaults() Settings {
	if s.Precision <= 0 {
		s.Precision = DefaultPrecision
	}
	if s.MaxIterations <= 0 {
		s.MaxIterations = DefaultMaxIterations
	}
	if s.Method == nil {
		s.Method = Newton{}
	}
	return s
}

// Result carries the last iterate. Converged is false when the iteration
// budget ran out before two iterates came within Precision of each other.
type Result struct {
	X          []float64
	Iterations int
	Converged  bool
	Delta      float64
}

// Solve iterates from x0 until ‖x_k − x_{k−1}‖₂ < Precision or the budget is
// exhausted. Running out of iterations is reported through Result.Converged,
// not as an error. A non-finite update ends the iteration with that iterate
// and Converged false. An error from the method stops the iteration and is
// returned with the last good iterate.
func Solve(g Func, x0 []float64, s Settings) (Result, error) {
	s = s.withDefaults()

	x := make([]float64, len(x0))
	copy(x, x0)
	res := Result{X: x, Delta: math.Inf(1)}

	for it := 1; it <= s.MaxIterations; it++ {
		next, err := s.Method.Iterate(g, x)
		if err != nil {
			return res, err
		}

		res.Delta = floats.Distance(next, x, 2)
		res.Iterations = it
		res.X = next
		x = next

		if math.IsNaN(res.Delta) || math.IsInf(res.Delta, 0) {
			break
		}
		if res.Delta < s.Precision {
			res.Converged = true
			break
		}
	}
	return res, nil
}
