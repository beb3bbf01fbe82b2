package diff

import (
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// Gonum delegates to gonum's diff/fd package. The zero value uses fd.Central
// with gonum's default step.
type Gonum struct {
	Formula    fd.Formula
	Step       float64
	Concurrent bool
}

func (g Gonum) formula() fd.Formula {
	if g.Formula.Stencil == nil {
		return fd.Central
	}
	return g.Formula
}

func (g Gonum) Derivative(f ScalarFunc, x float64) float64 {
	return fd.Derivative(f, x, &fd.Settings{
		Formula:    g.formula(),
		Step:       g.Step,
		Concurrent: g.Concurrent,
	})
}

func (g Gonum) Gradient(f MultivariateFunc, x []float64) []float64 {
	return fd.Gradient(nil, f, x, &fd.Settings{
		Formula:    g.formula(),
		Step:       g.Step,
		Concurrent: g.Concurrent,
	})
}

func (g Gonum) Jacobian(f VectorFunc, x []float64) *mat.Dense {
	origin := f(x)
	jac := mat.NewDense(len(origin), len(x), nil)
	fd.Jacobian(jac, func(y, x []float64) {
		copy(y, f(x))
	}, x, &fd.JacobianSettings{
		Formula:     g.formula(),
		OriginValue: origin,
		Step:        g.Step,
		Concurrent:  g.Concurrent,
	})
	return jac
}
