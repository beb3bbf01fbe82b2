// Package diff approximates derivatives, gradients and Jacobians with
// finite-difference stencils.
//
// A zero Step on any stencil selects the step that balances truncation
// against rounding for float64: sqrt(eps) for one-sided stencils, cbrt(eps)
// for the central stencil and eps^(1/5) for the four-point stencil.
package diff

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Functions passed to this package must not retain or return their argument.
type (
	ScalarFunc       func(x float64) float64
	MultivariateFunc func(x []float64) float64
	VectorFunc       func(x []float64) []float64
)

type DerivativeMethod interface {
	Derivative(f ScalarFunc, x float64) float64
}

type GradientMethod interface {
	Gradient(f MultivariateFunc, x []float64) []float64
}

// JacobianMethod returns the len(f(x))×len(x) matrix of partial derivatives.
type JacobianMethod interface {
	Jacobian(f VectorFunc, x []float64) *mat.Dense
}

// Method is a stencil usable for all three operations.
type Method interface {
	DerivativeMethod
	GradientMethod
	JacobianMethod
}

var (
	Epsilon = math.Nextafter(1, 2) - 1

	DirectionalStep = math.Sqrt(Epsilon)
	CentralStep     = math.Cbrt(Epsilon)
	FourPointStep   = math.Pow(Epsilon, 1.0/5.0)
)

// stencil is a set of weighted sample offsets, in units of h, whose sum
// divided by scale·h approximates the first derivative.
type stencil struct {
	offsets []float64
	weights []float64
	scale   float64
}

var (
	forwardStencil   = stencil{offsets: []float64{1, 0}, weights: []float64{1, -1}, scale: 1}
	backwardStencil  = stencil{offsets: []float64{0, -1}, weights: []float64{1, -1}, scale: 1}
	centralStencil   = stencil{offsets: []float64{1, -1}, weights: []float64{1, -1}, scale: 2}
	fourPointStencil = stencil{offsets: []float64{2, 1, -1, -2}, weights: []float64{-1, 8, -8, 1}, scale: 12}
)

func (s stencil) derivative(f ScalarFunc, x, h float64) float64 {
	sum := 0.0
	for k, off := range s.offsets {
		sum += s.weights[k] * f(x+off*h)
	}
	return sum / (s.scale * h)
}

func (s stencil) gradient(f MultivariateFunc, x []float64, h float64) []float64 {
	probe := make([]float64, len(x))
	copy(probe, x)

	var base float64
	haveBase := false
	grad := make([]float64, len(x))
	for j := range x {
		sum := 0.0
		for k, off := range s.offsets {
			var v float64
			if off == 0 {
				if !haveBase {
					base, haveBase = f(x), true
				}
				v = base
			} else {
				probe[j] = x[j] + off*h
				v = f(probe)
				probe[j] = x[j]
			}
			sum += s.weights[k] * v
		}
		grad[j] = sum / (s.scale * h)
	}
	return grad
}

func (s stencil) jacobian(f VectorFunc, x []float64, h float64) *mat.Dense {
	n := len(x)
	probe := make([]float64, n)
	copy(probe, x)

	var base []float64
	var jac *mat.Dense
	var col []float64
	for j := 0; j < n; j++ {
		for k, off := range s.offsets {
			var v []float64
			if off == 0 {
				if base == nil {
					base = f(x)
				}
				v = base
			} else {
				probe[j] = x[j] + off*h
				v = f(probe)
				probe[j] = x[j]
			}
			if jac == nil {
				jac = mat.NewDense(len(v), n, nil)
				col = make([]float64, len(v))
			}
			if k == 0 {
				clear(col)
			}
			for i := range col {
				col[i] += s.weights[k] * v[i]
			}
		}
		for i := range col {
			jac.Set(i, j, col[i]/(s.scale*h))
		}
	}
	if jac == nil {
		return &mat.Dense{}
	}
	return jac
}

// Forward uses (f(x+h) − f(x)) / h. Error O(h).
type Forward struct{ Step float64 }

func (d Forward) h() float64 { return orDefault(d.Step, DirectionalStep) }
func (d Forward) Derivative(f ScalarFunc, x float64) float64 {
	return forwardStencil.derivative(f, x, d.h())
}
func (d Forward) Gradient(f MultivariateFunc, x []float64) []float64 {
	return forwardStencil.gradient(f, x, d.h())
}
func (d Forward) Jacobian(f VectorFunc, x []float64) *mat.Dense {
	return forwardStencil.jacobian(f, x, d.h())
}

// Backward uses (f(x) − f(x−h)) / h. Error O(h).
type Backward struct{ Step float64 }

func (d Backward) h() float64 { return orDefault(d.Step, DirectionalStep) }
func (d Backward) Derivative(f ScalarFunc, x float64) float64 {
	return backwardStencil.derivative(f, x, d.h())
}
func (d Backward) Gradient(f MultivariateFunc, x []float64) []float64 {
	return backwardStencil.gradient(f, x, d.h())
}
func (d Backward) Jacobian(f VectorFunc, x []float64) *mat.Dense {
	return backwardStencil.jacobian(f, x, d.h())
}

// Central uses (f(x+h) − f(x−h)) / 2h. Error O(h²), 2N evaluations per Jacobian.
type Central struct{ Step float64 }

func (d Central) h() float64 { return orDefault(d.Step, CentralStep) }
func (d Central) Derivative(f ScalarFunc, x float64) float64 {
	return centralStencil.derivative(f, x, d.h())
}
func (d Central) Gradient(f MultivariateFunc, x []float64) []float64 {
	return centralStencil.gradient(f, x, d.h())
}
func (d Central) Jacobian(f VectorFunc, x []float64) *mat.Dense {
	return centralStencil.jacobian(f, x, d.h())
}

// FourPointCentral uses (−f(x+2h) + 8f(x+h) − 8f(x−h) + f(x−2h)) / 12h. Error O(h⁴).
type FourPointCentral struct{ Step float64 }

func (d FourPointCentral) h() float64 { return orDefault(d.Step, FourPointStep) }
func (d FourPointCentral) Derivative(f ScalarFunc, x float64) float64 {
	return fourPointStencil.derivative(f, x, d.h())
}
func (d FourPointCentral) Gradient(f MultivariateFunc, x []float64) []float64 {
	return fourPointStencil.gradient(f, x, d.h())
}
func (d FourPointCentral) Jacobian(f VectorFunc, x []float64) *mat.Dense {
	return fourPointStencil.jacobian(f, x, d.h())
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

var methods = map[string]func() Method{
	"forward":    func() Method { return Forward{} },
	"backward":   func() Method { return Backward{} },
	"central":    func() Method { return Central{} },
	"four-point": func() Method { return FourPointCentral{} },
	"gonum":      func() Method { return Gonum{} },
}

// ByName returns the method registered under name.
func ByName(name string) (Method, error) {
	fn, ok := methods[name]
	if !ok {
		return nil, fmt.Errorf("unknown differentiation method: %s", name)
	}
	return fn(), nil
}

func Names() []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
