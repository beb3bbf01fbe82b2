package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/ivpsolve/internal/dynamo"
	"github.com/san-kum/ivpsolve/internal/sim"
)

const (
	DefaultPerturbation = 1e-8
	DefaultRenormalize  = 1.0
)

// LyapunovOptions tunes the separation method. Zero fields take the
// package defaults.
type LyapunovOptions struct {
	// Perturbation is the initial separation d0 along the first component.
	Perturbation float64
	// Renormalize is the model time between rescalings of the separation
	// back to d0.
	Renormalize float64
}

func (o LyapunovOptions) withDefaults() LyapunovOptions {
	if o.Perturbation <= 0 {
		o.Perturbation = DefaultPerturbation
	}
	if o.Renormalize <= 0 {
		o.Renormalize = DefaultRenormalize
	}
	return o
}

// pair integrates y and its perturbed copy as one system of twice the
// dimension so both see the same step sequence.
func pair(f dynamo.Func, n int) dynamo.Func {
	return func(t float64, z dynamo.State) dynamo.State {
		out := make(dynamo.State, 0, 2*n)
		out = append(out, f(t, z[:n])...)
		return append(out, f(t, z[n:])...)
	}
}

// Lyapunov estimates the largest Lyapunov exponent of f around the
// trajectory through (t0, y0):
//
//	λ ≈ Σ ln(d_k/d0) / (t1 − t0)
//
// where d_k is the separation at the end of each renormalization interval.
// The stepper returned by newStepper is reset after every renormalization
// when it implements dynamo.Resetter, since the rescaled state invalidates
// any step history.
func Lyapunov(ctx context.Context, f dynamo.Func, newStepper func() dynamo.Stepper, y0 dynamo.State, t0, t1 float64, opts LyapunovOptions) (float64, error) {
	if f == nil {
		return 0, dynamo.ErrNilFunc
	}
	if len(y0) == 0 {
		return 0, fmt.Errorf("%w: empty initial state", dynamo.ErrDimensionMismatch)
	}
	if !(t1 > t0) {
		return 0, fmt.Errorf("%w: [%g, %g]", dynamo.ErrInvalidInterval, t0, t1)
	}
	opts = opts.withDefaults()

	n := len(y0)
	z := make(dynamo.State, 2*n)
	copy(z, y0)
	copy(z[n:], y0)
	z[n] += opts.Perturbation

	g := pair(f, n)
	stepper := newStepper()
	drive := sim.Options{Verify: true}

	t, sumLog := t0, 0.0
	for t < t1 {
		end := min(t+opts.Renormalize, t1)
		var err error
		t, z, err = sim.Solve(ctx, g, z, t, end, stepper, drive)
		if err != nil {
			return 0, err
		}

		d := separation(z, n)
		if d == 0 {
			return math.Inf(-1), nil
		}
		sumLog += math.Log(d / opts.Perturbation)

		scale := opts.Perturbation / d
		for i := 0; i < n; i++ {
			z[n+i] = z[i] + (z[n+i]-z[i])*scale
		}
		if r, ok := stepper.(dynamo.Resetter); ok {
			r.Reset()
		}
	}

	return sumLog / (t - t0), nil
}

func separation(z dynamo.State, n int) float64 {
	return z[n:].Sub(z[:n]).Norm()
}
