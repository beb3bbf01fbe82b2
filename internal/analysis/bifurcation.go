package analysis

import (
	"context"
	"fmt"

	"github.com/san-kum/ivpsolve/internal/dynamo"
	"github.com/san-kum/ivpsolve/internal/sim"
)

// BifurcationPoint holds the local maxima of the recorded component for
// one parameter value. A single repeated value is a periodic orbit, many
// scattered values suggest chaos.
type BifurcationPoint struct {
	Param  float64
	Maxima []float64
}

type BifurcationOptions struct {
	Param string
	// Index is the state component whose maxima are recorded.
	Index int
	// Transient is discarded before recording; Record is the recorded span.
	Transient float64
	Record    float64
}

// Bifurcation sweeps opts.Param of sys over values, starting every run from
// y0 at t = 0 with a fresh stepper. The parameter is restored afterwards.
func Bifurcation(ctx context.Context, sys dynamo.System, newStepper func() dynamo.Stepper, y0 dynamo.State, values []float64, opts BifurcationOptions) ([]BifurcationPoint, error) {
	tunable, ok := sys.(dynamo.Configurable)
	if !ok {
		return nil, fmt.Errorf("bifurcation: system has no parameters")
	}
	saved, ok := tunable.GetParams()[opts.Param]
	if !ok {
		return nil, fmt.Errorf("bifurcation: unknown parameter %q", opts.Param)
	}
	if y0 == nil {
		y0 = sys.DefaultState()
	}
	if opts.Index < 0 || opts.Index >= len(y0) {
		return nil, fmt.Errorf("%w: index %d of %d components", dynamo.ErrDimensionMismatch, opts.Index, len(y0))
	}
	if !(opts.Record > 0) || opts.Transient < 0 {
		return nil, fmt.Errorf("%w: transient %g, record %g", dynamo.ErrInvalidInterval, opts.Transient, opts.Record)
	}
	defer tunable.SetParam(opts.Param, saved)

	points := make([]BifurcationPoint, 0, len(values))
	for _, v := range values {
		if err := tunable.SetParam(opts.Param, v); err != nil {
			return points, err
		}
		maxima, err := localMaxima(ctx, sys, newStepper(), y0, opts)
		if err != nil {
			return points, fmt.Errorf("%s=%g: %w", opts.Param, v, err)
		}
		points = append(points, BifurcationPoint{Param: v, Maxima: maxima})
	}
	return points, nil
}

func localMaxima(ctx context.Context, sys dynamo.System, stepper dynamo.Stepper, y0 dynamo.State, opts BifurcationOptions) ([]float64, error) {
	y := y0.Clone()
	t := 0.0
	if opts.Transient > 0 {
		var err error
		t, y, err = sim.Solve(ctx, sys.Derive, y, 0, opts.Transient, stepper, sim.Options{Verify: true})
		if err != nil {
			return nil, err
		}
	}

	var maxima []float64
	var window []float64
	observe := func(_ float64, y dynamo.State, _ dynamo.Snapshot) dynamo.Signal {
		window = append(window, y[opts.Index])
		if n := len(window); n >= 3 {
			if window[n-2] > window[n-3] && window[n-2] >= window[n-1] {
				maxima = append(maxima, window[n-2])
			}
			window = window[n-2:]
		}
		return dynamo.Continue
	}

	_, _, err := sim.Solve(ctx, sys.Derive, y, t, t+opts.Record, stepper, sim.Options{Verify: true, Observer: observe})
	return maxima, err
}
