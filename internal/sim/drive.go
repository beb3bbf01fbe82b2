package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/san-kum/ivpsolve/internal/dynamo"
)

const (
	// AutoFrequency observes the trajectory DefaultCallbacks times over the
	// interval.
	AutoFrequency    = -1.0
	DefaultCallbacks = 100
)

// Observer is called with the current point and a copy of the stepper's
// state. y must not be modified or retained past the call.
type Observer func(t float64, y dynamo.State, snap dynamo.Snapshot) dynamo.Signal

// Advancer moves an integration one accepted step forward.
type Advancer interface {
	Advance(t float64, y dynamo.State) (float64, dynamo.State, error)
	Snapshot() dynamo.Snapshot
}

type Options struct {
	Observer Observer
	// Frequency is the simulated time between observations. Zero observes
	// every accepted step, a negative value selects AutoFrequency.
	Frequency float64
	// Verify fails the run with a *dynamo.DivergenceError as soon as a
	// component stops being finite.
	Verify bool
	Logger *zerolog.Logger
}

func DefaultOptions() Options {
	return Options{Frequency: AutoFrequency, Verify: true}
}

func (o Options) logger() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}

func (o Options) interval(t0, t1 float64) float64 {
	if o.Frequency < 0 {
		return (t1 - t0) / DefaultCallbacks
	}
	return o.Frequency
}

// Drive advances y0 from t0 until t reaches t1 and returns the final time
// and state. The last step may overshoot t1.
//
// The observer is called once at t0 and then whenever the simulated time
// accumulated since the last observation reaches the frequency; the
// accumulator is decremented rather than reset so irregular steps keep the
// long-run cadence. Returning dynamo.Break from the observer ends the run
// without error. ctx is checked before every step.
func Drive(ctx context.Context, adv Advancer, y0 dynamo.State, t0, t1 float64, opts Options) (float64, dynamo.State, error) {
	if err := checkInterval(t0, t1); err != nil {
		return t0, nil, err
	}
	if math.IsNaN(opts.Frequency) {
		return t0, nil, fmt.Errorf("sim: observation frequency is NaN")
	}

	log := opts.logger()
	freq := opts.interval(t0, t1)
	t, y := t0, y0.Clone()

	if opts.Verify {
		if err := verify(t, y, t0, t1); err != nil {
			log.Error().Err(err).Msg("initial state is not finite")
			return t, y, err
		}
	}

	log.Debug().
		Float64("t0", t0).
		Float64("t1", t1).
		Float64("frequency", freq).
		Int("dim", len(y)).
		Msg("integration started")

	if opts.Observer != nil && opts.Observer(t, y, adv.Snapshot()) == dynamo.Break {
		log.Debug().Float64("t", t).Msg("integration stopped by observer")
		return t, y, nil
	}

	since := 0.0
	for step := 0; t < t1; step++ {
		select {
		case <-ctx.Done():
			return t, y, ctx.Err()
		default:
		}

		tNext, yNext, err := adv.Advance(t, y)
		if err != nil {
			return t, y, &dynamo.StepError{Step: step, Time: t, Wrapped: err}
		}
		if !(tNext > t) {
			return t, y, &dynamo.StepError{Step: step, Time: t, Wrapped: fmt.Errorf("time did not advance (got %g)", tNext)}
		}
		since += tNext - t
		t, y = tNext, yNext

		if opts.Verify {
			if err := verify(t, y, t0, t1); err != nil {
				log.Error().Err(err).Int("step", step).Msg("integration diverged")
				return t, y, err
			}
		}

		snap := adv.Snapshot()
		if snap.Implicit && !snap.Converged {
			log.Warn().
				Float64("t", t).
				Int("iterations", snap.Iterations).
				Float64("delta", snap.Error).
				Msg("newton iteration did not converge")
		}

		if since >= freq {
			since -= freq
			if opts.Observer != nil && opts.Observer(t, y, snap) == dynamo.Break {
				log.Debug().Float64("t", t).Msg("integration stopped by observer")
				return t, y, nil
			}
		}
	}

	log.Debug().Float64("t", t).Str("stepper", adv.Snapshot().String()).Msg("integration finished")
	return t, y, nil
}

// Solve integrates x' = f(t, x) with the stepper s.
func Solve[S dynamo.Stepper](ctx context.Context, f dynamo.Func, y0 dynamo.State, t0, t1 float64, s S, opts Options) (float64, dynamo.State, error) {
	if f == nil {
		return t0, nil, dynamo.ErrNilFunc
	}
	return Drive(ctx, bound[S]{f: f, s: s}, y0, t0, t1, opts)
}

// bound pairs a stepper with its right-hand side.
type bound[S dynamo.Stepper] struct {
	f dynamo.Func
	s S
}

func (b bound[S]) Advance(t float64, y dynamo.State) (float64, dynamo.State, error) {
	return b.s.Step(b.f, t, y)
}

func (b bound[S]) Snapshot() dynamo.Snapshot { return b.s.Snapshot() }

func checkInterval(t0, t1 float64) error {
	finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
	if !finite(t0) || !finite(t1) || t1 < t0 {
		return fmt.Errorf("%w: [%g, %g]", dynamo.ErrInvalidInterval, t0, t1)
	}
	return nil
}

func verify(t float64, y dynamo.State, t0, t1 float64) error {
	i := y.FirstNonFinite()
	if i < 0 {
		return nil
	}
	progress := 1.0
	if t1 > t0 {
		progress = (t - t0) / (t1 - t0)
	}
	return &dynamo.DivergenceError{Progress: progress, Time: t, Index: i, Value: y[i]}
}
