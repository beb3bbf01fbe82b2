package integrators

import (
	"fmt"

	"github.com/san-kum/ivpsolve/internal/dynamo"
	"github.com/san-kum/ivpsolve/internal/nonlinear"
)

// DefaultNewtonPrecision is the Newton stopping distance used by the implicit
// steppers, tighter than the nonlinear package default.
const DefaultNewtonPrecision = 1e-12

func newtonSettings() nonlinear.Settings {
	s := nonlinear.DefaultSettings()
	s.Precision = DefaultNewtonPrecision
	return s
}

// ImplicitEuler solves y1 − y0 − τ·f(t+τ, y1) = 0 with one Newton solve per
// step, starting from y0.
type ImplicitEuler struct {
	Tau    float64
	Newton nonlinear.Settings

	state implicitState
}

func NewImplicitEuler() *ImplicitEuler {
	return &ImplicitEuler{Tau: DefaultTau, Newton: newtonSettings()}
}

func (e *ImplicitEuler) Step(f dynamo.Func, t float64, y dynamo.State) (float64, dynamo.State, error) {
	tau := tauOrDefault(e.Tau)
	next, err := e.state.solve(f, t+tau, y, e.Newton, func(r, x, fx dynamo.State) {
		for i := range r {
			r[i] = x[i] - y[i] - tau*fx[i]
		}
	})
	if err != nil {
		return t, nil, fmt.Errorf("implicit euler: %w", err)
	}
	return t + tau, next, nil
}

func (e *ImplicitEuler) Snapshot() dynamo.Snapshot {
	return e.state.snapshot("implicit-euler", tauOrDefault(e.Tau))
}

func (e *ImplicitEuler) Reset() { e.state = implicitState{} }

// SymplecticEuler is the implicit trapezoidal rule
// y1 − y0 − τ/2·(f(t+τ, y1) + f(t, y0)) = 0. It is symmetric and conserves
// quadratic invariants of linear systems.
type SymplecticEuler struct {
	Tau    float64
	Newton nonlinear.Settings

	state implicitState
}

func NewSymplecticEuler() *SymplecticEuler {
	return &SymplecticEuler{Tau: DefaultTau, Newton: newtonSettings()}
}

func (s *SymplecticEuler) Step(f dynamo.Func, t float64, y dynamo.State) (float64, dynamo.State, error) {
	tau := tauOrDefault(s.Tau)
	f0, err := derive(f, t, y)
	if err != nil {
		return t, nil, err
	}

	half := tau / 2
	next, err := s.state.solve(f, t+tau, y, s.Newton, func(r, x, fx dynamo.State) {
		for i := range r {
			r[i] = x[i] - y[i] - half*(fx[i]+f0[i])
		}
	})
	if err != nil {
		return t, nil, fmt.Errorf("trapezoidal: %w", err)
	}
	return t + tau, next, nil
}

func (s *SymplecticEuler) Snapshot() dynamo.Snapshot {
	return s.state.snapshot("symplectic-euler", tauOrDefault(s.Tau))
}

func (s *SymplecticEuler) Reset() { s.state = implicitState{} }

type implicitState struct {
	steps int
	last  nonlinear.Result
}

// solve runs Newton on the residual built by fill, which receives the output
// buffer, the candidate x and f(t1, x). A non-finite iterate is returned as
// the new state for the caller's divergence check.
func (st *implicitState) solve(f dynamo.Func, t1 float64, y dynamo.State, settings nonlinear.Settings,
	fill func(r, x, fx dynamo.State)) (dynamo.State, error) {
	var dimErr error
	g := func(x []float64) []float64 {
		r := make(dynamo.State, len(x))
		fx, err := derive(f, t1, x)
		if err != nil {
			// a zero residual ends the iteration; the error is reported below
			if dimErr == nil {
				dimErr = err
			}
			return r
		}
		fill(r, x, fx)
		return r
	}

	res, err := nonlinear.Solve(g, y, settings)
	if dimErr != nil {
		return nil, dimErr
	}
	if err != nil {
		return nil, err
	}
	st.last = res
	st.steps++
	return dynamo.State(res.X), nil
}

func (st implicitState) snapshot(method string, tau float64) dynamo.Snapshot {
	return dynamo.Snapshot{
		Method:     method,
		TimeStep:   tau,
		Accepted:   st.steps,
		Error:      st.last.Delta,
		Iterations: st.last.Iterations,
		Converged:  st.last.Converged,
		Implicit:   true,
	}
}
