package integrators

import "github.com/san-kum/ivpsolve/internal/dynamo"

// RK4 is the classical four-stage Runge-Kutta method.
type RK4 struct {
	Tau     float64
	scratch rk4Scratch
	steps   int
}

func NewRK4() *RK4 {
	return &RK4{Tau: DefaultTau}
}

func (r *RK4) Step(f dynamo.Func, t float64, y dynamo.State) (float64, dynamo.State, error) {
	tau := tauOrDefault(r.Tau)
	k1, err := derive(f, t, y)
	if err != nil {
		return t, nil, err
	}

	result, err := r.scratch.step(f, t, y, k1, tau)
	if err != nil {
		return t, nil, err
	}
	r.steps++
	return t + tau, result, nil
}

func (r *RK4) Snapshot() dynamo.Snapshot {
	return dynamo.Snapshot{Method: "rk4", TimeStep: tauOrDefault(r.Tau), Accepted: r.steps}
}

func (r *RK4) Reset() { r.steps = 0 }
