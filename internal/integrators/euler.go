package integrators

import "github.com/san-kum/ivpsolve/internal/dynamo"

// Euler is the explicit first-order method y ← y + τ·f(t, y).
type Euler struct {
	Tau   float64
	steps int
}

func NewEuler() *Euler {
	return &Euler{Tau: DefaultTau}
}

func (e *Euler) Step(f dynamo.Func, t float64, y dynamo.State) (float64, dynamo.State, error) {
	tau := tauOrDefault(e.Tau)
	dy, err := derive(f, t, y)
	if err != nil {
		return t, nil, err
	}

	result := make(dynamo.State, len(y))
	axpy(result, y, tau, dy)
	e.steps++
	return t + tau, result, nil
}

func (e *Euler) Snapshot() dynamo.Snapshot {
	return dynamo.Snapshot{Method: "euler", TimeStep: tauOrDefault(e.Tau), Accepted: e.steps}
}

func (e *Euler) Reset() { e.steps = 0 }
