package integrators

import (
	"fmt"

	"github.com/san-kum/ivpsolve/internal/dynamo"
)

// Verlet is velocity Verlet for states laid out as [q..., p...] where
// q' = p. Only the second half of f, the acceleration, is used.
type Verlet struct {
	Tau     float64
	scratch dynamo.State
	steps   int
}

func NewVerlet() *Verlet {
	return &Verlet{Tau: DefaultTau}
}

func (v *Verlet) Step(f dynamo.Func, t float64, y dynamo.State) (float64, dynamo.State, error) {
	half, err := phaseSplit(y)
	if err != nil {
		return t, nil, err
	}
	dt := tauOrDefault(v.Tau)
	v.scratch = ensure(v.scratch, len(y))

	dx, err := derive(f, t, y)
	if err != nil {
		return t, nil, err
	}

	result := make(dynamo.State, len(y))
	dt2 := dt * dt
	for i := 0; i < half; i++ {
		result[i] = y[i] + y[half+i]*dt + 0.5*dx[half+i]*dt2
		v.scratch[i] = result[i]
		v.scratch[half+i] = y[half+i]
	}

	dxNew, err := derive(f, t+dt, v.scratch)
	if err != nil {
		return t, nil, err
	}
	halfDt := 0.5 * dt
	for i := 0; i < half; i++ {
		result[half+i] = y[half+i] + (dx[half+i]+dxNew[half+i])*halfDt
	}

	v.steps++
	return t + dt, result, nil
}

func (v *Verlet) Snapshot() dynamo.Snapshot {
	return dynamo.Snapshot{Method: "verlet", TimeStep: tauOrDefault(v.Tau), Accepted: v.steps}
}

func (v *Verlet) Reset() { v.steps = 0 }

// Leapfrog is the kick-drift-kick scheme on [q..., p...] states.
type Leapfrog struct {
	Tau     float64
	scratch dynamo.State
	steps   int
}

func NewLeapfrog() *Leapfrog {
	return &Leapfrog{Tau: DefaultTau}
}

func (l *Leapfrog) Step(f dynamo.Func, t float64, y dynamo.State) (float64, dynamo.State, error) {
	half, err := phaseSplit(y)
	if err != nil {
		return t, nil, err
	}
	dt := tauOrDefault(l.Tau)
	l.scratch = ensure(l.scratch, len(y))

	dx, err := derive(f, t, y)
	if err != nil {
		return t, nil, err
	}

	result := make(dynamo.State, len(y))
	halfDt := 0.5 * dt
	for i := 0; i < half; i++ {
		l.scratch[half+i] = y[half+i] + dx[half+i]*halfDt
	}
	for i := 0; i < half; i++ {
		result[i] = y[i] + l.scratch[half+i]*dt
		l.scratch[i] = result[i]
	}

	dxNew, err := derive(f, t+dt, l.scratch)
	if err != nil {
		return t, nil, err
	}
	for i := 0; i < half; i++ {
		result[half+i] = l.scratch[half+i] + dxNew[half+i]*halfDt
	}

	l.steps++
	return t + dt, result, nil
}

func (l *Leapfrog) Snapshot() dynamo.Snapshot {
	return dynamo.Snapshot{Method: "leapfrog", TimeStep: tauOrDefault(l.Tau), Accepted: l.steps}
}

func (l *Leapfrog) Reset() { l.steps = 0 }

func phaseSplit(y dynamo.State) (int, error) {
	if len(y)%2 != 0 {
		return 0, fmt.Errorf("phase-space state needs even dimension, got %d: %w", len(y), dynamo.ErrDimensionMismatch)
	}
	return len(y) / 2, nil
}
