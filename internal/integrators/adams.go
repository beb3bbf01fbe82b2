package integrators

import "github.com/san-kum/ivpsolve/internal/dynamo"

const adamsHistory = 4

// AdamsRK4 is the 4-step Adams-Bashforth method. The first four calls are
// RK4 steps that fill the history of right-hand-side evaluations.
type AdamsRK4 struct {
	Tau float64

	// fm[0] is the most recent evaluation (fm1), fm[3] the oldest (fm4).
	fm        [adamsHistory]dynamo.State
	bootstrap int
	scratch   rk4Scratch
	steps     int
}

func NewAdamsRK4() *AdamsRK4 {
	return &AdamsRK4{Tau: DefaultTau}
}

func (a *AdamsRK4) Step(f dynamo.Func, t float64, y dynamo.State) (float64, dynamo.State, error) {
	tau := tauOrDefault(a.Tau)

	if a.bootstrap < adamsHistory {
		k1, err := derive(f, t, y)
		if err != nil {
			return t, nil, err
		}
		next, err := a.scratch.step(f, t, y, k1, tau)
		if err != nil {
			return t, nil, err
		}
		// fm4 is filled first, fm1 last; the shift on the next Adams call
		// drops the oldest so the ring always spans consecutive points
		a.fm[adamsHistory-1-a.bootstrap] = k1.Clone()
		a.bootstrap++
		a.steps++
		return t + tau, next, nil
	}

	fm1, err := derive(f, t, y)
	if err != nil {
		return t, nil, err
	}
	copy(a.fm[1:], a.fm[:adamsHistory-1])
	a.fm[0] = fm1.Clone()

	h := tau / 24.0
	result := make(dynamo.State, len(y))
	for i := range result {
		result[i] = y[i] + h*(55*a.fm[0][i]-59*a.fm[1][i]+37*a.fm[2][i]-9*a.fm[3][i])
	}
	a.steps++
	return t + tau, result, nil
}

func (a *AdamsRK4) Snapshot() dynamo.Snapshot {
	return dynamo.Snapshot{Method: "adams", TimeStep: tauOrDefault(a.Tau), Accepted: a.steps}
}

// Reset drops the history so the next call bootstraps again.
func (a *AdamsRK4) Reset() {
	a.fm = [adamsHistory]dynamo.State{}
	a.bootstrap = 0
	a.steps = 0
}
