package integrators

import "github.com/san-kum/ivpsolve/internal/dynamo"

// RK4RE is classical RK4 with Richardson extrapolation: one step of 2τ and
// two steps of τ give a fifth-order result and an error estimate. Accepted
// steps advance time by 2τ.
type RK4RE struct {
	// Tau is the running step size; it is adapted after every trial.
	Tau     float64
	Control Control

	state   adaptiveState
	scratch rk4Scratch
}

func NewRK4RE() *RK4RE {
	return &RK4RE{Tau: DefaultTau, Control: DefaultControl()}
}

func (r *RK4RE) Step(f dynamo.Func, t float64, y dynamo.State) (float64, dynamo.State, error) {
	c := r.Control.withDefaults()
	r.state.begin(&r.Tau)

	k1, err := derive(f, t, y)
	if err != nil {
		return t, nil, err
	}

	return c.run(&r.state, t, &r.Tau, 4, func(tau float64) (dynamo.State, float64, float64, error) {
		w, err := r.scratch.step(f, t, y, k1, 2*tau)
		if err != nil {
			return nil, 0, 0, err
		}

		half, err := r.scratch.step(f, t, y, k1, tau)
		if err != nil {
			return nil, 0, 0, err
		}
		kh, err := derive(f, t+tau, half)
		if err != nil {
			return nil, 0, 0, err
		}
		y2, err := r.scratch.step(f, t+tau, half, kh, tau)
		if err != nil {
			return nil, 0, 0, err
		}

		est := relativeError(y2, w, 4)
		for i := range y2 {
			y2[i] += (y2[i] - w[i]) / 15
		}
		return y2, 2 * tau, est, nil
	})
}

func (r *RK4RE) Snapshot() dynamo.Snapshot {
	return r.state.snapshot("rk4re", r.Tau)
}

// Reset clears the counters and restores the initial step size.
func (r *RK4RE) Reset() { r.state.reset(&r.Tau) }
