package integrators

import "github.com/san-kum/ivpsolve/internal/dynamo"

// Classical RK4 tableau.
const (
	rk4C2  = 1.0 / 2.0
	rk4C3  = 1.0 / 2.0
	rk4A21 = 1.0 / 2.0
	rk4A32 = 1.0 / 2.0
	rk4A43 = 1.0
	rk4B   = 1.0 / 6.0
)

// Dormand-Prince 4(5) coefficients. Row 7 is the 5th-order solution (FSAL),
// b holds the embedded 4th-order weights.
const (
	dpC2 = 1.0 / 5.0
	dpC3 = 3.0 / 10.0
	dpC4 = 4.0 / 5.0
	dpC5 = 8.0 / 9.0

	dpA21 = 1.0 / 5.0
	dpA31 = 3.0 / 40.0
	dpA32 = 9.0 / 40.0
	dpA41 = 44.0 / 45.0
	dpA42 = -56.0 / 15.0
	dpA43 = 32.0 / 9.0
	dpA51 = 19372.0 / 6561.0
	dpA52 = -25360.0 / 2187.0
	dpA53 = 64448.0 / 6561.0
	dpA54 = -212.0 / 729.0
	dpA61 = 9017.0 / 3168.0
	dpA62 = -355.0 / 33.0
	dpA63 = 46732.0 / 5247.0
	dpA64 = 49.0 / 176.0
	dpA65 = -5103.0 / 18656.0
	dpA71 = 35.0 / 384.0
	dpA73 = 500.0 / 1113.0
	dpA74 = 125.0 / 192.0
	dpA75 = -2187.0 / 6784.0
	dpA76 = 11.0 / 84.0

	dpB1 = 5179.0 / 57600.0
	dpB3 = 7571.0 / 16695.0
	dpB4 = 393.0 / 640.0
	dpB5 = -92097.0 / 339200.0
	dpB6 = 187.0 / 2100.0
	dpB7 = 1.0 / 40.0
)

// rk4Scratch holds the stage buffers of one classical RK4 step.
type rk4Scratch struct {
	k2, k3, k4 dynamo.State
	tmp        dynamo.State
}

func (s *rk4Scratch) ensure(n int) {
	s.k2 = ensure(s.k2, n)
	s.k3 = ensure(s.k3, n)
	s.k4 = ensure(s.k4, n)
	s.tmp = ensure(s.tmp, n)
}

// step advances y by tau given k1 = f(t, y) and returns a fresh state.
func (s *rk4Scratch) step(f dynamo.Func, t float64, y, k1 dynamo.State, tau float64) (dynamo.State, error) {
	n := len(y)
	s.ensure(n)

	axpy(s.tmp, y, tau*rk4A21, k1)
	k2, err := derive(f, t+tau*rk4C2, s.tmp)
	if err != nil {
		return nil, err
	}
	copy(s.k2, k2)

	axpy(s.tmp, y, tau*rk4A32, s.k2)
	k3, err := derive(f, t+tau*rk4C3, s.tmp)
	if err != nil {
		return nil, err
	}
	copy(s.k3, k3)

	axpy(s.tmp, y, tau*rk4A43, s.k3)
	k4, err := derive(f, t+tau, s.tmp)
	if err != nil {
		return nil, err
	}
	copy(s.k4, k4)

	result := make(dynamo.State, n)
	h := tau * rk4B
	for i := 0; i < n; i++ {
		result[i] = y[i] + h*(k1[i]+2*s.k2[i]+2*s.k3[i]+s.k4[i])
	}
	return result, nil
}
