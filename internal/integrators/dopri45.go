package integrators

import (
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/ivpsolve/internal/dynamo"
)

// DOPRI45 is the Dormand-Prince 4(5) embedded pair. The fifth-order
// solution is kept; the fourth-order one only feeds the error estimate.
type DOPRI45 struct {
	// Tau is the running step size; it is adapted after every trial.
	Tau     float64
	Control Control

	state adaptiveState

	// first-same-as-last: k7 of an accepted step is k1 of the next one
	fsalT float64
	fsalY dynamo.State
	fsalK dynamo.State
}

func NewDOPRI45() *DOPRI45 {
	return &DOPRI45{Tau: DefaultTau, Control: DefaultControl()}
}

func (d *DOPRI45) Step(f dynamo.Func, t float64, y dynamo.State) (float64, dynamo.State, error) {
	c := d.Control.withDefaults()
	d.state.begin(&d.Tau)

	var k1 dynamo.State
	if d.fsalK != nil && d.fsalT == t && floats.Equal(d.fsalY, y) {
		k1 = d.fsalK
	} else {
		var err error
		if k1, err = derive(f, t, y); err != nil {
			return t, nil, err
		}
	}

	var k7 dynamo.State
	tNew, yNew, err := c.run(&d.state, t, &d.Tau, 5, func(tau float64) (dynamo.State, float64, float64, error) {
		yHat, y4, k, err := dopriStages(f, t, y, k1, tau)
		if err != nil {
			return nil, 0, 0, err
		}
		k7 = k
		return yHat, tau, relativeError(yHat, y4, 5), nil
	})
	if err != nil {
		return tNew, nil, err
	}

	d.fsalT, d.fsalY, d.fsalK = tNew, yNew.Clone(), k7
	return tNew, yNew, nil
}

// dopriStages evaluates stages k2..k7 and returns the fifth-order solution, the
// embedded fourth-order solution and k7.
func dopriStages(f dynamo.Func, t float64, x, k1 dynamo.State, dt float64) (yHat, y4, k7 dynamo.State, err error) {
	n := len(x)
	stage := make(dynamo.State, n)

	for i := 0; i < n; i++ {
		stage[i] = x[i] + dt*dpA21*k1[i]
	}
	k2, err := derive(f, t+dpC2*dt, stage)
	if err != nil {
		return nil, nil, nil, err
	}

	for i := 0; i < n; i++ {
		stage[i] = x[i] + dt*(dpA31*k1[i]+dpA32*k2[i])
	}
	k3, err := derive(f, t+dpC3*dt, stage)
	if err != nil {
		return nil, nil, nil, err
	}

	for i := 0; i < n; i++ {
		stage[i] = x[i] + dt*(dpA41*k1[i]+dpA42*k2[i]+dpA43*k3[i])
	}
	k4, err := derive(f, t+dpC4*dt, stage)
	if err != nil {
		return nil, nil, nil, err
	}

	for i := 0; i < n; i++ {
		stage[i] = x[i] + dt*(dpA51*k1[i]+dpA52*k2[i]+dpA53*k3[i]+dpA54*k4[i])
	}
	k5, err := derive(f, t+dpC5*dt, stage)
	if err != nil {
		return nil, nil, nil, err
	}

	for i := 0; i < n; i++ {
		stage[i] = x[i] + dt*(dpA61*k1[i]+dpA62*k2[i]+dpA63*k3[i]+dpA64*k4[i]+dpA65*k5[i])
	}
	k6, err := derive(f, t+dt, stage)
	if err != nil {
		return nil, nil, nil, err
	}

	yHat = make(dynamo.State, n)
	for i := 0; i < n; i++ {
		yHat[i] = x[i] + dt*(dpA71*k1[i]+dpA73*k3[i]+dpA74*k4[i]+dpA75*k5[i]+dpA76*k6[i])
	}
	k7, err = derive(f, t+dt, yHat)
	if err != nil {
		return nil, nil, nil, err
	}

	y4 = make(dynamo.State, n)
	for i := 0; i < n; i++ {
		y4[i] = x[i] + dt*(dpB1*k1[i]+dpB3*k3[i]+dpB4*k4[i]+dpB5*k5[i]+dpB6*k6[i]+dpB7*k7[i])
	}
	return yHat, y4, k7, nil
}

func (d *DOPRI45) Snapshot() dynamo.Snapshot {
	return d.state.snapshot("dopri45", d.Tau)
}

// Reset clears the counters, the cached stage and restores the initial step size.
func (d *DOPRI45) Reset() {
	d.state.reset(&d.Tau)
	d.fsalY, d.fsalK = nil, nil
}
