package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/ivpsolve/internal/dynamo"
)

// Exponent is a nonlinear test problem with a known solution
//
//	y(t) = (exp(sin t²), exp(cos t²))
//
// Equations:
//
//	dy0/dt =  2t·y0·ln(max(y1, floor))
//	dy1/dt = −2t·y1·ln(max(y0, floor))
//
// Its oscillation speeds up with t, which makes it a good workload for
// step-size control.
type Exponent struct {
	Floor float64
	Start float64
}

func NewExponent() *Exponent {
	return &Exponent{Floor: 1e-3, Start: 0.1}
}

func (e *Exponent) StateDim() int { return 2 }

func (e *Exponent) Derive(t float64, y dynamo.State) dynamo.State {
	return dynamo.State{
		2 * t * y[0] * math.Log(math.Max(y[1], e.Floor)),
		-2 * t * y[1] * math.Log(math.Max(y[0], e.Floor)),
	}
}

// DefaultState is the exact solution at Start.
func (e *Exponent) DefaultState() dynamo.State { return e.at(e.Start) }

// Solution ignores (t0, y0): the problem has a single tracked trajectory.
func (e *Exponent) Solution(_ float64, _ dynamo.State, t float64) dynamo.State {
	return e.at(t)
}

func (e *Exponent) at(t float64) dynamo.State {
	t2 := t * t
	return dynamo.State{math.Exp(math.Sin(t2)), math.Exp(math.Cos(t2))}
}

func (e *Exponent) GetParams() map[string]float64 {
	return map[string]float64{"floor": e.Floor, "start": e.Start}
}

func (e *Exponent) SetParam(name string, value float64) error {
	switch name {
	case "floor":
		if value <= 0 {
			return fmt.Errorf("floor must be positive: %w", dynamo.ErrParameterBounds)
		}
		e.Floor = value
	case "start":
		e.Start = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
