package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/ivpsolve/internal/dynamo"
)

// DoubleWell models a particle in the bistable potential A(x² − B)².
type DoubleWell struct {
	A, B, Mass, Damping float64
}

func NewDoubleWell() *DoubleWell {
	return &DoubleWell{1.0, 1.0, 1.0, 0.1}
}

func (d *DoubleWell) StateDim() int { return 2 }

func (d *DoubleWell) Derive(_ float64, s dynamo.State) dynamo.State {
	x, v := s[0], s[1]
	return dynamo.State{v, (-4*d.A*x*(x*x-d.B) - d.Damping*v) / d.Mass}
}

func (d *DoubleWell) DefaultState() dynamo.State { return dynamo.State{math.Sqrt(d.B) + 0.1, 0} }

func (d *DoubleWell) Energy(s dynamo.State) float64 {
	x, v := s[0], s[1]
	return 0.5*d.Mass*v*v + d.A*math.Pow(x*x-d.B, 2)
}

func (d *DoubleWell) GetParams() map[string]float64 {
	return map[string]float64{"A": d.A, "B": d.B, "mass": d.Mass, "damping": d.Damping}
}

func (d *DoubleWell) SetParam(n string, v float64) error {
	switch n {
	case "A":
		d.A = v
	case "B":
		if v < 0 {
			return fmt.Errorf("B must be non-negative: %w", dynamo.ErrParameterBounds)
		}
		d.B = v
	case "mass":
		d.Mass = v
	case "damping":
		d.Damping = v
	default:
		return fmt.Errorf("unknown param: %s", n)
	}
	return nil
}
