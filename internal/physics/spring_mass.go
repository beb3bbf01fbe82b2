package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/ivpsolve/internal/dynamo"
)

const (
	DefaultStiffness = 2.0
	DefaultMass      = 7.0
)

// SpringMass is a damped harmonic oscillator m·d²x/dt² = −k·x − c·dx/dt.
// State: [x, v]
type SpringMass struct {
	Stiffness float64
	Mass      float64
	Damping   float64
}

func NewSpringMass() *SpringMass {
	return &SpringMass{Stiffness: DefaultStiffness, Mass: DefaultMass}
}

func (s *SpringMass) StateDim() int { return 2 }

func (s *SpringMass) Derive(_ float64, y dynamo.State) dynamo.State {
	x, v := y[0], y[1]
	return dynamo.State{v, (-s.Stiffness*x - s.Damping*v) / s.Mass}
}

func (s *SpringMass) DefaultState() dynamo.State { return dynamo.State{1, 0} }

func (s *SpringMass) Energy(y dynamo.State) float64 {
	x, v := y[0], y[1]
	return 0.5*s.Mass*v*v + 0.5*s.Stiffness*x*x
}

// Solution is exact for the undamped and underdamped cases (c² < 4km).
func (s *SpringMass) Solution(t0 float64, y0 dynamo.State, t float64) dynamo.State {
	gamma := s.Damping / (2 * s.Mass)
	wd := math.Sqrt(s.Stiffness/s.Mass - gamma*gamma)
	dt := t - t0

	a := y0[0]
	b := (y0[1] + gamma*y0[0]) / wd
	decay := math.Exp(-gamma * dt)
	c, sn := math.Cos(wd*dt), math.Sin(wd*dt)

	x := decay * (a*c + b*sn)
	v := decay * ((b*wd-gamma*a)*c - (a*wd+gamma*b)*sn)
	return dynamo.State{x, v}
}

func (s *SpringMass) GetParams() map[string]float64 {
	return map[string]float64{
		"stiffness": s.Stiffness,
		"mass":      s.Mass,
		"damping":   s.Damping,
	}
}

func (s *SpringMass) SetParam(name string, value float64) error {
	switch name {
	case "stiffness":
		if value <= 0 {
			return fmt.Errorf("stiffness must be positive: %w", dynamo.ErrParameterBounds)
		}
		s.Stiffness = value
	case "mass":
		if value <= 0 {
			return fmt.Errorf("mass must be positive: %w", dynamo.ErrParameterBounds)
		}
		s.Mass = value
	case "damping":
		if value < 0 {
			return fmt.Errorf("damping must be non-negative: %w", dynamo.ErrParameterBounds)
		}
		s.Damping = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
