package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/ivpsolve/internal/dynamo"
)

// Decay is the scalar test equation y' = −λ(y − cos t) − sin t with
// solution cos t + (y0 − cos t0)·e^{−λ(t−t0)}. Large λ makes it stiff: the
// transient dies in 1/λ while the solution itself varies on a unit scale.
type Decay struct {
	Lambda float64
}

func NewDecay() *Decay { return &Decay{Lambda: 1} }

// NewStiffDecay returns the λ = 1000 variant explicit methods cannot
// integrate with τ > 2e-3.
func NewStiffDecay() *Decay { return &Decay{Lambda: 1000} }

func (d *Decay) StateDim() int { return 1 }

func (d *Decay) Derive(t float64, y dynamo.State) dynamo.State {
	return dynamo.State{-d.Lambda*(y[0]-math.Cos(t)) - math.Sin(t)}
}

func (d *Decay) DefaultState() dynamo.State { return dynamo.State{2} }

func (d *Decay) Solution(t0 float64, y0 dynamo.State, t float64) dynamo.State {
	return dynamo.State{math.Cos(t) + (y0[0]-math.Cos(t0))*math.Exp(-d.Lambda*(t-t0))}
}

func (d *Decay) GetParams() map[string]float64 {
	return map[string]float64{"lambda": d.Lambda}
}

func (d *Decay) SetParam(name string, value float64) error {
	if name != "lambda" {
		return fmt.Errorf("unknown param: %s", name)
	}
	if value < 0 {
		return fmt.Errorf("lambda must be non-negative: %w", dynamo.ErrParameterBounds)
	}
	d.Lambda = value
	return nil
}
