package physics

import (
	"fmt"
	"math"

	"github.com/san-kum/ivpsolve/internal/dynamo"
)

// ThreeBody implements a softened planar gravitational three-body problem.
// State: [x1, y1, x2, y2, x3, y3, vx1, vy1, vx2, vy2, vx3, vy3]
// Positions come first so the phase-space steppers (Verlet, Leapfrog)
// apply directly.
type ThreeBody struct {
	M         [3]float64 // Masses
	G         float64    // Gravitational constant
	Softening float64    // Prevent singularities
}

func NewThreeBody() *ThreeBody {
	return &ThreeBody{
		M:         [3]float64{1, 1, 1},
		G:         1.0,
		Softening: 0.1,
	}
}

func (b *ThreeBody) StateDim() int { return 12 }

func (b *ThreeBody) Derive(_ float64, state dynamo.State) dynamo.State {
	d := make(dynamo.State, 12)
	copy(d[:6], state[6:])

	eps2 := b.Softening * b.Softening
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			dx := state[2*j] - state[2*i]
			dy := state[2*j+1] - state[2*i+1]
			r := math.Sqrt(dx*dx + dy*dy + eps2)
			inv := b.G / (r * r * r)

			d[6+2*i] += b.M[j] * dx * inv
			d[6+2*i+1] += b.M[j] * dy * inv
			d[6+2*j] -= b.M[i] * dx * inv
			d[6+2*j+1] -= b.M[i] * dy * inv
		}
	}
	return d
}

func (b *ThreeBody) DefaultState() dynamo.State {
	// Figure-8 solution initial conditions (approximately)
	return dynamo.State{
		-1.0, 0.0, 1.0, 0.0, 0.0, 0.0,
		0.347, 0.532, 0.347, 0.532, -0.694, -1.064,
	}
}

// Energy is kinetic plus softened potential energy.
func (b *ThreeBody) Energy(state dynamo.State) float64 {
	e := 0.0
	for i := 0; i < 3; i++ {
		vx, vy := state[6+2*i], state[6+2*i+1]
		e += 0.5 * b.M[i] * (vx*vx + vy*vy)
	}
	eps2 := b.Softening * b.Softening
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			dx := state[2*j] - state[2*i]
			dy := state[2*j+1] - state[2*i+1]
			e -= b.G * b.M[i] * b.M[j] / math.Sqrt(dx*dx+dy*dy+eps2)
		}
	}
	return e
}

// GetParams implements dynamo.Configurable
func (b *ThreeBody) GetParams() map[string]float64 {
	return map[string]float64{
		"m1":        b.M[0],
		"m2":        b.M[1],
		"m3":        b.M[2],
		"g":         b.G,
		"softening": b.Softening,
	}
}

// SetParam implements dynamo.Configurable
func (b *ThreeBody) SetParam(name string, value float64) error {
	switch name {
	case "m1":
		b.M[0] = value
	case "m2":
		b.M[1] = value
	case "m3":
		b.M[2] = value
	case "g":
		b.G = value
	case "softening":
		b.Softening = value
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	return nil
}
