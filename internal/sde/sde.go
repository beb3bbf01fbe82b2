// Package sde integrates stochastic differential equations
//
//	dx = A(t, x) dt + B(t, x) dW
//
// with diagonal noise: every component has its own Wiener increment and
// B(t, x) is applied component-wise. Integration runs through the same
// driving loop as the deterministic solvers, so observers, cadence and
// divergence checks behave identically.
package sde

import (
	"context"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/ivpsolve/internal/dynamo"
	"github.com/san-kum/ivpsolve/internal/sim"
)

// System supplies drift and diffusion.
type System interface {
	Drift(t float64, y dynamo.State) dynamo.State
	Diffusion(t float64, y dynamo.State) dynamo.State
	StateDim() int
	DefaultState() dynamo.State
}

// Noise yields independent standard normal variates.
type Noise interface {
	Normal() float64
}

const DefaultSeed uint64 = 42

// pcgStream decorrelates the PCG increment from the seed.
const pcgStream = 0x9e3779b97f4a7c15

type gaussian struct {
	dist distuv.Normal
}

func (g *gaussian) Normal() float64 { return g.dist.Rand() }

// NewNoise returns a reproducible N(0, 1) source seeded with seed.
func NewNoise(seed uint64) Noise {
	return &gaussian{dist: distuv.Normal{
		Mu:    0,
		Sigma: 1,
		Src:   rand.NewPCG(seed, seed^pcgStream),
	}}
}

// Stepper advances an SDE by one step, drawing one variate per component.
type Stepper interface {
	Step(a, b dynamo.Func, t float64, y dynamo.State, noise Noise) (float64, dynamo.State, error)
	Snapshot() dynamo.Snapshot
}

// Solve integrates the SDE with drift a and diffusion b from (t0, y0) until
// t1. A nil noise source is seeded with DefaultSeed.
func Solve(ctx context.Context, a, b dynamo.Func, y0 dynamo.State, t0, t1 float64, s Stepper, noise Noise, opts sim.Options) (float64, dynamo.State, error) {
	if a == nil || b == nil {
		return t0, nil, dynamo.ErrNilFunc
	}
	if noise == nil {
		noise = NewNoise(DefaultSeed)
	}
	return sim.Drive(ctx, &advancer{a: a, b: b, s: s, noise: noise}, y0, t0, t1, opts)
}

// SolveSystem is Solve for a System starting at its default state when y0
// is nil.
func SolveSystem(ctx context.Context, sys System, y0 dynamo.State, t0, t1 float64, s Stepper, noise Noise, opts sim.Options) (float64, dynamo.State, error) {
	if y0 == nil {
		y0 = sys.DefaultState()
	}
	return Solve(ctx, sys.Drift, sys.Diffusion, y0, t0, t1, s, noise, opts)
}

type advancer struct {
	a, b  dynamo.Func
	s     Stepper
	noise Noise
}

func (v *advancer) Advance(t float64, y dynamo.State) (float64, dynamo.State, error) {
	return v.s.Step(v.a, v.b, t, y, v.noise)
}

func (v *advancer) Snapshot() dynamo.Snapshot { return v.s.Snapshot() }

func evaluate(f dynamo.Func, t float64, y dynamo.State) (dynamo.State, error) {
	v := f(t, y)
	if err := dynamo.CheckDim(y, v); err != nil {
		return nil, err
	}
	return v, nil
}

const DefaultTau = 1e-3

func tauOrDefault(tau float64) float64 {
	if tau <= 0 {
		return DefaultTau
	}
	return tau
}

// EulerMaruyama is y ← y + τ·A(t, y) + B(t, y)·ΔW with ΔW ~ N(0, τ).
type EulerMaruyama struct {
	Tau   float64
	steps int
}

func NewEulerMaruyama() *EulerMaruyama { return &EulerMaruyama{Tau: DefaultTau} }

func (e *EulerMaruyama) Step(a, b dynamo.Func, t float64, y dynamo.State, noise Noise) (float64, dynamo.State, error) {
	tau := tauOrDefault(e.Tau)
	drift, err := evaluate(a, t, y)
	if err != nil {
		return t, nil, err
	}
	diffusion, err := evaluate(b, t, y)
	if err != nil {
		return t, nil, err
	}

	sq := math.Sqrt(tau)
	next := make(dynamo.State, len(y))
	for i := range next {
		dW := sq * noise.Normal()
		next[i] = y[i] + tau*drift[i] + diffusion[i]*dW
	}
	e.steps++
	return t + tau, next, nil
}

func (e *EulerMaruyama) Snapshot() dynamo.Snapshot {
	return dynamo.Snapshot{Method: "euler-maruyama", TimeStep: tauOrDefault(e.Tau), Accepted: e.steps}
}

func (e *EulerMaruyama) Reset() { e.steps = 0 }

// Milstein is the derivative-free Milstein scheme (Kloeden & Platen,
// eq. 11.1.5). The B'B correction is replaced by a difference of B at the
// supporting value Ŷ = y + τA + √τ·B, so only B itself is needed.
type Milstein struct {
	Tau   float64
	steps int
}

func NewMilstein() *Milstein { return &Milstein{Tau: DefaultTau} }

func (m *Milstein) Step(a, b dynamo.Func, t float64, y dynamo.State, noise Noise) (float64, dynamo.State, error) {
	tau := tauOrDefault(m.Tau)
	drift, err := evaluate(a, t, y)
	if err != nil {
		return t, nil, err
	}
	diffusion, err := evaluate(b, t, y)
	if err != nil {
		return t, nil, err
	}

	sq := math.Sqrt(tau)
	support := make(dynamo.State, len(y))
	for i := range support {
		support[i] = y[i] + tau*drift[i] + sq*diffusion[i]
	}
	shifted, err := evaluate(b, t, support)
	if err != nil {
		return t, nil, err
	}

	next := make(dynamo.State, len(y))
	for i := range next {
		dW := sq * noise.Normal()
		next[i] = y[i] + tau*drift[i] + diffusion[i]*dW +
			0.5*(shifted[i]-diffusion[i])*(dW*dW-tau)/sq
	}
	m.steps++
	return t + tau, next, nil
}

func (m *Milstein) Snapshot() dynamo.Snapshot {
	return dynamo.Snapshot{Method: "milstein", TimeStep: tauOrDefault(m.Tau), Accepted: m.steps}
}

func (m *Milstein) Reset() { m.steps = 0 }
