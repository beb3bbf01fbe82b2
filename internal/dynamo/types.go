package dynamo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	return s.FirstNonFinite() < 0
}

// FirstNonFinite returns the index of the first NaN or infinite component, or -1.
func (s State) FirstNonFinite() int {
	for i, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return i
		}
	}
	return -1
}

func (s State) Norm() float64 {
	if len(s) == 0 {
		return 0
	}
	return floats.Norm(s, 2)
}

func (s State) MaxNorm() float64 {
	if len(s) == 0 {
		return 0
	}
	return floats.Norm(s, math.Inf(1))
}

func (s State) Add(other State) State {
	result := s.Clone()
	floats.Add(result, other)
	return result
}

func (s State) Sub(other State) State {
	result := s.Clone()
	floats.Sub(result, other)
	return result
}

func (s State) Scale(factor float64) State {
	result := s.Clone()
	floats.Scale(factor, result)
	return result
}

// AddScaled returns s + alpha*other.
func (s State) AddScaled(alpha float64, other State) State {
	result := s.Clone()
	floats.AddScaled(result, alpha, other)
	return result
}

// Func is the right-hand side of x'(t) = f(t, x). It must not retain or
// mutate y and must return a newly allocated derivative.
type Func func(t float64, y State) State

// Stepper advances (t, y) by one accepted step and reports the new time.
// Implementations keep running state (counters, histories) and are not
// safe for concurrent use.
type Stepper interface {
	Step(f Func, t float64, y State) (float64, State, error)
	Snapshot() Snapshot
}

// Resetter is implemented by steppers carrying running state between calls.
type Resetter interface {
	Reset()
}

// Snapshot is a read-only copy of a stepper's auxiliary state.
type Snapshot struct {
	Method     string
	TimeStep   float64
	Accepted   int
	Rejected   int
	Error      float64
	Iterations int
	Converged  bool
	Adaptive   bool
	Implicit   bool
}

func (s Snapshot) String() string {
	switch {
	case s.Adaptive:
		return fmt.Sprintf("%s tau=%.3e err=%.3e accepted=%d rejected=%d", s.Method, s.TimeStep, s.Error, s.Accepted, s.Rejected)
	case s.Implicit:
		return fmt.Sprintf("%s tau=%.3e newton=%d converged=%t", s.Method, s.TimeStep, s.Iterations, s.Converged)
	default:
		return fmt.Sprintf("%s tau=%.3e", s.Method, s.TimeStep)
	}
}

// Signal is returned by observers to continue or stop an integration.
type Signal int

const (
	Continue Signal = iota
	Break
)

func (s Signal) String() string {
	if s == Break {
		return "break"
	}
	return "continue"
}

// System is an initial-value problem together with a default starting point.
type System interface {
	Derive(t float64, y State) State
	StateDim() int
	DefaultState() State
}

// Analytic is implemented by systems with a closed-form trajectory through
// (t0, y0).
type Analytic interface {
	Solution(t0 float64, y0 State, t float64) State
}

type Hamiltonian interface {
	Energy(y State) float64
}

type Metric interface {
	Name() string
	Observe(t float64, y State, snap Snapshot)
	Value() float64
	Reset()
}

type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}
