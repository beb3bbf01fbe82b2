package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/san-kum/ivpsolve/internal/dynamo"
)

// Config describes one run of a Simulator.
type Config struct {
	T0        float64
	T1        float64
	Frequency float64
	Verify    bool
}

// Result holds the observed trajectory. Errors holds the stepper's error
// estimate at each observation (zero for fixed-step methods).
type Result struct {
	Times     []float64
	States    []dynamo.State
	TimeSteps []float64
	Errors    []float64
	Metrics   map[string]float64

	Final     dynamo.State
	FinalTime float64
	Accepted  int
	Rejected  int
	Stopped   bool

	EnergyDrift float64
}

// Simulator runs a system with one stepper, recording the trajectory and
// feeding metrics at the observation cadence.
type Simulator struct {
	stepper   dynamo.Stepper
	metrics   []dynamo.Metric
	observers []Observer
	logger    *zerolog.Logger
}

func New(stepper dynamo.Stepper) *Simulator {
	return &Simulator{
		stepper:   stepper,
		metrics:   make([]dynamo.Metric, 0),
		observers: make([]Observer, 0),
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric)  { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer)     { s.observers = append(s.observers, o) }
func (s *Simulator) SetLogger(l zerolog.Logger) { s.logger = &l }
func (s *Simulator) Stepper() dynamo.Stepper    { return s.stepper }
func (s *Simulator) Metrics() []dynamo.Metric   { return s.metrics }

// Run integrates sys from y0 (the system default when nil). On error the
// partial result recorded so far is returned with it.
func (s *Simulator) Run(ctx context.Context, sys dynamo.System, y0 dynamo.State, cfg Config) (*Result, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}
	if y0 == nil {
		y0 = sys.DefaultState()
	}
	if len(y0) != sys.StateDim() {
		return nil, fmt.Errorf("%w: initial state has %d components, system %d",
			dynamo.ErrDimensionMismatch, len(y0), sys.StateDim())
	}

	result := &Result{Metrics: make(map[string]float64)}
	for _, m := range s.metrics {
		m.Reset()
	}

	observe := func(t float64, y dynamo.State, snap dynamo.Snapshot) dynamo.Signal {
		result.Times = append(result.Times, t)
		result.States = append(result.States, y)
		result.TimeSteps = append(result.TimeSteps, snap.TimeStep)
		result.Errors = append(result.Errors, snap.Error)

		for _, m := range s.metrics {
			m.Observe(t, y, snap)
		}
		signal := dynamo.Continue
		for _, o := range s.observers {
			if o(t, y, snap) == dynamo.Break {
				signal = dynamo.Break
			}
		}
		if signal == dynamo.Break {
			result.Stopped = true
		}
		return signal
	}

	opts := Options{
		Observer:  observe,
		Frequency: cfg.Frequency,
		Verify:    cfg.Verify,
		Logger:    s.logger,
	}
	t, y, err := Solve(ctx, sys.Derive, y0, cfg.T0, cfg.T1, s.stepper, opts)

	result.Final, result.FinalTime = y, t
	snap := s.stepper.Snapshot()
	result.Accepted, result.Rejected = snap.Accepted, snap.Rejected

	if h, ok := sys.(dynamo.Hamiltonian); ok && y != nil && y.IsValid() {
		initial := h.Energy(y0)
		if initial != 0 {
			result.EnergyDrift = math.Abs(h.Energy(y)-initial) / math.Abs(initial)
		}
	}
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	return result, err
}

func (s *Simulator) validateConfig(cfg Config) error {
	if s.stepper == nil {
		return fmt.Errorf("simulator has no stepper")
	}
	if cfg.T1 <= cfg.T0 {
		return fmt.Errorf("%w: t1 must be greater than t0, got [%g, %g]", dynamo.ErrInvalidInterval, cfg.T0, cfg.T1)
	}
	return nil
}
