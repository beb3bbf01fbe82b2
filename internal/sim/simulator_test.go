package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/ivpsolve/internal/dynamo"
	"github.com/san-kum/ivpsolve/internal/integrators"
)

type testSystem struct{}

func (s *testSystem) Derive(t float64, y dynamo.State) dynamo.State { return dynamo.State{-y[0]} }
func (s *testSystem) StateDim() int                                 { return 1 }
func (s *testSystem) DefaultState() dynamo.State                    { return dynamo.State{1.0} }

type oscillator struct{}

func (o *oscillator) Derive(t float64, y dynamo.State) dynamo.State { return dynamo.State{y[1], -y[0]} }
func (o *oscillator) StateDim() int                                 { return 2 }
func (o *oscillator) DefaultState() dynamo.State                    { return dynamo.State{1, 0} }
func (o *oscillator) Energy(y dynamo.State) float64                 { return 0.5 * (y[0]*y[0] + y[1]*y[1]) }

func TestSimulatorRun(t *testing.T) {
	sim := New(&integrators.Euler{Tau: 0.125})

	cfg := Config{T0: 0, T1: 1.0, Frequency: 0.25, Verify: true}
	result, err := sim.Run(context.Background(), &testSystem{}, nil, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.States) != 5 {
		t.Errorf("expected 5 states, got %d", len(result.States))
	}
	if len(result.Times) != 5 || result.Times[4] != 1.0 {
		t.Errorf("unexpected times %v", result.Times)
	}
	if result.Accepted != 8 {
		t.Errorf("expected 8 accepted steps, got %d", result.Accepted)
	}

	expected := math.Exp(-1.0)
	if math.Abs(result.Final[0]-expected) > 0.1 {
		t.Errorf("expected final state ~%.4f, got %.4f", expected, result.Final[0])
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	sim := New(integrators.NewRK4())

	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty interval", Config{T0: 1, T1: 1}},
		{"reversed interval", Config{T0: 1, T1: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.Run(context.Background(), &testSystem{}, nil, tt.cfg)
			if !errors.Is(err, dynamo.ErrInvalidInterval) {
				t.Errorf("expected ErrInvalidInterval, got %v", err)
			}
		})
	}

	if _, err := sim.Run(context.Background(), &testSystem{}, dynamo.State{1, 2}, Config{T1: 1}); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

type testMetric struct {
	count int
	sum   float64
}

func (m *testMetric) Name() string { return "test" }
func (m *testMetric) Observe(t float64, y dynamo.State, snap dynamo.Snapshot) {
	m.count++
	m.sum += y[0]
}
func (m *testMetric) Value() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}
func (m *testMetric) Reset() {
	m.count = 0
	m.sum = 0
}

func TestSimulatorMetrics(t *testing.T) {
	sim := New(&integrators.Euler{Tau: 0.125})

	metric := &testMetric{}
	sim.AddMetric(metric)

	cfg := Config{T1: 1.0, Frequency: 0}
	result, err := sim.Run(context.Background(), &testSystem{}, nil, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if _, ok := result.Metrics["test"]; !ok {
		t.Error("metric not found in result")
	}
	if metric.count != 9 {
		t.Errorf("expected 9 observations, got %d", metric.count)
	}

	// a second run starts from a clean metric
	if _, err := sim.Run(context.Background(), &testSystem{}, nil, cfg); err != nil {
		t.Fatal(err)
	}
	if metric.count != 9 {
		t.Errorf("metric was not reset between runs: %d observations", metric.count)
	}
}

func TestSimulatorEnergyDrift(t *testing.T) {
	sim := New(&integrators.RK4{Tau: 1.0 / 64})
	result, err := sim.Run(context.Background(), &oscillator{}, nil, Config{T1: 25, Frequency: AutoFrequency})
	if err != nil {
		t.Fatal(err)
	}
	if result.EnergyDrift > 1e-8 {
		t.Errorf("rk4 energy drift too high: %e", result.EnergyDrift)
	}
	if len(result.Times) != DefaultCallbacks+1 {
		t.Errorf("auto frequency gave %d observations, want %d", len(result.Times), DefaultCallbacks+1)
	}
}

func TestSimulatorObserverBreak(t *testing.T) {
	sim := New(&integrators.Euler{Tau: 0.125})
	sim.AddObserver(func(t float64, y dynamo.State, snap dynamo.Snapshot) dynamo.Signal {
		if t >= 0.5 {
			return dynamo.Break
		}
		return dynamo.Continue
	})

	result, err := sim.Run(context.Background(), &testSystem{}, nil, Config{T1: 10})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Stopped || result.FinalTime != 0.5 {
		t.Errorf("expected stop at t=0.5, got stopped=%v t=%g", result.Stopped, result.FinalTime)
	}
}

func TestSimulatorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sim := New(integrators.NewRK4())
	result, err := sim.Run(ctx, &testSystem{}, nil, Config{T1: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result == nil || len(result.States) != 1 {
		t.Errorf("expected the partial result with the initial state")
	}
}
