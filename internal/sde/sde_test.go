package sde

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/ivpsolve/internal/dynamo"
	"github.com/san-kum/ivpsolve/internal/integrators"
	"github.com/san-kum/ivpsolve/internal/physics"
	"github.com/san-kum/ivpsolve/internal/sim"
)

// recorder remembers the sum of the variates it hands out so the exact
// solution driven by the same Brownian path can be reconstructed.
type recorder struct {
	Noise
	sum float64
}

func (r *recorder) Normal() float64 {
	z := r.Noise.Normal()
	r.sum += z
	return z
}

func zero(_ float64, y dynamo.State) dynamo.State { return make(dynamo.State, len(y)) }

func TestZeroDiffusionIsEuler(t *testing.T) {
	decay := func(_ float64, y dynamo.State) dynamo.State { return y.Scale(-1) }
	y0 := dynamo.State{1, 2}

	ctx := context.Background()
	_, got, err := Solve(ctx, decay, zero, y0, 0, 1, &EulerMaruyama{Tau: 0.125}, NewNoise(1), sim.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	_, want, err := sim.Solve(ctx, decay, y0, 0, 1, &integrators.Euler{Tau: 0.125}, sim.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("component %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSameSeedReproducesPath(t *testing.T) {
	gbm := physics.NewGBM()
	run := func(seed uint64, s Stepper) dynamo.State {
		_, y, err := SolveSystem(context.Background(), gbm, nil, 0, 1, s, NewNoise(seed), sim.DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		return y
	}

	for _, name := range []string{"euler-maruyama", "milstein"} {
		t.Run(name, func(t *testing.T) {
			fresh := func() Stepper {
				if name == "milstein" {
					return &Milstein{Tau: 1.0 / 64}
				}
				return &EulerMaruyama{Tau: 1.0 / 64}
			}
			a, b, c := run(7, fresh()), run(7, fresh()), run(8, fresh())
			if a[0] != b[0] {
				t.Errorf("same seed diverged: %v vs %v", a[0], b[0])
			}
			if a[0] == c[0] {
				t.Errorf("different seeds gave identical paths: %v", a[0])
			}
		})
	}
}

func TestEnsembleMean(t *testing.T) {
	const paths = 2000
	tests := []struct {
		name string
		sys  interface {
			System
			Mean(t0 float64, y0 dynamo.State, t float64) dynamo.State
		}
		tol float64
	}{
		{"gbm", physics.NewGBM(), 0.05},
		{"ornstein-uhlenbeck", physics.NewOrnsteinUhlenbeck(), 0.03},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			finals, err := sim.RunEach(context.Background(), paths, 0, func(ctx context.Context, i int) (float64, error) {
				_, y, err := SolveSystem(ctx, tt.sys, nil, 0, 1, &EulerMaruyama{Tau: 1.0 / 256}, NewNoise(uint64(i)), sim.DefaultOptions())
				if err != nil {
					return 0, err
				}
				return y[0], nil
			})
			if err != nil {
				t.Fatal(err)
			}

			mean := 0.0
			for _, v := range finals {
				mean += v
			}
			mean /= paths

			want := tt.sys.Mean(0, tt.sys.DefaultState(), 1)[0]
			if math.Abs(mean-want) > tt.tol {
				t.Errorf("ensemble mean %v, want %v ± %v", mean, want, tt.tol)
			}
		})
	}
}

func TestMilsteinStrongError(t *testing.T) {
	const (
		paths = 200
		tau   = 1.0 / 256
		mu    = 0.5
		sigma = 1.0
	)
	gbm := &physics.GBM{Mu: mu, Sigma: sigma, Dim: 1}

	strong := func(fresh func() Stepper) float64 {
		total := 0.0
		for i := 0; i < paths; i++ {
			noise := &recorder{Noise: NewNoise(uint64(i))}
			_, y, err := SolveSystem(context.Background(), gbm, nil, 0, 1, fresh(), noise, sim.DefaultOptions())
			if err != nil {
				t.Fatal(err)
			}
			w := math.Sqrt(tau) * noise.sum
			exact := math.Exp(mu - sigma*sigma/2 + sigma*w)
			total += math.Abs(y[0] - exact)
		}
		return total / paths
	}

	em := strong(func() Stepper { return &EulerMaruyama{Tau: tau} })
	mil := strong(func() Stepper { return &Milstein{Tau: tau} })
	if mil >= em/2 {
		t.Errorf("milstein strong error %v not clearly below euler-maruyama %v", mil, em)
	}
}

func TestSnapshot(t *testing.T) {
	m := &Milstein{Tau: 0.125}
	if _, _, err := SolveSystem(context.Background(), physics.NewOrnsteinUhlenbeck(), nil, 0, 1, m, nil, sim.DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	snap := m.Snapshot()
	if snap.Method != "milstein" || snap.Accepted != 8 || snap.TimeStep != 0.125 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	m.Reset()
	if m.Snapshot().Accepted != 0 {
		t.Error("reset kept the step count")
	}
}

func TestErrors(t *testing.T) {
	ctx := context.Background()
	short := func(_ float64, _ dynamo.State) dynamo.State { return dynamo.State{0} }

	_, _, err := Solve(ctx, zero, short, dynamo.State{1, 2}, 0, 1, NewEulerMaruyama(), nil, sim.DefaultOptions())
	if !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("got %v, want dimension mismatch", err)
	}

	_, _, err = Solve(ctx, nil, zero, dynamo.State{1}, 0, 1, NewMilstein(), nil, sim.DefaultOptions())
	if !errors.Is(err, dynamo.ErrNilFunc) {
		t.Errorf("got %v, want nil func", err)
	}

	explode := func(_ float64, y dynamo.State) dynamo.State { return y.Scale(1e200) }
	_, _, err = Solve(ctx, explode, zero, dynamo.State{1}, 0, 1, &EulerMaruyama{Tau: 0.125}, nil, sim.DefaultOptions())
	var div *dynamo.DivergenceError
	if !errors.As(err, &div) {
		t.Errorf("got %v, want divergence", err)
	}
}
