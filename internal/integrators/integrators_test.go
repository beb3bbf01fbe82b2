package integrators

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/ivpsolve/internal/dynamo"
)

const (
	springK = 2.0
	springM = 7.0
)

var omega = math.Sqrt(springK / springM)

func harmonic(t float64, y dynamo.State) dynamo.State {
	return dynamo.State{y[1], -springK / springM * y[0]}
}

func harmonicExact(t float64) dynamo.State {
	return dynamo.State{math.Cos(omega * t), -omega * math.Sin(omega*t)}
}

func decay(t float64, y dynamo.State) dynamo.State {
	return dynamo.State{-y[0]}
}

func integrate(t *testing.T, s dynamo.Stepper, f dynamo.Func, y dynamo.State, t0, t1 float64) (float64, dynamo.State) {
	t.Helper()
	now := t0
	for i := 0; now < t1; i++ {
		if i > 10_000_000 {
			t.Fatalf("%s: no progress at t=%g", s.Snapshot().Method, now)
		}
		var err error
		now, y, err = s.Step(f, now, y)
		if err != nil {
			t.Fatalf("%s: step %d at t=%g: %v", s.Snapshot().Method, i, now, err)
		}
	}
	return now, y
}

func allSteppers() []dynamo.Stepper {
	return []dynamo.Stepper{
		NewEuler(),
		NewRK4(),
		NewAdamsRK4(),
		NewRK4RE(),
		NewDOPRI45(),
		NewImplicitEuler(),
		NewSymplecticEuler(),
		NewVerlet(),
		NewLeapfrog(),
	}
}

func TestHarmonicOscillator(t *testing.T) {
	tests := []struct {
		stepper dynamo.Stepper
		tol     float64
	}{
		{NewEuler(), 5e-3},
		{NewImplicitEuler(), 5e-3},
		{NewRK4(), 1e-8},
		{NewAdamsRK4(), 1e-8},
		{NewRK4RE(), 1e-4},
		{NewDOPRI45(), 1e-4},
		{NewSymplecticEuler(), 1e-6},
		{NewVerlet(), 1e-6},
		{NewLeapfrog(), 1e-6},
	}

	for _, tt := range tests {
		t.Run(tt.stepper.Snapshot().Method, func(t *testing.T) {
			end, y := integrate(t, tt.stepper, harmonic, dynamo.State{1, 0}, 0, 10)
			if end < 10 {
				t.Fatalf("stopped early at t=%g", end)
			}
			want := harmonicExact(end)
			if rel := y.Sub(want).Norm() / want.Norm(); rel > tt.tol {
				t.Errorf("relative error %.3e at t=%g exceeds %.0e (got %v, want %v)", rel, end, tt.tol, y, want)
			}
		})
	}
}

func TestStepDoesNotMutateInput(t *testing.T) {
	for _, s := range allSteppers() {
		y := dynamo.State{1, 0.5}
		if _, _, err := s.Step(harmonic, 0, y); err != nil {
			t.Fatalf("%s: %v", s.Snapshot().Method, err)
		}
		if y[0] != 1 || y[1] != 0.5 {
			t.Errorf("%s modified its input: %v", s.Snapshot().Method, y)
		}
	}
}

func TestDimensionMismatch(t *testing.T) {
	bad := func(t float64, y dynamo.State) dynamo.State { return dynamo.State{1, 2, 3} }
	for _, s := range allSteppers() {
		_, _, err := s.Step(bad, 0, dynamo.State{1, 0})
		if !errors.Is(err, dynamo.ErrDimensionMismatch) {
			t.Errorf("%s: expected ErrDimensionMismatch, got %v", s.Snapshot().Method, err)
		}
	}
}

func TestPhaseSpaceNeedsEvenDimension(t *testing.T) {
	for _, s := range []dynamo.Stepper{NewVerlet(), NewLeapfrog()} {
		_, _, err := s.Step(decay, 0, dynamo.State{1})
		if !errors.Is(err, dynamo.ErrDimensionMismatch) {
			t.Errorf("%s: expected ErrDimensionMismatch, got %v", s.Snapshot().Method, err)
		}
	}
}

// decayError integrates y' = -y for n steps of tau and returns |y - e^{-nτ}|.
func decayError(t *testing.T, s dynamo.Stepper, n int) float64 {
	t.Helper()
	y := dynamo.State{1}
	now := 0.0
	for i := 0; i < n; i++ {
		var err error
		if now, y, err = s.Step(decay, now, y); err != nil {
			t.Fatal(err)
		}
	}
	return math.Abs(y[0] - math.Exp(-now))
}

func TestOrderOfAccuracy(t *testing.T) {
	tests := []struct {
		name     string
		make     func(tau float64) dynamo.Stepper
		tau      float64
		min, max float64
	}{
		{"euler", func(tau float64) dynamo.Stepper { return &Euler{Tau: tau} }, 0.01, 1.8, 2.2},
		{"rk4", func(tau float64) dynamo.Stepper { return &RK4{Tau: tau} }, 0.1, 14, 18},
		{"implicit-euler", func(tau float64) dynamo.Stepper { return &ImplicitEuler{Tau: tau} }, 0.01, 1.8, 2.2},
		{"symplectic-euler", func(tau float64) dynamo.Stepper { return &SymplecticEuler{Tau: tau} }, 0.1, 3.6, 4.4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := int(math.Round(1 / tt.tau))
			coarse := decayError(t, tt.make(tt.tau), n)
			fine := decayError(t, tt.make(tt.tau/2), 2*n)
			ratio := coarse / fine
			if ratio < tt.min || ratio > tt.max {
				t.Errorf("error ratio %.3f outside [%.1f, %.1f] (coarse %.3e, fine %.3e)", ratio, tt.min, tt.max, coarse, fine)
			}
		})
	}
}

func TestAdamsBootstrapMatchesRK4(t *testing.T) {
	adams, rk4 := &AdamsRK4{Tau: 0.1}, &RK4{Tau: 0.1}
	ya, yr := dynamo.State{1, 0}, dynamo.State{1, 0}
	ta, tr := 0.0, 0.0

	for i := 0; i < adamsHistory; i++ {
		var err error
		if ta, ya, err = adams.Step(harmonic, ta, ya); err != nil {
			t.Fatal(err)
		}
		if tr, yr, err = rk4.Step(harmonic, tr, yr); err != nil {
			t.Fatal(err)
		}
		if ta != tr || ya[0] != yr[0] || ya[1] != yr[1] {
			t.Fatalf("step %d: adams (%g, %v) differs from rk4 (%g, %v)", i, ta, ya, tr, yr)
		}
	}

	_, ya, _ = adams.Step(harmonic, ta, ya)
	_, yr, _ = rk4.Step(harmonic, tr, yr)
	if ya[0] == yr[0] && ya[1] == yr[1] {
		t.Error("fifth step should use the multistep formula")
	}
	if math.Abs(ya[0]-yr[0]) > 1e-5 {
		t.Errorf("multistep result too far from rk4: %v vs %v", ya, yr)
	}
}

func TestAdamsCallCount(t *testing.T) {
	calls := 0
	counted := func(t float64, y dynamo.State) dynamo.State {
		calls++
		return decay(t, y)
	}

	a := NewAdamsRK4()
	y, now := dynamo.State{1}, 0.0
	for i := 0; i < adamsHistory; i++ {
		now, y, _ = a.Step(counted, now, y)
	}
	if calls != 4*adamsHistory {
		t.Fatalf("bootstrap used %d evaluations, want %d", calls, 4*adamsHistory)
	}

	calls = 0
	a.Step(counted, now, y)
	if calls != 1 {
		t.Errorf("multistep used %d evaluations, want 1", calls)
	}
}

func TestAdamsReset(t *testing.T) {
	a := NewAdamsRK4()
	y, now := dynamo.State{1, 0}, 0.0
	for i := 0; i < 6; i++ {
		now, y, _ = a.Step(harmonic, now, y)
	}
	if got := a.Snapshot().Accepted; got != 6 {
		t.Fatalf("accepted = %d, want 6", got)
	}

	a.Reset()
	if a.Snapshot().Accepted != 0 {
		t.Error("Reset should clear the step counter")
	}

	_, ya, _ := a.Step(harmonic, 0, dynamo.State{1, 0})
	_, yr, _ := NewRK4().Step(harmonic, 0, dynamo.State{1, 0})
	if ya[0] != yr[0] || ya[1] != yr[1] {
		t.Errorf("after Reset the first step should bootstrap with rk4: %v vs %v", ya, yr)
	}
}

func TestImplicitEulerStiffDecay(t *testing.T) {
	stiff := func(t float64, y dynamo.State) dynamo.State { return dynamo.State{-1000 * y[0]} }

	s := &ImplicitEuler{Tau: 0.01}
	y, now := dynamo.State{1}, 0.0
	want := 1.0
	for i := 0; i < 5; i++ {
		var err error
		if now, y, err = s.Step(stiff, now, y); err != nil {
			t.Fatal(err)
		}
		want /= 11
	}
	if math.Abs(y[0]-want) > 1e-9*want {
		t.Errorf("got %.12e, want %.12e", y[0], want)
	}

	snap := s.Snapshot()
	if !snap.Implicit || !snap.Converged || snap.Iterations < 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.Accepted != 5 {
		t.Errorf("accepted = %d, want 5", snap.Accepted)
	}
}

func TestTrapezoidalConservesEnergy(t *testing.T) {
	energy := func(y dynamo.State) float64 { return springK*y[0]*y[0] + springM*y[1]*y[1] }

	s := &SymplecticEuler{Tau: 0.05}
	y0 := dynamo.State{1, 0}
	_, y := integrate(t, s, harmonic, y0, 0, 50)

	drift := math.Abs(energy(y)-energy(y0)) / energy(y0)
	if drift > 1e-8 {
		t.Errorf("energy drift %.3e", drift)
	}
}

func TestVerletEnergyBounded(t *testing.T) {
	energy := func(y dynamo.State) float64 { return springK*y[0]*y[0] + springM*y[1]*y[1] }

	for _, s := range []dynamo.Stepper{&Verlet{Tau: 0.01}, &Leapfrog{Tau: 0.01}} {
		y0 := dynamo.State{1, 0}
		_, y := integrate(t, s, harmonic, y0, 0, 100)
		drift := math.Abs(energy(y)-energy(y0)) / energy(y0)
		if drift > 1e-4 {
			t.Errorf("%s: energy drift %.3e", s.Snapshot().Method, drift)
		}
	}
}

func TestImplicitNewtonPrecision(t *testing.T) {
	if p := NewImplicitEuler().Newton.Precision; p != 1e-12 {
		t.Errorf("implicit euler: expected precision 1e-12, got %g", p)
	}
	if p := NewSymplecticEuler().Newton.Precision; p != 1e-12 {
		t.Errorf("trapezoidal: expected precision 1e-12, got %g", p)
	}
}
