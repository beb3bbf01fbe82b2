package integrators

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/san-kum/ivpsolve/internal/dynamo"
)

func TestProposeStaysWithinBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)
	c := DefaultControl()

	properties.Property("proposal respects factor and step bounds", prop.ForAll(
		func(tau, est float64, order int) bool {
			next := c.Propose(tau, est, order)
			lo := clamp(tau*c.FactMin, c.TauMin, c.TauMax)
			hi := clamp(tau*c.FactMax, c.TauMin, c.TauMax)
			return next >= lo && next <= hi && next >= c.TauMin && next <= c.TauMax
		},
		gen.Float64Range(DefaultTauMin, DefaultTauMax),
		gen.Float64Range(1e-15, 1e3),
		gen.IntRange(1, 6),
	))

	properties.TestingRun(t)
}

func TestProposeShape(t *testing.T) {
	c := DefaultControl()
	tests := []struct {
		name  string
		tau   float64
		err   float64
		order int
		want  float64
	}{
		{"on tolerance", 0.01, c.Tolerance, 4, 0.01 * c.Fact},
		{"grows at most factmax", 0.01, 1e-20, 5, 0.01 * c.FactMax},
		{"shrinks at most factmin", 0.01, 1, 5, 0.01 * c.FactMin},
		{"capped at tau max", 0.09, 0, 4, c.TauMax},
		{"floored at tau min", 1.2e-6, 1, 4, c.TauMin},
		{"nan keeps tau", 0.02, math.NaN(), 4, 0.02},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Propose(tt.tau, tt.err, tt.order)
			if math.Abs(got-tt.want) > 1e-15 {
				t.Errorf("Propose(%g, %g, %d) = %g, want %g", tt.tau, tt.err, tt.order, got, tt.want)
			}
		})
	}
}

func TestRelativeError(t *testing.T) {
	tests := []struct {
		name  string
		hat   dynamo.State
		y     dynamo.State
		order int
		want  float64
	}{
		{"relative", dynamo.State{2, 4}, dynamo.State{1, 4}, 4, 0.5 / 15},
		{"largest component wins", dynamo.State{10, 1}, dynamo.State{9, 0.5}, 5, 0.5 / 31},
		{"zero denominator falls back to absolute", dynamo.State{0}, dynamo.State{1e-3}, 4, 1e-3 / 15},
		{"identical", dynamo.State{3, -3}, dynamo.State{3, -3}, 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := relativeError(tt.hat, tt.y, tt.order); math.Abs(got-tt.want) > 1e-15 {
				t.Errorf("got %g, want %g", got, tt.want)
			}
		})
	}

	if got := relativeError(dynamo.State{math.NaN()}, dynamo.State{1}, 4); !math.IsNaN(got) {
		t.Errorf("nan input should give nan, got %g", got)
	}
}

func TestAdaptiveRespectsTolerance(t *testing.T) {
	for _, method := range []string{"rk4re", "dopri45"} {
		t.Run(method, func(t *testing.T) {
			var attempts []Attempt
			control := DefaultControl()
			control.Tolerance = 1e-12
			control.OnAttempt = func(a Attempt) { attempts = append(attempts, a) }

			var s dynamo.Stepper
			if method == "rk4re" {
				s = &RK4RE{Tau: 0.1, Control: control}
			} else {
				s = &DOPRI45{Tau: 0.1, Control: control}
			}
			integrate(t, s, harmonic, dynamo.State{1, 0}, 0, 5)

			snap := s.Snapshot()
			if snap.Rejected == 0 {
				t.Error("starting at tau=0.1 should force at least one rejection")
			}
			if snap.Accepted+snap.Rejected != len(attempts) {
				t.Errorf("snapshot counts %d+%d, observed %d attempts", snap.Accepted, snap.Rejected, len(attempts))
			}
			for _, a := range attempts {
				if a.Accepted && a.Error >= control.Tolerance {
					t.Errorf("accepted attempt at t=%g with error %g", a.Time, a.Error)
				}
				if !a.Accepted && a.Error < control.Tolerance {
					t.Errorf("rejected attempt at t=%g with error %g", a.Time, a.Error)
				}
				if a.TimeStep > control.TauMax || a.TimeStep < 0 {
					t.Errorf("trial step %g out of range", a.TimeStep)
				}
			}
			if snap.TimeStep < control.TauMin || snap.TimeStep > control.TauMax {
				t.Errorf("running step %g outside [%g, %g]", snap.TimeStep, control.TauMin, control.TauMax)
			}
		})
	}
}

func TestRK4REAdvancesTwoSteps(t *testing.T) {
	s := &RK4RE{Tau: 1e-3, Control: DefaultControl()}
	now, _, err := s.Step(decay, 0, dynamo.State{1})
	if err != nil {
		t.Fatal(err)
	}
	if s.Snapshot().Rejected != 0 {
		t.Fatalf("unexpected rejection")
	}
	if now != 2e-3 {
		t.Errorf("accepted step advanced to %g, want 2e-3", now)
	}
}

func TestRejectionGuard(t *testing.T) {
	control := Control{
		TauMin:        0.5,
		TauMax:        0.5,
		Tolerance:     1e-14,
		MaxRejections: 3,
	}
	for _, s := range []dynamo.Stepper{
		&RK4RE{Tau: 0.5, Control: control},
		&DOPRI45{Tau: 0.5, Control: control},
	} {
		now, y, err := s.Step(decay, 1, dynamo.State{1})
		if !errors.Is(err, dynamo.ErrStepRejected) {
			t.Fatalf("%s: expected ErrStepRejected, got %v", s.Snapshot().Method, err)
		}
		var rej *dynamo.RejectionError
		if !errors.As(err, &rej) || rej.Attempts != 3 || rej.TimeStep != 0.5 {
			t.Errorf("%s: unexpected rejection details %+v", s.Snapshot().Method, rej)
		}
		if now != 1 || y != nil {
			t.Errorf("%s: a failed step must not advance, got t=%g y=%v", s.Snapshot().Method, now, y)
		}
		if got := s.Snapshot().Rejected; got != 3 {
			t.Errorf("%s: rejected = %d, want 3", s.Snapshot().Method, got)
		}
	}
}

func TestNaNEstimateIsAccepted(t *testing.T) {
	blowup := func(t float64, y dynamo.State) dynamo.State { return dynamo.State{math.Inf(1)} }
	s := NewDOPRI45()
	_, y, err := s.Step(blowup, 0, dynamo.State{1})
	if err != nil {
		t.Fatalf("non-finite candidate should be handed back, got %v", err)
	}
	if y.IsValid() {
		t.Errorf("expected a non-finite state, got %v", y)
	}
}

func TestDOPRI45FirstSameAsLast(t *testing.T) {
	calls := 0
	counted := func(t float64, y dynamo.State) dynamo.State {
		calls++
		return decay(t, y)
	}

	d := NewDOPRI45()
	now, y, err := d.Step(counted, 0, dynamo.State{1})
	if err != nil {
		t.Fatal(err)
	}
	if d.Snapshot().Rejected != 0 {
		t.Fatal("unexpected rejection")
	}
	if calls != 7 {
		t.Fatalf("first step used %d evaluations, want 7", calls)
	}

	calls = 0
	if _, _, err := d.Step(counted, now, y); err != nil {
		t.Fatal(err)
	}
	if calls != 6 {
		t.Errorf("continuation used %d evaluations, want 6", calls)
	}

	calls = 0
	if _, _, err := d.Step(counted, 0, dynamo.State{1}); err != nil {
		t.Fatal(err)
	}
	if calls != 7 {
		t.Errorf("restart from a different point used %d evaluations, want 7", calls)
	}
}

func TestAdaptiveReset(t *testing.T) {
	for _, s := range []interface {
		dynamo.Stepper
		dynamo.Resetter
	}{NewRK4RE(), NewDOPRI45()} {
		integrate(t, s, decay, dynamo.State{1}, 0, 1)
		before := s.Snapshot()
		if before.Accepted == 0 || before.TimeStep == DefaultTau {
			t.Fatalf("%s: expected running state to change, got %+v", before.Method, before)
		}

		s.Reset()
		after := s.Snapshot()
		if after.Accepted != 0 || after.Rejected != 0 || after.TimeStep != DefaultTau {
			t.Errorf("%s: Reset left %+v", after.Method, after)
		}
	}
}

func TestReuseContinuesRunningState(t *testing.T) {
	s := NewRK4RE()
	integrate(t, s, decay, dynamo.State{1}, 0, 0.5)
	first := s.Snapshot()

	integrate(t, s, decay, dynamo.State{1}, 0, 0.5)
	second := s.Snapshot()
	if second.Accepted <= first.Accepted {
		t.Errorf("reuse should keep counting: %d then %d", first.Accepted, second.Accepted)
	}
}
