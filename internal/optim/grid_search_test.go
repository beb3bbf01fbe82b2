package optim

import (
	"context"
	"errors"
	"testing"

	"github.com/san-kum/ivpsolve/internal/config"
	"github.com/san-kum/ivpsolve/internal/experiment"
)

func baseConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Problem = "exponent"
	cfg.Method = "dopri45"
	cfg.T0, cfg.T1 = 0.1, 2
	cfg.Adaptive.Tolerance = 1e-4
	return cfg
}

func TestPoints(t *testing.T) {
	g := NewGridSearch([]string{"a", "b"}, [][]float64{{1, 2}, {10, 20, 30}})
	points := g.Points()
	if len(points) != 6 {
		t.Fatalf("expected 6 points, got %d", len(points))
	}
	if points[0]["a"] != 1 || points[0]["b"] != 10 || points[5]["a"] != 2 || points[5]["b"] != 30 {
		t.Errorf("unexpected order: first %v, last %v", points[0], points[5])
	}

	g.OneAtATime = true
	points = g.Points()
	if len(points) != 5 {
		t.Fatalf("expected 5 points, got %d", len(points))
	}
	for _, p := range points {
		if len(p) != 1 {
			t.Errorf("one-at-a-time point sets %d parameters", len(p))
		}
	}

	if n := len(NewAdaptiveSweep().Points()); n != 16 {
		t.Errorf("adaptive sweep has %d points, want 16", n)
	}
}

func TestRunAdaptiveGrid(t *testing.T) {
	g := NewGridSearch([]string{ParamTau0, ParamFact}, [][]float64{{1e-2, 1e-3}, {0.7, 0.9}})
	g.Concurrency = 2

	trials, err := g.Run(context.Background(), AdaptiveBuilder(baseConfig(), experiment.NewRegistry()))
	if err != nil {
		t.Fatal(err)
	}
	if len(trials) != 4 {
		t.Fatalf("expected 4 trials, got %d", len(trials))
	}
	for _, tr := range trials {
		if tr.Err != nil {
			t.Errorf("%v: %v", tr.Params, tr.Err)
			continue
		}
		if tr.Accepted == 0 {
			t.Errorf("%v: no accepted steps", tr.Params)
		}
		if _, ok := tr.Metrics["global_error"]; !ok {
			t.Errorf("%v: global error missing", tr.Params)
		}
	}
}

func TestSearch(t *testing.T) {
	g := NewGridSearch([]string{ParamTolerance}, [][]float64{{1e-3, 1e-6}})
	params, best, err := g.Search(context.Background(), AdaptiveBuilder(baseConfig(), nil), "global_error")
	if err != nil {
		t.Fatal(err)
	}
	if params[ParamTolerance] != 1e-6 {
		t.Errorf("tighter tolerance should win, got %v (error %g)", params, best)
	}
}

func TestBuilderErrorsAreRecorded(t *testing.T) {
	g := NewGridSearch([]string{"bogus"}, [][]float64{{1}})
	trials, err := g.Run(context.Background(), AdaptiveBuilder(baseConfig(), nil))
	if err != nil {
		t.Fatal(err)
	}
	if trials[0].Err == nil {
		t.Error("expected the unknown parameter to fail its trial")
	}
	if _, ok := Best(trials, "global_error"); ok {
		t.Error("failed trials must not rank")
	}

	if _, _, err := g.Search(context.Background(), AdaptiveBuilder(baseConfig(), nil), "global_error"); err == nil {
		t.Error("search without a successful run should fail")
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAdaptiveSweep().Run(ctx, AdaptiveBuilder(baseConfig(), nil))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got %v", err)
	}
}

func TestMismatchedRanges(t *testing.T) {
	g := NewGridSearch([]string{"a", "b"}, [][]float64{{1}})
	if _, err := g.Run(context.Background(), nil); err == nil {
		t.Error("expected an error for mismatched ranges")
	}
}

func TestBest(t *testing.T) {
	trials := []Trial{
		{Params: map[string]float64{"x": 1}, Metrics: map[string]float64{"m": 3}},
		{Params: map[string]float64{"x": 2}, Metrics: map[string]float64{"m": 1}, Err: errors.New("failed")},
		{Params: map[string]float64{"x": 3}, Metrics: map[string]float64{"m": 2}},
		{Params: map[string]float64{"x": 4}, Metrics: map[string]float64{}},
	}
	best, ok := Best(trials, "m")
	if !ok || best.Params["x"] != 3 {
		t.Errorf("expected x=3, got %v", best.Params)
	}
}
