// Package optim sweeps run parameters and ranks the resulting runs by a
// metric.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/san-kum/ivpsolve/internal/config"
	"github.com/san-kum/ivpsolve/internal/experiment"
	"github.com/san-kum/ivpsolve/internal/sim"
)

// Builder turns one parameter point into a ready-to-run experiment.
type Builder func(params map[string]float64) (*experiment.Experiment, error)

// Trial is the outcome of one parameter point. A failed run keeps its
// error and takes no part in ranking.
type Trial struct {
	Params   map[string]float64
	Metrics  map[string]float64
	Accepted int
	Rejected int
	Elapsed  time.Duration
	Err      error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64

	// OneAtATime varies each parameter alone around the builder's defaults
	// instead of walking the full product.
	OneAtATime bool
	// Concurrency caps parallel runs; zero uses GOMAXPROCS.
	Concurrency int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Points lists the parameter points in evaluation order.
func (g *GridSearch) Points() []map[string]float64 {
	if g.OneAtATime {
		var points []map[string]float64
		for i, name := range g.paramNames {
			for _, v := range g.ranges[i] {
				points = append(points, map[string]float64{name: v})
			}
		}
		return points
	}

	var points []map[string]float64
	g.product(0, make(map[string]float64), &points)
	return points
}

func (g *GridSearch) product(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		next := make(map[string]float64, len(current)+1)
		for k, v := range current {
			next[k] = v
		}
		next[paramName] = val
		g.product(depth+1, next, out)
	}
}

// Run evaluates every point. Individual run failures are recorded on their
// trial; only cancellation aborts the sweep.
func (g *GridSearch) Run(ctx context.Context, build Builder) ([]Trial, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, fmt.Errorf("optim: %d parameters but %d ranges", len(g.paramNames), len(g.ranges))
	}
	points := g.Points()
	limit := g.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	return sim.RunEach(ctx, len(points), limit, func(ctx context.Context, i int) (Trial, error) {
		trial := Trial{Params: points[i]}
		if err := ctx.Err(); err != nil {
			return trial, err
		}

		exp, err := build(points[i])
		if err != nil {
			trial.Err = err
			return trial, nil
		}

		start := time.Now()
		result, err := exp.Run(ctx)
		trial.Elapsed = time.Since(start)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return trial, err
		}
		trial.Err = err
		if result != nil {
			trial.Metrics = result.Metrics
			trial.Accepted, trial.Rejected = result.Accepted, result.Rejected
		}
		return trial, nil
	})
}

// Search runs the grid and returns the point minimizing metricName.
func (g *GridSearch) Search(ctx context.Context, build Builder, metricName string) (map[string]float64, float64, error) {
	trials, err := g.Run(ctx, build)
	if err != nil {
		return nil, 0, err
	}
	best, ok := Best(trials, metricName)
	if !ok {
		return nil, math.Inf(1), fmt.Errorf("optim: no successful run reported %s", metricName)
	}
	return best.Params, best.Metrics[metricName], nil
}

// Best is the successful trial with the smallest finite value of metric.
func Best(trials []Trial, metric string) (Trial, bool) {
	var best Trial
	found := false
	for _, t := range trials {
		if t.Err != nil {
			continue
		}
		v, ok := t.Metrics[metric]
		if !ok || math.IsNaN(v) {
			continue
		}
		if !found || v < best.Metrics[metric] {
			best, found = t, true
		}
	}
	return best, found
}

// Adaptive-control parameter names understood by AdaptiveBuilder.
const (
	ParamTau0      = "tau0"
	ParamFact      = "fact"
	ParamFactMin   = "factmin"
	ParamFactMax   = "factmax"
	ParamTolerance = "tolerance"
)

// NewAdaptiveSweep is the classic one-at-a-time study of the step-size
// controller: initial step, safety factor and the shrink and growth limits.
func NewAdaptiveSweep() *GridSearch {
	g := NewGridSearch(
		[]string{ParamTau0, ParamFact, ParamFactMin, ParamFactMax},
		[][]float64{
			{1e-2, 1e-4, 1e-6, 1e-8},
			{0.5, 0.7, 0.8, 0.9},
			{0.2, 0.5, 0.7, 0.9},
			{1.2, 1.5, 3.0, 5.0},
		},
	)
	g.OneAtATime = true
	return g
}

// AdaptiveBuilder overlays adaptive-control parameters on a copy of base.
func AdaptiveBuilder(base *config.Config, reg *experiment.Registry) Builder {
	return func(params map[string]float64) (*experiment.Experiment, error) {
		cfg := base.Clone()
		for _, name := range sortedNames(params) {
			v := params[name]
			switch name {
			case ParamTau0:
				cfg.Tau = v
			case ParamFact:
				cfg.Adaptive.Fact = v
			case ParamFactMin:
				cfg.Adaptive.FactMin = v
			case ParamFactMax:
				cfg.Adaptive.FactMax = v
			case ParamTolerance:
				cfg.Adaptive.Tolerance = v
			default:
				return nil, fmt.Errorf("optim: unknown adaptive parameter %q", name)
			}
		}

		exp := experiment.New(cfg, reg)
		if err := exp.Setup(); err != nil {
			return nil, err
		}
		return exp, nil
	}
}

func sortedNames(params map[string]float64) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
