package experiment

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/san-kum/ivpsolve/internal/config"
	"github.com/san-kum/ivpsolve/internal/dynamo"
	"github.com/san-kum/ivpsolve/internal/sde"
	"github.com/san-kum/ivpsolve/internal/sim"
)

// Experiment is one configured run: a problem, a method and the metrics
// that apply to them.
type Experiment struct {
	cfg    *config.Config
	reg    *Registry
	logger zerolog.Logger

	simulator *sim.Simulator
	system    dynamo.System

	noisy      sde.System
	sdeStepper sde.Stepper
	metrics    []dynamo.Metric
}

func New(cfg *config.Config, reg *Registry) *Experiment {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Experiment{cfg: cfg, reg: reg, logger: zerolog.Nop()}
}

func (e *Experiment) SetLogger(l zerolog.Logger) { e.logger = l }

// Setup resolves the problem and method names, applies the parameter
// overrides and attaches the default metrics.
func (e *Experiment) Setup() error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	if e.reg.IsStochastic(e.cfg.Problem) {
		sys, err := e.reg.GetStochastic(e.cfg.Problem)
		if err != nil {
			return err
		}
		if err := applyParams(sys, e.cfg.Params); err != nil {
			return err
		}
		stepper, err := e.reg.GetSDEMethod(e.cfg.Method, e.cfg.Tau)
		if err != nil {
			return err
		}
		e.noisy, e.sdeStepper = sys, stepper
		e.metrics = e.reg.DefaultMetrics(sys)
		return nil
	}

	sys, err := e.reg.GetProblem(e.cfg.Problem)
	if err != nil {
		return err
	}
	if err := applyParams(sys, e.cfg.Params); err != nil {
		return err
	}
	stepper, err := e.reg.GetMethod(e.cfg.Method, e.cfg)
	if err != nil {
		return err
	}

	e.system = sys
	e.simulator = sim.New(stepper)
	e.simulator.SetLogger(e.logger)
	for _, m := range e.reg.DefaultMetrics(sys) {
		e.simulator.AddMetric(m)
	}
	return nil
}

func applyParams(sys any, params map[string]float64) error {
	if len(params) == 0 {
		return nil
	}
	c, ok := sys.(dynamo.Configurable)
	if !ok {
		return fmt.Errorf("problem takes no parameters")
	}
	for name, value := range params {
		if err := c.SetParam(name, value); err != nil {
			return err
		}
	}
	return nil
}

// Run integrates the configured problem once. Stochastic problems run a
// single path seeded with the configured seed.
func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.noisy != nil {
		return e.runPath(ctx, e.sdeStepper, e.cfg.Seed, e.metrics)
	}
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}

	e.logger.Info().
		Str("problem", e.cfg.Problem).
		Str("method", e.cfg.Method).
		Float64("t0", e.cfg.T0).
		Float64("t1", e.cfg.T1).
		Msg("starting run")

	return e.simulator.Run(ctx, e.system, e.initState(), e.simConfig())
}

// RunPaths integrates n independent paths of a stochastic problem, path i
// seeded with seed+i. Each path has its own stepper.
func (e *Experiment) RunPaths(ctx context.Context, n, concurrency int) ([]*sim.Result, error) {
	if e.noisy == nil {
		return nil, fmt.Errorf("problem %s is not stochastic", e.cfg.Problem)
	}
	return sim.RunEach(ctx, n, concurrency, func(ctx context.Context, i int) (*sim.Result, error) {
		stepper, err := e.reg.GetSDEMethod(e.cfg.Method, e.cfg.Tau)
		if err != nil {
			return nil, err
		}
		return e.runPath(ctx, stepper, e.cfg.Seed+uint64(i), nil)
	})
}

func (e *Experiment) runPath(ctx context.Context, stepper sde.Stepper, seed uint64, ms []dynamo.Metric) (*sim.Result, error) {
	result := &sim.Result{Metrics: make(map[string]float64)}
	for _, m := range ms {
		m.Reset()
	}

	opts := sim.Options{
		Frequency: e.cfg.Frequency,
		Verify:    e.cfg.Verify,
		Logger:    &e.logger,
		Observer: func(t float64, y dynamo.State, snap dynamo.Snapshot) dynamo.Signal {
			result.Times = append(result.Times, t)
			result.States = append(result.States, y)
			result.TimeSteps = append(result.TimeSteps, snap.TimeStep)
			result.Errors = append(result.Errors, snap.Error)
			for _, m := range ms {
				m.Observe(t, y, snap)
			}
			return dynamo.Continue
		},
	}

	t, y, err := sde.SolveSystem(ctx, e.noisy, e.initState(), e.cfg.T0, e.cfg.T1, stepper, sde.NewNoise(seed), opts)
	result.Final, result.FinalTime = y, t
	result.Accepted = stepper.Snapshot().Accepted
	for _, m := range ms {
		result.Metrics[m.Name()] = m.Value()
	}
	return result, err
}

func (e *Experiment) initState() dynamo.State {
	if len(e.cfg.InitState) == 0 {
		return nil
	}
	return dynamo.State(e.cfg.InitState).Clone()
}

func (e *Experiment) simConfig() sim.Config {
	return sim.Config{
		T0:        e.cfg.T0,
		T1:        e.cfg.T1,
		Frequency: e.cfg.Frequency,
		Verify:    e.cfg.Verify,
	}
}

func (e *Experiment) Config() *config.Config { return e.cfg }

// Simulator is nil for stochastic problems.
func (e *Experiment) Simulator() *sim.Simulator { return e.simulator }

// System is the deterministic problem, or nil for stochastic ones.
func (e *Experiment) System() dynamo.System { return e.system }

func (e *Experiment) Stochastic() bool { return e.noisy != nil }
