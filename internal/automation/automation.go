// Package automation runs scripted sequences of experiments and Monte
// Carlo studies over perturbed initial states.
package automation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat/distuv"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/ivpsolve/internal/config"
	"github.com/san-kum/ivpsolve/internal/dynamo"
	"github.com/san-kum/ivpsolve/internal/experiment"
	"github.com/san-kum/ivpsolve/internal/sim"
	"github.com/san-kum/ivpsolve/internal/storage"
)

// Scenario is a named sequence of runs. Each step is a full configuration
// whose unset fields take the defaults.
type Scenario struct {
	Name        string
	Description string
	Steps       []Step
}

type Step struct {
	Name   string
	Config *config.Config
}

type scenarioFile struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Steps       []yaml.Node `yaml:"steps"`
}

// LoadScenario reads a scenario from a YAML file:
//
//	name: stiff comparison
//	steps:
//	  - name: explicit
//	    problem: stiff-decay
//	    method: rk4
//	    tau: 0.001
//	  - name: implicit
//	    problem: stiff-decay
//	    method: implicit-euler
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file scenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", file.Name)
	}

	sc := &Scenario{Name: file.Name, Description: file.Description}
	for i := range file.Steps {
		node := &file.Steps[i]

		var named struct {
			Name string `yaml:"name"`
		}
		if err := node.Decode(&named); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		cfg := config.DefaultConfig()
		if err := node.Decode(cfg); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}

		name := named.Name
		if name == "" {
			name = fmt.Sprintf("%s/%s", cfg.Problem, cfg.Method)
		}
		sc.Steps = append(sc.Steps, Step{Name: name, Config: cfg})
	}
	return sc, nil
}

type StepResult struct {
	Name   string
	Result *sim.Result
	// RunID is set when the run was stored.
	RunID string
}

// RunScenario executes the steps in order and stops at the first failure,
// returning the results so far. With a non-nil store every run, including
// the failing one, is saved.
func RunScenario(ctx context.Context, sc *Scenario, reg *experiment.Registry, store *storage.Store, logger zerolog.Logger) ([]StepResult, error) {
	results := make([]StepResult, 0, len(sc.Steps))

	for i, step := range sc.Steps {
		logger.Info().
			Str("scenario", sc.Name).
			Str("step", step.Name).
			Int("index", i+1).
			Int("of", len(sc.Steps)).
			Msg("running step")

		exp := experiment.New(step.Config, reg)
		exp.SetLogger(logger)
		if err := exp.Setup(); err != nil {
			return results, fmt.Errorf("step %d (%s) setup: %w", i+1, step.Name, err)
		}

		result, runErr := exp.Run(ctx)
		sr := StepResult{Name: step.Name, Result: result}
		if store != nil && result != nil {
			id, err := store.Save(step.Config, result, runErr)
			if err != nil {
				return results, fmt.Errorf("step %d (%s) save: %w", i+1, step.Name, err)
			}
			sr.RunID = id
		}
		if runErr != nil {
			return results, fmt.Errorf("step %d (%s) run: %w", i+1, step.Name, runErr)
		}
		results = append(results, sr)
	}

	return results, nil
}

const (
	DefaultStableBound = 1e6

	pcgStream = 0xda3e39cb94b95bdb
)

// MonteCarloConfig perturbs every component of the initial state of Base
// uniformly in [−Perturbation, Perturbation].
type MonteCarloConfig struct {
	Base         *config.Config
	Perturbation float64
	Trials       int
	Seed         uint64
	// Bound is the max-norm above which a final state counts as unstable.
	Bound float64
	// Concurrency caps parallel trials; zero uses GOMAXPROCS.
	Concurrency int
}

type MonteCarloResult struct {
	TrialID    int
	InitState  dynamo.State
	FinalState dynamo.State
	// Stable is false when the run diverged or ended outside Bound.
	Stable bool
	Err    error
}

// RunMonteCarlo runs the trials in parallel. The perturbations depend only
// on Seed, so results are reproducible regardless of scheduling.
func RunMonteCarlo(ctx context.Context, mc MonteCarloConfig, reg *experiment.Registry) ([]MonteCarloResult, error) {
	if mc.Base == nil {
		return nil, fmt.Errorf("monte carlo: no base configuration")
	}
	if mc.Trials < 1 {
		return nil, fmt.Errorf("monte carlo: need at least one trial, got %d", mc.Trials)
	}
	if reg == nil {
		reg = experiment.NewRegistry()
	}
	bound := mc.Bound
	if bound <= 0 {
		bound = DefaultStableBound
	}

	base, err := baseState(mc.Base, reg)
	if err != nil {
		return nil, err
	}

	noise := distuv.Uniform{
		Min: -mc.Perturbation,
		Max: mc.Perturbation,
		Src: rand.NewPCG(mc.Seed, mc.Seed^pcgStream),
	}
	inits := make([]dynamo.State, mc.Trials)
	for i := range inits {
		inits[i] = base.Clone()
		if mc.Perturbation > 0 {
			for j := range inits[i] {
				inits[i][j] += noise.Rand()
			}
		}
	}

	limit := mc.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	return sim.RunEach(ctx, mc.Trials, limit, func(ctx context.Context, i int) (MonteCarloResult, error) {
		cfg := mc.Base.Clone()
		cfg.InitState = inits[i].Clone()

		exp := experiment.New(cfg, reg)
		if err := exp.Setup(); err != nil {
			return MonteCarloResult{}, err
		}

		result, err := exp.Run(ctx)
		if ctx.Err() != nil {
			return MonteCarloResult{}, ctx.Err()
		}

		r := MonteCarloResult{TrialID: i, InitState: inits[i], Err: err}
		if result != nil {
			r.FinalState = result.Final
		}
		r.Stable = err == nil && r.FinalState.IsValid() && r.FinalState.MaxNorm() <= bound
		return r, nil
	})
}

func baseState(cfg *config.Config, reg *experiment.Registry) (dynamo.State, error) {
	if len(cfg.InitState) > 0 {
		return dynamo.State(cfg.InitState).Clone(), nil
	}
	if reg.IsStochastic(cfg.Problem) {
		sys, err := reg.GetStochastic(cfg.Problem)
		if err != nil {
			return nil, err
		}
		return sys.DefaultState(), nil
	}
	sys, err := reg.GetProblem(cfg.Problem)
	if err != nil {
		return nil, err
	}
	return sys.DefaultState(), nil
}

func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}
