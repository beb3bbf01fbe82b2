package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/ivpsolve/internal/config"
	"github.com/san-kum/ivpsolve/internal/dynamo"
	"github.com/san-kum/ivpsolve/internal/integrators"
	"github.com/san-kum/ivpsolve/internal/metrics"
	"github.com/san-kum/ivpsolve/internal/physics"
	"github.com/san-kum/ivpsolve/internal/sde"
)

// DefaultStabilityBound is the max-norm above which a state counts as a
// stability violation in DefaultMetrics.
const DefaultStabilityBound = 1e6

// Registry maps names to problem and method factories. Every lookup builds
// a fresh instance.
type Registry struct {
	problems   map[string]func() dynamo.System
	stochastic map[string]func() sde.System
	methods    map[string]func(cfg *config.Config) (dynamo.Stepper, error)
	sdeMethods map[string]func(tau float64) sde.Stepper
}

func NewRegistry() *Registry {
	r := &Registry{
		problems:   make(map[string]func() dynamo.System),
		stochastic: make(map[string]func() sde.System),
		methods:    make(map[string]func(*config.Config) (dynamo.Stepper, error)),
		sdeMethods: make(map[string]func(float64) sde.Stepper),
	}

	r.problems["spring-mass"] = func() dynamo.System { return physics.NewSpringMass() }
	r.problems["exponent"] = func() dynamo.System { return physics.NewExponent() }
	r.problems["decay"] = func() dynamo.System { return physics.NewDecay() }
	r.problems["stiff-decay"] = func() dynamo.System { return physics.NewStiffDecay() }
	r.problems["vanderpol"] = func() dynamo.System { return physics.NewVanDerPol() }
	r.problems["lorenz"] = func() dynamo.System { return physics.NewLorenz() }
	r.problems["rossler"] = func() dynamo.System { return physics.NewRossler() }
	r.problems["duffing"] = func() dynamo.System { return physics.NewDuffing() }
	r.problems["pendulum"] = func() dynamo.System { return physics.NewPendulum() }
	r.problems["double-pendulum"] = func() dynamo.System { return physics.NewDoublePendulum() }
	r.problems["double-well"] = func() dynamo.System { return physics.NewDoubleWell() }
	r.problems["three-body"] = func() dynamo.System { return physics.NewThreeBody() }

	r.stochastic["gbm"] = func() sde.System { return physics.NewGBM() }
	r.stochastic["ou"] = func() sde.System { return physics.NewOrnsteinUhlenbeck() }

	fixed := func(build func(tau float64) dynamo.Stepper) func(*config.Config) (dynamo.Stepper, error) {
		return func(cfg *config.Config) (dynamo.Stepper, error) { return build(cfg.Tau), nil }
	}
	r.methods["euler"] = fixed(func(tau float64) dynamo.Stepper { return &integrators.Euler{Tau: tau} })
	r.methods["rk4"] = fixed(func(tau float64) dynamo.Stepper { return &integrators.RK4{Tau: tau} })
	r.methods["adams"] = fixed(func(tau float64) dynamo.Stepper { return &integrators.AdamsRK4{Tau: tau} })
	r.methods["verlet"] = fixed(func(tau float64) dynamo.Stepper { return &integrators.Verlet{Tau: tau} })
	r.methods["leapfrog"] = fixed(func(tau float64) dynamo.Stepper { return &integrators.Leapfrog{Tau: tau} })

	r.methods["rk4re"] = func(cfg *config.Config) (dynamo.Stepper, error) {
		return &integrators.RK4RE{Tau: cfg.Tau, Control: cfg.Control()}, nil
	}
	r.methods["dopri45"] = func(cfg *config.Config) (dynamo.Stepper, error) {
		return &integrators.DOPRI45{Tau: cfg.Tau, Control: cfg.Control()}, nil
	}
	r.methods["implicit-euler"] = func(cfg *config.Config) (dynamo.Stepper, error) {
		newton, err := cfg.NewtonSettings()
		if err != nil {
			return nil, err
		}
		return &integrators.ImplicitEuler{Tau: cfg.Tau, Newton: newton}, nil
	}
	r.methods["symplectic-euler"] = func(cfg *config.Config) (dynamo.Stepper, error) {
		newton, err := cfg.NewtonSettings()
		if err != nil {
			return nil, err
		}
		return &integrators.SymplecticEuler{Tau: cfg.Tau, Newton: newton}, nil
	}

	r.sdeMethods["euler-maruyama"] = func(tau float64) sde.Stepper { return &sde.EulerMaruyama{Tau: tau} }
	r.sdeMethods["milstein"] = func(tau float64) sde.Stepper { return &sde.Milstein{Tau: tau} }

	return r
}

func (r *Registry) GetProblem(name string) (dynamo.System, error) {
	fn, ok := r.problems[name]
	if !ok {
		return nil, fmt.Errorf("unknown problem: %s", name)
	}
	return fn(), nil
}

func (r *Registry) GetStochastic(name string) (sde.System, error) {
	fn, ok := r.stochastic[name]
	if !ok {
		return nil, fmt.Errorf("unknown stochastic problem: %s", name)
	}
	return fn(), nil
}

// GetMethod builds the named deterministic stepper from the step size,
// adaptive control and Newton settings in cfg.
func (r *Registry) GetMethod(name string, cfg *config.Config) (dynamo.Stepper, error) {
	fn, ok := r.methods[name]
	if !ok {
		return nil, fmt.Errorf("unknown method: %s", name)
	}
	return fn(cfg)
}

func (r *Registry) GetSDEMethod(name string, tau float64) (sde.Stepper, error) {
	fn, ok := r.sdeMethods[name]
	if !ok {
		return nil, fmt.Errorf("unknown sde method: %s", name)
	}
	return fn(tau), nil
}

func (r *Registry) IsStochastic(problem string) bool {
	_, ok := r.stochastic[problem]
	return ok
}

func (r *Registry) ListProblems() []string   { return sortedKeys(r.problems) }
func (r *Registry) ListStochastic() []string { return sortedKeys(r.stochastic) }
func (r *Registry) ListMethods() []string    { return sortedKeys(r.methods) }
func (r *Registry) ListSDEMethods() []string { return sortedKeys(r.sdeMethods) }

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics returns the metrics that apply to sys: stability and step
// statistics always, energy drift for Hamiltonian systems and global error
// when a closed-form solution is known.
func (r *Registry) DefaultMetrics(sys any) []dynamo.Metric {
	ms := []dynamo.Metric{
		metrics.NewStability(DefaultStabilityBound),
		metrics.NewStepStats(),
	}
	if ds, ok := sys.(dynamo.System); ok {
		if _, ok := sys.(dynamo.Hamiltonian); ok {
			ms = append(ms, metrics.NewEnergyDrift(ds))
		}
	}
	if a, ok := sys.(dynamo.Analytic); ok {
		ms = append(ms, metrics.NewGlobalError(a))
	}
	return ms
}
