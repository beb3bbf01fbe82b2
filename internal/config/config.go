package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/ivpsolve/internal/diff"
	"github.com/san-kum/ivpsolve/internal/integrators"
	"github.com/san-kum/ivpsolve/internal/linalg"
	"github.com/san-kum/ivpsolve/internal/nonlinear"
)

const (
	DefaultTau      = 0.01
	DefaultT1       = 10.0
	DefaultSeed     = 42
	DefaultLinear   = "lu"
	DefaultJacobian = "central"

	// AutoFrequency lets the driving loop pick the observation cadence.
	AutoFrequency = -1.0
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Problem   string             `yaml:"problem"`
	Method    string             `yaml:"method"`
	T0        float64            `yaml:"t0"`
	T1        float64            `yaml:"t1"`
	Tau       float64            `yaml:"tau"`
	Frequency float64            `yaml:"frequency"`
	Verify    bool               `yaml:"verify"`
	Seed      uint64             `yaml:"seed"`
	InitState []float64          `yaml:"init_state,omitempty"`
	Params    map[string]float64 `yaml:"params,omitempty"`
	Adaptive  AdaptiveConfig     `yaml:"adaptive"`
	Newton    NewtonConfig       `yaml:"newton"`
}

type AdaptiveConfig struct {
	TauMin        float64 `yaml:"tau_min"`
	TauMax        float64 `yaml:"tau_max"`
	Tolerance     float64 `yaml:"tolerance"`
	Fact          float64 `yaml:"fact"`
	FactMin       float64 `yaml:"fact_min"`
	FactMax       float64 `yaml:"fact_max"`
	MaxRejections int     `yaml:"max_rejections"`
}

type NewtonConfig struct {
	Precision     float64 `yaml:"precision"`
	MaxIterations int     `yaml:"max_iterations"`
	Linear        string  `yaml:"linear"`
	Jacobian      string  `yaml:"jacobian"`
}

func DefaultConfig() *Config {
	return &Config{
		Problem:   "spring-mass",
		Method:    "rk4",
		T0:        0,
		T1:        DefaultT1,
		Tau:       DefaultTau,
		Frequency: AutoFrequency,
		Verify:    true,
		Seed:      DefaultSeed,
		Adaptive: AdaptiveConfig{
			TauMin:        integrators.DefaultTauMin,
			TauMax:        integrators.DefaultTauMax,
			Tolerance:     integrators.DefaultTolerance,
			Fact:          integrators.DefaultFact,
			FactMin:       integrators.DefaultFactMin,
			FactMax:       integrators.DefaultFactMax,
			MaxRejections: integrators.DefaultMaxRejections,
		},
		Newton: NewtonConfig{
			Precision:     integrators.DefaultNewtonPrecision,
			MaxIterations: nonlinear.DefaultMaxIterations,
			Linear:        DefaultLinear,
			Jacobian:      DefaultJacobian,
		},
	}
}

// Load reads a YAML file on top of DefaultConfig and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the numeric ranges and the Newton collaborator names.
// Problem and method names are resolved by the experiment registry.
func (c *Config) Validate() error {
	if c.Problem == "" || c.Method == "" {
		return fmt.Errorf("%w: problem and method are required", ErrInvalid)
	}
	if !(c.T1 > c.T0) {
		return fmt.Errorf("%w: t1 (%g) must be greater than t0 (%g)", ErrInvalid, c.T1, c.T0)
	}
	if c.Tau <= 0 {
		return fmt.Errorf("%w: tau must be positive, got %g", ErrInvalid, c.Tau)
	}

	a := c.Adaptive
	if a.TauMin < 0 || a.TauMax < 0 || a.Tolerance < 0 {
		return fmt.Errorf("%w: adaptive bounds must not be negative", ErrInvalid)
	}
	if a.TauMin > 0 && a.TauMax > 0 && a.TauMin > a.TauMax {
		return fmt.Errorf("%w: tau_min %g exceeds tau_max %g", ErrInvalid, a.TauMin, a.TauMax)
	}
	if a.FactMin > 0 && a.FactMax > 0 && a.FactMin > a.FactMax {
		return fmt.Errorf("%w: fact_min %g exceeds fact_max %g", ErrInvalid, a.FactMin, a.FactMax)
	}

	if c.Newton.Linear != "" {
		if _, err := linalg.ByName(c.Newton.Linear); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	if c.Newton.Jacobian != "" {
		if _, err := diff.ByName(c.Newton.Jacobian); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return nil
}

// Control converts the adaptive section for the adaptive steppers.
func (c *Config) Control() integrators.Control {
	return integrators.Control{
		TauMin:        c.Adaptive.TauMin,
		TauMax:        c.Adaptive.TauMax,
		Tolerance:     c.Adaptive.Tolerance,
		Fact:          c.Adaptive.Fact,
		FactMin:       c.Adaptive.FactMin,
		FactMax:       c.Adaptive.FactMax,
		MaxRejections: c.Adaptive.MaxRejections,
	}
}

// NewtonSettings resolves the Newton section into solver settings.
func (c *Config) NewtonSettings() (nonlinear.Settings, error) {
	linear := c.Newton.Linear
	if linear == "" {
		linear = DefaultLinear
	}
	jacobian := c.Newton.Jacobian
	if jacobian == "" {
		jacobian = DefaultJacobian
	}

	ls, err := linalg.ByName(linear)
	if err != nil {
		return nonlinear.Settings{}, err
	}
	jm, err := diff.ByName(jacobian)
	if err != nil {
		return nonlinear.Settings{}, err
	}
	return nonlinear.Settings{
		Precision:     c.Newton.Precision,
		MaxIterations: c.Newton.MaxIterations,
		Method:        nonlinear.Newton{Jacobian: jm, Linear: ls},
	}, nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	if c.InitState != nil {
		out.InitState = append([]float64(nil), c.InitState...)
	}
	if c.Params != nil {
		out.Params = make(map[string]float64, len(c.Params))
		for k, v := range c.Params {
			out.Params[k] = v
		}
	}
	return &out
}
