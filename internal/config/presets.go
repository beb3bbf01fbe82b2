package config

import "sort"

// preset overlays a problem and method on the defaults.
func preset(problem, method string, tau, t1 float64, adjust func(*Config)) *Config {
	cfg := DefaultConfig()
	cfg.Problem, cfg.Method = problem, method
	cfg.Tau, cfg.T1 = tau, t1
	if adjust != nil {
		adjust(cfg)
	}
	return cfg
}

var Presets = map[string]map[string]*Config{
	"spring-mass": {
		"rk4":       preset("spring-mass", "rk4", 0.01, 20, nil),
		"dopri45":   preset("spring-mass", "dopri45", 1e-3, 20, nil),
		"trapezoid": preset("spring-mass", "symplectic-euler", 0.05, 50, nil),
		"damped": preset("spring-mass", "rk4", 0.01, 40, func(c *Config) {
			c.Params = map[string]float64{"damping": 0.5}
		}),
	},
	"exponent": {
		"rk4re":   preset("exponent", "rk4re", 1e-3, 3, func(c *Config) { c.T0 = 0.1 }),
		"dopri45": preset("exponent", "dopri45", 1e-3, 3, func(c *Config) { c.T0 = 0.1 }),
		"adams":   preset("exponent", "adams", 1e-4, 3, func(c *Config) { c.T0 = 0.1 }),
	},
	"stiff-decay": {
		"implicit": preset("stiff-decay", "implicit-euler", 0.01, 2, nil),
		"trapezoid": preset("stiff-decay", "symplectic-euler", 0.01, 2, func(c *Config) {
			c.Newton.Linear = "qr"
		}),
		"unstable": preset("stiff-decay", "euler", 0.01, 2, func(c *Config) { c.Verify = false }),
	},
	"vanderpol": {
		"relaxed": preset("vanderpol", "dopri45", 1e-3, 30, nil),
		"stiff": preset("vanderpol", "implicit-euler", 1e-3, 10, func(c *Config) {
			c.Params = map[string]float64{"mu": 100}
		}),
	},
	"lorenz": {
		"chaos": preset("lorenz", "rk4", 0.005, 50, nil),
	},
	"three-body": {
		"leapfrog": preset("three-body", "leapfrog", 1e-3, 20, nil),
		"verlet":   preset("three-body", "verlet", 1e-3, 20, nil),
	},
	"gbm": {
		"euler-maruyama": preset("gbm", "euler-maruyama", 1e-3, 1, nil),
		"milstein":       preset("gbm", "milstein", 1e-3, 1, nil),
	},
	"ou": {
		"reverting": preset("ou", "euler-maruyama", 1e-3, 5, func(c *Config) {
			c.InitState = []float64{3}
		}),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(problem, name string) *Config {
	problemPresets, ok := Presets[problem]
	if !ok {
		return nil
	}
	cfg, ok := problemPresets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets(problem string) []string {
	problemPresets, ok := Presets[problem]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(problemPresets))
	for name := range problemPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
