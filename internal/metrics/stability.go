package metrics

import (
	"math"

	"github.com/san-kum/ivpsolve/internal/dynamo"
)

// Stability is the fraction of observed states whose max-norm stays within
// threshold. Non-finite states always count as violations.
type Stability struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(_ float64, y dynamo.State, _ dynamo.Snapshot) {
	s.samples++
	if !y.IsValid() || y.MaxNorm() > s.threshold {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}

// GlobalError is the largest max-norm distance between an observed state
// and the closed-form trajectory through the first observed point.
type GlobalError struct {
	sys     dynamo.Analytic
	t0      float64
	y0      dynamo.State
	worst   float64
	samples int
}

func NewGlobalError(sys dynamo.Analytic) *GlobalError {
	return &GlobalError{sys: sys}
}

func (g *GlobalError) Name() string { return "global_error" }

func (g *GlobalError) Observe(t float64, y dynamo.State, _ dynamo.Snapshot) {
	if g.samples == 0 {
		g.t0, g.y0 = t, y.Clone()
	}
	g.samples++

	exact := g.sys.Solution(g.t0, g.y0, t)
	if d := y.Sub(exact).MaxNorm(); d > g.worst || math.IsNaN(d) {
		g.worst = d
	}
}

func (g *GlobalError) Value() float64 { return g.worst }

func (g *GlobalError) Reset() {
	g.y0 = nil
	g.worst = 0
	g.samples = 0
}
