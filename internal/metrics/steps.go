package metrics

import (
	"math"

	"github.com/san-kum/ivpsolve/internal/dynamo"
)

// StepStats follows the stepper counters and the step-size range seen at
// the observation points. Its value is the share of rejected trials.
type StepStats struct {
	Accepted int
	Rejected int
	MinTau   float64
	MaxTau   float64
	// NonConverged counts observations where an implicit step reported a
	// Newton solve that ran out of iterations.
	NonConverged int
}

func NewStepStats() *StepStats {
	s := &StepStats{}
	s.Reset()
	return s
}

func (s *StepStats) Name() string { return "rejection_rate" }

func (s *StepStats) Observe(_ float64, _ dynamo.State, snap dynamo.Snapshot) {
	s.Accepted, s.Rejected = snap.Accepted, snap.Rejected
	s.MinTau = math.Min(s.MinTau, snap.TimeStep)
	s.MaxTau = math.Max(s.MaxTau, snap.TimeStep)
	if snap.Implicit && snap.Accepted > 0 && !snap.Converged {
		s.NonConverged++
	}
}

func (s *StepStats) Value() float64 {
	total := s.Accepted + s.Rejected
	if total == 0 {
		return 0
	}
	return float64(s.Rejected) / float64(total)
}

func (s *StepStats) Reset() {
	*s = StepStats{MinTau: math.Inf(1), MaxTau: math.Inf(-1)}
}
