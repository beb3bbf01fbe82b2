package integrators

import (
	"math"

	"github.com/san-kum/ivpsolve/internal/dynamo"
)

const (
	DefaultTauMin        = 1e-6
	DefaultTauMax        = 1e-1
	DefaultTolerance     = 1e-6
	DefaultFact          = 0.7
	DefaultFactMin       = 0.7
	DefaultFactMax       = 1.5
	DefaultMaxRejections = 1000
)

// Attempt describes one trial of an adaptive step.
type Attempt struct {
	Time     float64
	TimeStep float64
	Error    float64
	Accepted bool
}

// Control bounds and shapes step-size adaptation.
//
// Fact derates the optimal growth factor, FactMin and FactMax limit how fast
// τ may shrink or grow in one proposal, TauMin and TauMax are hard bounds.
// MaxRejections caps consecutive rejections within one step; a negative
// value retries without limit. Zero fields take the package defaults.
type Control struct {
	TauMin        float64
	TauMax        float64
	Tolerance     float64
	Fact          float64
	FactMin       float64
	FactMax       float64
	MaxRejections int

	// OnAttempt, if set, observes every trial including rejected ones.
	OnAttempt func(Attempt)
}

func DefaultControl() Control {
	return Control{
		TauMin:        DefaultTauMin,
		TauMax:        DefaultTauMax,
		Tolerance:     DefaultTolerance,
		Fact:          DefaultFact,
		FactMin:       DefaultFactMin,
		FactMax:       DefaultFactMax,
		MaxRejections: DefaultMaxRejections,
	}
}

func (c Control) withDefaults() Control {
	def := DefaultControl()
	if c.TauMin <= 0 {
		c.TauMin = def.TauMin
	}
	if c.TauMax <= 0 {
		c.TauMax = def.TauMax
	}
	if c.Tolerance <= 0 {
		c.Tolerance = def.Tolerance
	}
	if c.Fact <= 0 {
		c.Fact = def.Fact
	}
	if c.FactMin <= 0 {
		c.FactMin = def.FactMin
	}
	if c.FactMax <= 0 {
		c.FactMax = def.FactMax
	}
	if c.MaxRejections == 0 {
		c.MaxRejections = def.MaxRejections
	}
	return c
}

// Propose returns the next step size after a trial of size tau produced the
// error estimate err with a method whose error scales like τ^order:
//
//	τ' = clamp(fact·(tol/err)^(1/order), factmin, factmax)·τ, clamped to [τmin, τmax]
//
// A NaN estimate keeps τ, clamped.
func (c Control) Propose(tau, err float64, order int) float64 {
	if math.IsNaN(err) {
		return clamp(tau, c.TauMin, c.TauMax)
	}
	growth := c.Fact * math.Pow(c.Tolerance/err, 1/float64(order))
	growth = clamp(growth, c.FactMin, c.FactMax)
	return clamp(tau*growth, c.TauMin, c.TauMax)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

// relativeError is max_i |hat_i − y_i| / |hat_i| divided by 2^order − 1.
// Components with hat_i = 0 contribute their absolute difference.
func relativeError(hat, y dynamo.State, order int) float64 {
	worst := 0.0
	for i := range hat {
		d := math.Abs(hat[i] - y[i])
		if den := math.Abs(hat[i]); den > 0 {
			d /= den
		}
		if math.IsNaN(d) {
			return math.NaN()
		}
		worst = math.Max(worst, d)
	}
	return worst / (math.Exp2(float64(order)) - 1)
}

// adaptiveState is the running state shared by adaptive steppers.
type adaptiveState struct {
	accepted   int
	rejected   int
	lastErr    float64
	initialTau float64
}

// begin records the step size the first call started from so Reset can
// restore it.
func (s *adaptiveState) begin(tau *float64) {
	*tau = tauOrDefault(*tau)
	if s.initialTau == 0 {
		s.initialTau = *tau
	}
}

// reset clears counters and restores the starting step size.
func (s *adaptiveState) reset(tau *float64) {
	if s.initialTau != 0 {
		*tau = s.initialTau
	}
	*s = adaptiveState{}
}

// trial computes a candidate at step size tau and reports the time advance
// it represents and its error estimate.
type trial func(tau float64) (y dynamo.State, advance, errEst float64, err error)

// run retries trial until the error estimate falls below tolerance, updating
// *tau with every proposal.
func (c Control) run(st *adaptiveState, t float64, tau *float64, order int, try trial) (float64, dynamo.State, error) {
	consecutive := 0
	for {
		trialTau := *tau
		y, advance, est, err := try(trialTau)
		if err != nil {
			return t, nil, err
		}
		st.lastErr = est
		*tau = c.Propose(trialTau, est, order)

		// non-finite candidates are handed to the caller's divergence check
		if math.IsNaN(est) || est < c.Tolerance {
			st.accepted++
			c.notify(Attempt{Time: t, TimeStep: trialTau, Error: est, Accepted: true})
			return t + advance, y, nil
		}

		st.rejected++
		consecutive++
		c.notify(Attempt{Time: t, TimeStep: trialTau, Error: est})
		if c.MaxRejections > 0 && consecutive >= c.MaxRejections {
			return t, nil, &dynamo.RejectionError{
				Time:     t,
				TimeStep: trialTau,
				Estimate: est,
				Attempts: consecutive,
			}
		}
	}
}

func (c Control) notify(a Attempt) {
	if c.OnAttempt != nil {
		c.OnAttempt(a)
	}
}

func (s adaptiveState) snapshot(method string, tau float64) dynamo.Snapshot {
	return dynamo.Snapshot{
		Method:   method,
		TimeStep: tauOrDefault(tau),
		Accepted: s.accepted,
		Rejected: s.rejected,
		Error:    s.lastErr,
		Adaptive: true,
	}
}
