package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/san-kum/ivpsolve/internal/dynamo"
)

// Recorder publishes the progress of an integration as Prometheus metrics.
// It plugs into a Simulator like any other metric and is updated at the
// observation cadence.
type Recorder struct {
	time         prometheus.Gauge
	stepSize     prometheus.Gauge
	estimate     prometheus.Gauge
	newton       prometheus.Gauge
	accepted     prometheus.Counter
	rejected     prometheus.Counter
	observations prometheus.Counter

	lastAccepted int
	lastRejected int
	lastTime     float64
}

// NewRecorder registers the recorder's collectors with reg under the given
// problem and method labels. A nil reg leaves them unregistered.
func NewRecorder(reg prometheus.Registerer, problem, method string) *Recorder {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"problem": problem, "method": method}

	return &Recorder{
		time: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "ivpsolve_time",
			Help:        "Simulated time of the latest observation",
			ConstLabels: labels,
		}),
		stepSize: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "ivpsolve_step_size",
			Help:        "Current step size of the stepper",
			ConstLabels: labels,
		}),
		estimate: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "ivpsolve_error_estimate",
			Help:        "Latest local error estimate of an adaptive stepper",
			ConstLabels: labels,
		}),
		newton: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "ivpsolve_newton_iterations",
			Help:        "Newton iterations of the latest implicit step",
			ConstLabels: labels,
		}),
		accepted: factory.NewCounter(prometheus.CounterOpts{
			Name:        "ivpsolve_steps_accepted_total",
			Help:        "Accepted steps",
			ConstLabels: labels,
		}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Name:        "ivpsolve_steps_rejected_total",
			Help:        "Rejected trial steps",
			ConstLabels: labels,
		}),
		observations: factory.NewCounter(prometheus.CounterOpts{
			Name:        "ivpsolve_observations_total",
			Help:        "Observer callbacks",
			ConstLabels: labels,
		}),
	}
}

func (r *Recorder) Name() string { return "prometheus" }

func (r *Recorder) Observe(t float64, _ dynamo.State, snap dynamo.Snapshot) {
	r.observations.Inc()
	r.time.Set(t)
	r.stepSize.Set(snap.TimeStep)
	r.estimate.Set(snap.Error)
	if snap.Implicit {
		r.newton.Set(float64(snap.Iterations))
	}

	// counters only move forward; a stepper reset starts a new baseline
	if d := snap.Accepted - r.lastAccepted; d > 0 {
		r.accepted.Add(float64(d))
	}
	if d := snap.Rejected - r.lastRejected; d > 0 {
		r.rejected.Add(float64(d))
	}
	r.lastAccepted, r.lastRejected = snap.Accepted, snap.Rejected
	r.lastTime = t
}

// Value is the simulated time of the latest observation.
func (r *Recorder) Value() float64 { return r.lastTime }

func (r *Recorder) Reset() {
	r.lastAccepted, r.lastRejected = 0, 0
	r.lastTime = 0
}
