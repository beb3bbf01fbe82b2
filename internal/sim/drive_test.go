package sim

import (
	"bytes"
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/san-kum/ivpsolve/internal/dynamo"
	"github.com/san-kum/ivpsolve/internal/integrators"
	"github.com/san-kum/ivpsolve/internal/nonlinear"
)

var _ = Describe("Solve", func() {
	var (
		ctx   context.Context
		times []float64
		snaps []dynamo.Snapshot
	)

	constant := func(t float64, y dynamo.State) dynamo.State { return dynamo.State{1} }
	record := func(t float64, y dynamo.State, snap dynamo.Snapshot) dynamo.Signal {
		times = append(times, t)
		snaps = append(snaps, snap)
		return dynamo.Continue
	}

	BeforeEach(func() {
		ctx = context.Background()
		times, snaps = nil, nil
	})

	Describe("observation cadence", func() {
		DescribeTable("fires floor((t1-t0)/freq)+1 times",
			func(tau, freq, t1 float64, want int) {
				opts := Options{Observer: record, Frequency: freq, Verify: true}
				_, _, err := Solve(ctx, constant, dynamo.State{0}, 0, t1, &integrators.Euler{Tau: tau}, opts)
				Expect(err).NotTo(HaveOccurred())
				Expect(times).To(HaveLen(want))
				Expect(times[0]).To(Equal(0.0))
			},
			Entry("step divides the interval", 0.25, 1.0, 10.0, 11),
			Entry("step does not divide the interval", 0.375, 1.0, 10.0, 11),
			Entry("coarse interval", 0.125, 2.5, 10.0, 5),
			Entry("every step", 0.5, 0.0, 10.0, 21),
			Entry("frequency beyond the interval", 0.25, 100.0, 10.0, 1),
		)

		It("resolves AutoFrequency to a hundredth of the interval", func() {
			opts := Options{Observer: record, Frequency: AutoFrequency}
			_, _, err := Solve(ctx, constant, dynamo.State{0}, 0, 25, &integrators.Euler{Tau: 0.125}, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(times).To(HaveLen(DefaultCallbacks + 1))
			Expect(times[1]).To(Equal(0.25))
		})

		It("keeps the fractional carry instead of resetting", func() {
			opts := Options{Observer: record, Frequency: 1}
			_, _, err := Solve(ctx, constant, dynamo.State{0}, 0, 3, &integrators.Euler{Tau: 0.375}, opts)
			Expect(err).NotTo(HaveOccurred())
			// 1.125 fires leaving 0.125, which makes 2.25 fire leaving 0.25
			Expect(times).To(Equal([]float64{0, 1.125, 2.25, 3}))
		})
	})

	It("does not clamp the last step onto t1", func() {
		end, y, err := Solve(ctx, constant, dynamo.State{0}, 0, 10, &integrators.Euler{Tau: 0.375}, Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(end).To(Equal(10.125))
		Expect(y[0]).To(Equal(10.125))
	})

	It("leaves the initial state untouched", func() {
		y0 := dynamo.State{1, 0}
		_, _, err := Solve(ctx, func(t float64, y dynamo.State) dynamo.State {
			return dynamo.State{y[1], -y[0]}
		}, y0, 0, 1, integrators.NewRK4(), DefaultOptions())
		Expect(err).NotTo(HaveOccurred())
		Expect(y0).To(Equal(dynamo.State{1, 0}))
	})

	It("stops when the observer breaks", func() {
		opts := Options{Frequency: 0, Observer: func(t float64, y dynamo.State, snap dynamo.Snapshot) dynamo.Signal {
			times = append(times, t)
			if t >= 2 {
				return dynamo.Break
			}
			return dynamo.Continue
		}}
		end, y, err := Solve(ctx, constant, dynamo.State{0}, 0, 10, &integrators.Euler{Tau: 0.25}, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(end).To(Equal(2.0))
		Expect(y[0]).To(Equal(2.0))
		Expect(times).To(HaveLen(9))
	})

	It("stops at t0 when the first observation breaks", func() {
		calls := 0
		f := func(t float64, y dynamo.State) dynamo.State { calls++; return dynamo.State{1} }
		opts := Options{Observer: func(float64, dynamo.State, dynamo.Snapshot) dynamo.Signal { return dynamo.Break }}
		end, _, err := Solve(ctx, f, dynamo.State{0}, 0, 10, integrators.NewEuler(), opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(end).To(Equal(0.0))
		Expect(calls).To(BeZero())
	})

	It("honours context cancellation between steps", func() {
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		opts := Options{Frequency: 0, Observer: func(t float64, y dynamo.State, snap dynamo.Snapshot) dynamo.Signal {
			if t >= 1 {
				cancel()
			}
			return dynamo.Continue
		}}
		end, _, err := Solve(cctx, constant, dynamo.State{0}, 0, 10, &integrators.Euler{Tau: 0.25}, opts)
		Expect(err).To(MatchError(context.Canceled))
		Expect(end).To(Equal(1.0))
	})

	Describe("verification", func() {
		blowup := func(t float64, y dynamo.State) dynamo.State {
			if t >= 1 {
				return dynamo.State{0, math.NaN()}
			}
			return dynamo.State{1, 1}
		}

		It("reports divergence with progress, time and component", func() {
			_, _, err := Solve(ctx, blowup, dynamo.State{0, 0}, 0, 10, &integrators.Euler{Tau: 0.25}, DefaultOptions())
			Expect(errors.Is(err, dynamo.ErrDiverged)).To(BeTrue())

			var div *dynamo.DivergenceError
			Expect(errors.As(err, &div)).To(BeTrue())
			Expect(div.Time).To(Equal(1.25))
			Expect(div.Progress).To(BeNumerically("~", 0.125, 1e-12))
			Expect(div.Index).To(Equal(1))
			Expect(math.IsNaN(div.Value)).To(BeTrue())
		})

		It("checks the initial state", func() {
			_, _, err := Solve(ctx, constant, dynamo.State{math.Inf(1)}, 0, 1, integrators.NewEuler(), DefaultOptions())
			var div *dynamo.DivergenceError
			Expect(errors.As(err, &div)).To(BeTrue())
			Expect(div.Progress).To(BeZero())
			Expect(div.Index).To(BeZero())
		})

		nanAfterHalf := func(t float64, y dynamo.State) dynamo.State {
			if t > 0.5 {
				return dynamo.State{math.NaN()}
			}
			return dynamo.State{-y[0]}
		}

		DescribeTable("reports divergence from implicit methods",
			func(s dynamo.Stepper) {
				_, _, err := Solve(ctx, nanAfterHalf, dynamo.State{1}, 0, 1, s, DefaultOptions())
				Expect(errors.Is(err, dynamo.ErrDiverged)).To(BeTrue())

				var div *dynamo.DivergenceError
				Expect(errors.As(err, &div)).To(BeTrue())
				Expect(div.Time).To(Equal(0.625))
				Expect(div.Progress).To(BeNumerically("~", 0.625, 1e-12))
				Expect(div.Index).To(BeZero())
			},
			Entry("implicit euler", &integrators.ImplicitEuler{Tau: 0.125}),
			Entry("trapezoidal", &integrators.SymplecticEuler{Tau: 0.125}),
		)

		DescribeTable("lets implicit methods run on when disabled",
			func(s dynamo.Stepper) {
				end, y, err := Solve(ctx, nanAfterHalf, dynamo.State{1}, 0, 1, s, Options{})
				Expect(err).NotTo(HaveOccurred())
				Expect(end).To(Equal(1.0))
				Expect(y.IsValid()).To(BeFalse())
			},
			Entry("implicit euler", &integrators.ImplicitEuler{Tau: 0.125}),
			Entry("trapezoidal", &integrators.SymplecticEuler{Tau: 0.125}),
		)

		It("runs to completion when disabled", func() {
			end, y, err := Solve(ctx, blowup, dynamo.State{0, 0}, 0, 2, &integrators.Euler{Tau: 0.25}, Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(end).To(Equal(2.0))
			Expect(y.IsValid()).To(BeFalse())
		})
	})

	Describe("errors", func() {
		It("rejects an invalid interval", func() {
			_, _, err := Solve(ctx, constant, dynamo.State{0}, 1, 0, integrators.NewEuler(), Options{})
			Expect(err).To(MatchError(dynamo.ErrInvalidInterval))
			_, _, err = Solve(ctx, constant, dynamo.State{0}, 0, math.NaN(), integrators.NewEuler(), Options{})
			Expect(err).To(MatchError(dynamo.ErrInvalidInterval))
		})

		It("rejects a nil right-hand side", func() {
			_, _, err := Solve(ctx, nil, dynamo.State{0}, 0, 1, integrators.NewEuler(), Options{})
			Expect(err).To(MatchError(dynamo.ErrNilFunc))
		})

		It("wraps stepper failures with the step index", func() {
			wrong := func(t float64, y dynamo.State) dynamo.State { return dynamo.State{1, 2} }
			_, _, err := Solve(ctx, wrong, dynamo.State{0}, 0, 1, integrators.NewRK4(), Options{})
			Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())

			var stepErr *dynamo.StepError
			Expect(errors.As(err, &stepErr)).To(BeTrue())
			Expect(stepErr.Step).To(BeZero())
		})

		It("surfaces the rejection guard", func() {
			control := integrators.Control{TauMin: 0.5, TauMax: 0.5, Tolerance: 1e-14, MaxRejections: 2}
			decay := func(t float64, y dynamo.State) dynamo.State { return dynamo.State{-y[0]} }
			_, _, err := Solve(ctx, decay, dynamo.State{1}, 0, 5, &integrators.DOPRI45{Tau: 0.5, Control: control}, Options{})
			Expect(errors.Is(err, dynamo.ErrStepRejected)).To(BeTrue())
		})
	})

	Describe("stepper state", func() {
		decay := func(t float64, y dynamo.State) dynamo.State { return dynamo.State{-y[0]} }

		It("hands observers a snapshot of the adaptive controller", func() {
			opts := Options{Observer: record, Frequency: 0}
			_, _, err := Solve(ctx, decay, dynamo.State{1}, 0, 1, integrators.NewDOPRI45(), opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(snaps[0].Accepted).To(BeZero())
			for i, snap := range snaps[1:] {
				Expect(snap.Adaptive).To(BeTrue())
				Expect(snap.Accepted).To(Equal(i + 1))
				Expect(snap.Error).To(BeNumerically("<", integrators.DefaultTolerance))
			}
		})

		It("continues the running state when a stepper is reused", func() {
			s := integrators.NewRK4RE()
			_, _, err := Solve(ctx, decay, dynamo.State{1}, 0, 1, s, Options{})
			Expect(err).NotTo(HaveOccurred())
			first := s.Snapshot()

			_, _, err = Solve(ctx, decay, dynamo.State{1}, 0, 1, s, Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Snapshot().Accepted).To(BeNumerically(">", first.Accepted))
			Expect(s.Snapshot().TimeStep).NotTo(Equal(integrators.DefaultTau))
		})

		It("logs a warning when a Newton solve does not converge", func() {
			var buf bytes.Buffer
			logger := zerolog.New(&buf).Level(zerolog.WarnLevel)

			s := &integrators.ImplicitEuler{Tau: 0.1, Newton: nonlinear.Settings{MaxIterations: 1}}
			square := func(t float64, y dynamo.State) dynamo.State { return dynamo.State{-y[0] * y[0]} }
			_, _, err := Solve(ctx, square, dynamo.State{1}, 0, 0.3, s, Options{Logger: &logger})
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Snapshot().Converged).To(BeFalse())
			Expect(buf.String()).To(ContainSubstring("newton iteration did not converge"))
		})
	})
})
