// Package physics provides the benchmark problems the solvers are run on.
//
// Deterministic problems implement [dynamo.System]:
//
//   - [SpringMass]: harmonic oscillator with a closed-form solution
//   - [Exponent]: nonlinear system with solution (e^{sin t²}, e^{cos t²})
//   - [Decay]: linear relaxation towards cos t, stiff for large λ
//   - [VanDerPol], [Duffing], [Pendulum], [DoubleWell]: nonlinear oscillators
//   - [Lorenz], [Rossler]: chaotic attractors
//   - [ThreeBody]: softened planar gravitational problem
//
// [GBM] and [OrnsteinUhlenbeck] provide drift and diffusion for the
// stochastic solvers in package sde.
//
// Problems with a known trajectory implement [dynamo.Analytic]; all of them
// implement [dynamo.Configurable] for runtime parameter adjustment.
//
// # Energy Conservation
//
// For Hamiltonian systems, use [dynamo.Hamiltonian] to monitor energy drift:
//
//	sys := physics.NewPendulum()
//	if h, ok := dynamo.System(sys).(dynamo.Hamiltonian); ok {
//	    energy := h.Energy(state)
//	}
package physics
