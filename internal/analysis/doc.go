// Package analysis characterizes trajectories produced by the steppers.
//
//   - [Lyapunov]: largest Lyapunov exponent from two nearby trajectories
//   - [Bifurcation]: local maxima of one component over a parameter sweep
//   - [PowerSpectrum] and [DominantFrequency]: spectra of uniformly sampled series
//
// A positive largest exponent indicates chaotic dynamics:
//
//	lambda, err := analysis.Lyapunov(ctx, sys.Derive, newRK4, y0, 0, 100, analysis.LyapunovOptions{})
//	if err == nil && lambda > 0 {
//	    // chaotic
//	}
package analysis
