package integrators

import (
	"github.com/san-kum/ivpsolve/internal/dynamo"
)

const DefaultTau = 1e-3

// derive evaluates f and rejects derivatives of the wrong size.
func derive(f dynamo.Func, t float64, y dynamo.State) (dynamo.State, error) {
	dy := f(t, y)
	if err := dynamo.CheckDim(y, dy); err != nil {
		return nil, err
	}
	return dy, nil
}

func tauOrDefault(tau float64) float64 {
	if tau <= 0 {
		return DefaultTau
	}
	return tau
}

// axpy writes y + a·x into dst.
func axpy(dst, y dynamo.State, a float64, x dynamo.State) {
	for i := range dst {
		dst[i] = y[i] + a*x[i]
	}
}

func ensure(buf dynamo.State, n int) dynamo.State {
	if len(buf) != n {
		return make(dynamo.State, n)
	}
	return buf
}
