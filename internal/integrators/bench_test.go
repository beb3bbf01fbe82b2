package integrators

import (
	"testing"

	"github.com/san-kum/ivpsolve/internal/dynamo"
)

func benchmarkStepper(b *testing.B, s dynamo.Stepper) {
	y := dynamo.State{1.0, 0.0}
	t := 0.0

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var err error
		t, y, err = s.Step(harmonic, t, y)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEuler(b *testing.B)    { benchmarkStepper(b, &Euler{Tau: 0.01}) }
func BenchmarkRK4(b *testing.B)      { benchmarkStepper(b, &RK4{Tau: 0.01}) }
func BenchmarkAdamsRK4(b *testing.B) { benchmarkStepper(b, &AdamsRK4{Tau: 0.01}) }
func BenchmarkVerlet(b *testing.B)   { benchmarkStepper(b, &Verlet{Tau: 0.01}) }
func BenchmarkLeapfrog(b *testing.B) { benchmarkStepper(b, &Leapfrog{Tau: 0.01}) }
func BenchmarkRK4RE(b *testing.B)    { benchmarkStepper(b, NewRK4RE()) }
func BenchmarkDOPRI45(b *testing.B)  { benchmarkStepper(b, NewDOPRI45()) }

func BenchmarkImplicitEuler(b *testing.B) {
	benchmarkStepper(b, &ImplicitEuler{Tau: 0.01})
}

func BenchmarkSymplecticEuler(b *testing.B) {
	benchmarkStepper(b, &SymplecticEuler{Tau: 0.01})
}
