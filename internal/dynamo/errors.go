package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for integration runs.
var (
	// ErrDiverged indicates a non-finite state component was detected.
	ErrDiverged = errors.New("dynamo: solution diverged (NaN or Inf detected)")

	// ErrStepRejected indicates an adaptive method exhausted its rejection budget.
	ErrStepRejected = errors.New("dynamo: step rejected too many times")

	// ErrInvalidInterval indicates t1 < t0 or a non-finite bound.
	ErrInvalidInterval = errors.New("dynamo: invalid integration interval")

	// ErrDimensionMismatch indicates the right-hand side returned a vector of the wrong size.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and derivative")

	// ErrNilFunc indicates a missing right-hand side.
	ErrNilFunc = errors.New("dynamo: nil right-hand side")

	// ErrParameterBounds indicates a parameter value is outside valid range.
	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")
)

// DivergenceError reports where a trajectory stopped being finite.
type DivergenceError struct {
	Progress float64
	Time     float64
	Index    int
	Value    float64
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("dynamo: solution diverged at %.2f%% (t=%g): component %d is %g",
		100*e.Progress, e.Time, e.Index, e.Value)
}

func (e *DivergenceError) Unwrap() error {
	return ErrDiverged
}

// StepError wraps an error returned by a stepper with loop context.
type StepError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (t=%g): %v", e.Step, e.Time, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}

// RejectionError is returned when an adaptive stepper cannot satisfy its
// tolerance within the configured number of attempts.
type RejectionError struct {
	Time     float64
	TimeStep float64
	Estimate float64
	Attempts int
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("dynamo: step at t=%g rejected %d times (tau=%g err=%g)",
		e.Time, e.Attempts, e.TimeStep, e.Estimate)
}

func (e *RejectionError) Unwrap() error {
	return ErrStepRejected
}

// CheckDim verifies a derivative has the same size as the state.
func CheckDim(y, dy State) error {
	if len(y) != len(dy) {
		return fmt.Errorf("%w: state has %d components, derivative %d", ErrDimensionMismatch, len(y), len(dy))
	}
	return nil
}
