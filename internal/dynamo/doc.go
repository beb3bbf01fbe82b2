// Package dynamo provides the shared vocabulary of the integration engine.
//
// The package defines the types every other package speaks:
//
//   - [State]: vector of coordinates at one instant
//   - [Func]: right-hand side of x'(t) = f(t, x)
//   - [Stepper]: one-step advance algorithm with running state
//   - [Snapshot]: read-only view of a stepper handed to observers
//   - [Signal]: continue/break answer of an observer
//   - [System]: right-hand side bundled with a default initial state
//
// # Errors
//
// [DivergenceError] is returned when a trajectory stops being finite and
// unwraps to [ErrDiverged]. [RejectionError] unwraps to [ErrStepRejected].
//
// # Thread Safety
//
// Steppers mutate their own counters and histories on every call. Give each
// concurrent integration its own stepper and state.
package dynamo
