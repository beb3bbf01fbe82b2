// Package viz renders integrations in the terminal with Bubble Tea.
//
//   - [Model]: streams one run, drawing a braille phase portrait of the
//     first two state components next to a time series, the stepper's
//     snapshot and the system parameters
//   - [App]: picks a problem and a method from the experiment registry and
//     hands over to a Model
//   - [Canvas]: braille dot matrix used for the phase portrait
//
// # Key Bindings
//
//	Space  - Pause/Resume
//	S      - Advance one frame while paused
//	R      - Restart from the initial state
//	Tab    - Select parameter
//	Up/K   - Increase parameter by 5%
//	Down/J - Decrease parameter by 5%
//	T      - Cycle color themes
//	?      - Show help
package viz
