// Package otg defines the online trajectory generation backend contract and the loop
// that drives any backend one fixed timestep at a time.
package otg

import (
	"errors"
	"fmt"

	"github.com/verte-zerg/otgbench/internal/model"
)

// Backend computes the next kinematic state one fixed timestep into the future.
//
// Step treats in.Current as authoritative; target, limits and minimum duration are
// fixed for a run. Step writes the new state into out and returns StatusWorking while
// more steps are needed, StatusFinished on the step whose state equals the target, or
// StatusError together with a non-nil error. A backend may cache its profile between
// calls but must not depend on anything else, wall clock included.
type Backend interface {
	Step(in model.Input, out *model.Output) (model.Status, error)
	// DeltaTime is the fixed timestep in seconds, constant for the instance.
	DeltaTime() float64
}

// Sampler is implemented by backends that can evaluate their cached profile at an
// arbitrary time without advancing.
type Sampler interface {
	AtTime(t float64, out *model.Output) error
}

// Error kinds reported by backends.
var (
	// ErrInfeasible means the target or minimum duration cannot be met under the limits.
	ErrInfeasible = errors.New("otg: infeasible motion")
	// ErrNumerical means an internal computation did not converge or produced non-finite values.
	ErrNumerical = errors.New("otg: numerical failure")
	// ErrUnsupported means the backend cannot handle the requested boundary states.
	ErrUnsupported = errors.New("otg: unsupported input")
	// ErrNoProfile is returned by Sampler implementations before the first Step.
	ErrNoProfile = errors.New("otg: no profile computed")
	// ErrStepLimit means a caller-imposed step ceiling was reached before Finished.
	ErrStepLimit = errors.New("otg: step limit reached")
)

// StepError carries the failing step of a run.
type StepError struct {
	Step int
	Time float64
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (t=%.6f): %v", e.Step, e.Time, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// InfeasibleInput wraps a validation error so it matches both ErrInfeasible and
// model.ErrInvalidInput.
func InfeasibleInput(err error) error {
	return fmt.Errorf("%w: %w", ErrInfeasible, err)
}
