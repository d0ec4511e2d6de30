package ode

import (
	"errors"
	"fmt"
)

// Domain errors for integration.
var (
	// ErrNonConvergence indicates the integrator exhausted its step budget
	// without meeting its accuracy criterion.
	ErrNonConvergence = errors.New("ode: integration did not converge")

	// ErrStepTooSmall indicates the adaptive step fell below the configured minimum.
	ErrStepTooSmall = fmt.Errorf("%w: adaptive step below minimum", ErrNonConvergence)

	// ErrInvalidState indicates a state vector with NaN or Inf entries.
	ErrInvalidState = errors.New("ode: invalid state (NaN or Inf detected)")

	// ErrDimensionMismatch indicates a state whose length differs from the system's.
	ErrDimensionMismatch = errors.New("ode: dimension mismatch between state and system")

	// ErrInvalidConfig indicates a non-positive step count, tolerance or step size.
	ErrInvalidConfig = errors.New("ode: invalid integrator configuration")
)

// IntegrationError wraps an error with integration context.
type IntegrationError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Wrapped)
}

func (e *IntegrationError) Unwrap() error {
	return e.Wrapped
}
