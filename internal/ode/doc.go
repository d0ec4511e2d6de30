// Package ode provides the primitives shared by every flow integration.
//
// The package defines the minimal contract between a right-hand side and a
// numerical integrator:
//
//   - [State]: flat vector holding every channel of an (augmented) ODE state
//   - [System]: right-hand side dX/dt = F(X, t)
//   - [Stepper]: single explicit step of a fixed-step method
//   - [Integrator]: advance a state from t1 to t2 (t2 may be smaller than t1)
//   - [TrajectoryIntegrator]: same, retaining every accepted step
//
// # Example
//
//	integ := integrators.NewFixedStep(integrators.NewRK4(), 8)
//	x1, err := integ.Integrate(sys, x0, 0, 1)
//
// # Errors
//
// Integrators report a failure to meet their budget with an
// [*IntegrationError] wrapping [ErrNonConvergence]. Callers treat it as fatal.
package ode
