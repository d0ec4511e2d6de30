package integrators

import (
	"fmt"

	"github.com/san-kum/lenseflow/internal/ode"
)

// FixedStep integrates with a constant number of equal steps between the
// endpoints, whatever their distance.
type FixedStep struct {
	stepper ode.Stepper
	steps   int
}

func NewFixedStep(stepper ode.Stepper, steps int) *FixedStep {
	return &FixedStep{stepper: stepper, steps: steps}
}

func (f *FixedStep) Steps() int { return f.steps }

func (f *FixedStep) Integrate(sys ode.System, x0 ode.State, t1, t2 float64) (ode.State, error) {
	var final ode.State
	err := f.run(sys, x0, t1, t2, func(_ float64, x ode.State) { final = x })
	if err != nil {
		return nil, err
	}
	return final, nil
}

func (f *FixedStep) IntegrateTrajectory(sys ode.System, x0 ode.State, t1, t2 float64) (*ode.Trajectory, error) {
	tr := &ode.Trajectory{
		Times:  make([]float64, 0, f.steps+1),
		States: make([]ode.State, 0, f.steps+1),
	}
	err := f.run(sys, x0, t1, t2, func(t float64, x ode.State) {
		tr.Times = append(tr.Times, t)
		tr.States = append(tr.States, x)
	})
	if err != nil {
		return nil, err
	}
	return tr, nil
}

func (f *FixedStep) run(sys ode.System, x0 ode.State, t1, t2 float64, observe func(float64, ode.State)) error {
	if f.steps < 1 {
		return fmt.Errorf("%w: fixed step count must be positive, got %d", ode.ErrInvalidConfig, f.steps)
	}
	if len(x0) != sys.StateDim() {
		return fmt.Errorf("%w: state has %d entries, system expects %d", ode.ErrDimensionMismatch, len(x0), sys.StateDim())
	}

	x := x0.Clone()
	observe(t1, x)
	if t1 == t2 {
		return nil
	}

	dt := (t2 - t1) / float64(f.steps)
	for i := 0; i < f.steps; i++ {
		t := t1 + float64(i)*dt
		x = f.stepper.Step(sys, x, t, dt)
		if !x.IsValid() {
			return &ode.IntegrationError{Step: i, Time: t, Wrapped: ode.ErrInvalidState}
		}
		if i == f.steps-1 {
			observe(t2, x)
		} else {
			observe(t+dt, x)
		}
	}
	return nil
}
