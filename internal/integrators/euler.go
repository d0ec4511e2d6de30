package integrators

import "github.com/san-kum/lenseflow/internal/ode"

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(sys ode.System, x ode.State, t, dt float64) ode.State {
	return x.AddScaled(dt, sys.Derive(x, t))
}
