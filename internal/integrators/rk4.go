package integrators

import (
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/lenseflow/internal/ode"
)

var (
	rk4Nodes   = [4]float64{0, 0.5, 0.5, 1}
	rk4Weights = [4]float64{1.0 / 6, 1.0 / 3, 1.0 / 3, 1.0 / 6}
)

// RK4 is the classical fourth-order Runge-Kutta stepper. It reuses its stage
// buffers between steps and is not safe for concurrent use.
type RK4 struct {
	k       [4]ode.State
	scratch ode.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.scratch) == n {
		return
	}
	for i := range r.k {
		r.k[i] = make(ode.State, n)
	}
	r.scratch = make(ode.State, n)
}

func (r *RK4) Step(sys ode.System, x ode.State, t, dt float64) ode.State {
	r.ensureScratch(len(x))

	result := x.Clone()
	for s, c := range rk4Nodes {
		stage := x
		if s > 0 {
			floats.AddScaledTo(r.scratch, x, c*dt, r.k[s-1])
			stage = r.scratch
		}
		copy(r.k[s], sys.Derive(stage, t+c*dt))
		floats.AddScaled(result, rk4Weights[s]*dt, r.k[s])
	}
	return result
}
