package ode

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	if len(s) == 0 {
		return 0
	}
	return floats.Norm(s, 2)
}

func (s State) Add(other State) State {
	result := s.Clone()
	floats.Add(result, other)
	return result
}

func (s State) Sub(other State) State {
	result := s.Clone()
	floats.Sub(result, other)
	return result
}

func (s State) Scale(factor float64) State {
	result := s.Clone()
	floats.Scale(factor, result)
	return result
}

// AddScaled returns s + alpha*other.
func (s State) AddScaled(alpha float64, other State) State {
	result := s.Clone()
	floats.AddScaled(result, alpha, other)
	return result
}

// System is the right-hand side of dX/dt = F(X, t).
type System interface {
	Derive(x State, t float64) State
	StateDim() int
}

// Stepper advances x by one explicit step of size dt (dt may be negative).
type Stepper interface {
	Step(sys System, x State, t, dt float64) State
}

// Integrator advances x0 from t1 to t2.
type Integrator interface {
	Integrate(sys System, x0 State, t1, t2 float64) (State, error)
}

// TrajectoryIntegrator additionally retains every accepted step.
type TrajectoryIntegrator interface {
	Integrator
	IntegrateTrajectory(sys System, x0 State, t1, t2 float64) (*Trajectory, error)
}

// Trajectory holds the accepted states of one integration, first entry at t1.
type Trajectory struct {
	Times  []float64
	States []State
}

// Final returns the last state, or nil for an empty trajectory.
func (tr *Trajectory) Final() State {
	if len(tr.States) == 0 {
		return nil
	}
	return tr.States[len(tr.States)-1]
}

func (tr *Trajectory) Len() int { return len(tr.States) }
