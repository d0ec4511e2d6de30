// Package lenseflow lenses fields by integrating a transport ODE driven by a
// lensing potential.
//
// A [Flow] over potential ϕ moves a field f from time t1 to time t2 along
//
//	df/dt = p(t)·∇f,  p(t) = (I + t·Hϕ)⁻¹ ∇ϕ
//
// where time 0 is the unlensed and time 1 the lensed field. The inverse is the
// same ODE integrated backwards. [Flow.Jacobian] and [Flow.AdjointJacobian]
// give the tangent-linear map of the flow in (f, ϕ) and its exact transpose.
//
// A Flow implements [field.LinOp] and is immutable.
package lenseflow

import (
	"errors"
	"fmt"

	"github.com/san-kum/lenseflow/internal/field"
	"github.com/san-kum/lenseflow/internal/ode"
)

// ErrNoTrajectory indicates Trajectory was requested from an integrator that
// only reports final states.
var ErrNoTrajectory = errors.New("lenseflow: integrator does not retain trajectories")

// Flow is the lensing operator L(ϕ)[t1→t2].
type Flow struct {
	phi   *field.Field
	g     *field.Grid
	integ ode.Integrator
	t1    float64
	t2    float64

	zero bool
	// ∇ϕ and ∂ᵢ∂ⱼϕ in pixel space
	gx, gy        []float64
	hxx, hxy, hyy []float64
}

// New returns the flow L(ϕ)[0→1]. Gradient and Hessian of phi are computed
// here once and shared by every re-sliced flow.
func New(phi *field.Field, integ ode.Integrator) *Flow {
	l := &Flow{
		phi:   phi,
		g:     phi.Grid(),
		integ: integ,
		t1:    0,
		t2:    1,
		zero:  phi.IsZero(),
	}
	gx, gy := phi.Gradient()
	hxx, hxy, hyy := phi.Hessian()
	l.gx, l.gy = gx.Pixels(), gy.Pixels()
	l.hxx, l.hxy, l.hyy = hxx.Pixels(), hxy.Pixels(), hyy.Pixels()
	return l
}

// Between returns the same flow re-sliced to integrate from t1 to t2.
func (l *Flow) Between(t1, t2 float64) *Flow {
	c := *l
	c.t1, c.t2 = t1, t2
	return &c
}

// Inverse returns the flow with its endpoints swapped.
func (l *Flow) Inverse() *Flow { return l.Between(l.t2, l.t1) }

func (l *Flow) Potential() *field.Field       { return l.phi }
func (l *Flow) Grid() *field.Grid             { return l.g }
func (l *Flow) Integrator() ode.Integrator    { return l.integ }
func (l *Flow) Endpoints() (float64, float64) { return l.t1, l.t2 }

// IsIdentity reports whether Apply and ApplyAdjoint skip integration.
func (l *Flow) IsIdentity() bool { return l.zero || l.t1 == l.t2 }

// Apply lenses f from t1 to t2.
func (l *Flow) Apply(f *field.Field) (*field.Field, error) {
	return l.transport(f, l.t1, l.t2)
}

// ApplyInverse integrates from t2 back to t1.
func (l *Flow) ApplyInverse(f *field.Field) (*field.Field, error) {
	return l.transport(f, l.t2, l.t1)
}

// ApplyAdjoint applies the transpose of Apply under the pixel inner product.
func (l *Flow) ApplyAdjoint(g *field.Field) (*field.Field, error) {
	return l.transposeTransport(g, l.t2, l.t1)
}

// ApplyInverseAdjoint applies the transpose of ApplyInverse.
func (l *Flow) ApplyInverseAdjoint(g *field.Field) (*field.Field, error) {
	return l.transposeTransport(g, l.t1, l.t2)
}

func (l *Flow) transport(f *field.Field, from, to float64) (*field.Field, error) {
	if err := f.Compatible(l.g); err != nil {
		return nil, err
	}
	if l.IsIdentity() {
		return f, nil
	}
	x, err := l.integ.Integrate(&advection{l}, ode.State(f.Pixels()), from, to)
	if err != nil {
		return nil, err
	}
	return field.FromPixels(l.g, x)
}

func (l *Flow) transposeTransport(g *field.Field, from, to float64) (*field.Field, error) {
	if err := g.Compatible(l.g); err != nil {
		return nil, err
	}
	if l.IsIdentity() {
		return g, nil
	}
	x, err := l.integ.Integrate(&transposeAdvection{l}, ode.State(g.Pixels()), from, to)
	if err != nil {
		return nil, err
	}
	return field.FromPixels(l.g, x)
}

// FlowTrajectory is the lensed field at every accepted integrator step.
type FlowTrajectory struct {
	Times  []float64
	Fields []*field.Field
}

// Final returns the field at t2.
func (tr *FlowTrajectory) Final() *field.Field {
	if len(tr.Fields) == 0 {
		return nil
	}
	return tr.Fields[len(tr.Fields)-1]
}

// Trajectory applies the flow to f and keeps every intermediate field. The
// integrator must implement ode.TrajectoryIntegrator.
func (l *Flow) Trajectory(f *field.Field) (*FlowTrajectory, error) {
	if err := f.Compatible(l.g); err != nil {
		return nil, err
	}
	ti, ok := l.integ.(ode.TrajectoryIntegrator)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNoTrajectory, l.integ)
	}
	if l.IsIdentity() {
		return &FlowTrajectory{Times: []float64{l.t1, l.t2}, Fields: []*field.Field{f, f}}, nil
	}

	tr, err := ti.IntegrateTrajectory(&advection{l}, ode.State(f.Pixels()), l.t1, l.t2)
	if err != nil {
		return nil, err
	}
	out := &FlowTrajectory{
		Times:  tr.Times,
		Fields: make([]*field.Field, len(tr.States)),
	}
	for i, x := range tr.States {
		if out.Fields[i], err = field.FromPixels(l.g, x); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// minv returns the entries of (I + t·Hϕ)⁻¹ at pixel i.
func (l *Flow) minv(i int, t float64) (a, b, d float64) {
	m11 := 1 + t*l.hxx[i]
	m12 := t * l.hxy[i]
	m22 := 1 + t*l.hyy[i]
	det := m11*m22 - m12*m12
	return m22 / det, -m12 / det, m11 / det
}

// velocity returns p(t) = (I + t·Hϕ)⁻¹ ∇ϕ.
func (l *Flow) velocity(t float64) ([]float64, []float64) {
	n := len(l.gx)
	px := make([]float64, n)
	py := make([]float64, n)
	for i := 0; i < n; i++ {
		a, b, d := l.minv(i, t)
		px[i] = a*l.gx[i] + b*l.gy[i]
		py[i] = b*l.gx[i] + d*l.gy[i]
	}
	return px, py
}

// advection is df/dt = p·∇f.
type advection struct{ l *Flow }

func (s *advection) StateDim() int { return s.l.g.Size() }

func (s *advection) Derive(x ode.State, t float64) ode.State {
	px, py := s.l.velocity(t)
	fx, fy := s.l.g.Gradient(x)
	out := make(ode.State, len(x))
	for i := range out {
		out[i] = px[i]*fx[i] + py[i]*fy[i]
	}
	return out
}

// transposeAdvection is dg/dt = ∂ᵢ(pᵢ g).
type transposeAdvection struct{ l *Flow }

func (s *transposeAdvection) StateDim() int { return s.l.g.Size() }

func (s *transposeAdvection) Derive(x ode.State, t float64) ode.State {
	px, py := s.l.velocity(t)
	ax := make([]float64, len(x))
	ay := make([]float64, len(x))
	for i, v := range x {
		ax[i] = px[i] * v
		ay[i] = py[i] * v
	}
	return s.l.g.Divergence(ax, ay)
}
