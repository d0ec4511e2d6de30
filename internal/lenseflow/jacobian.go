package lenseflow

import (
	"github.com/san-kum/lenseflow/internal/field"
	"github.com/san-kum/lenseflow/internal/ode"
)

// Every channel of the augmented states below is held in pixel space and
// packed back to back into one ode.State.

// Jacobian returns the flow of f together with the directional derivative of
// that output along (df, dphi), both at t2.
func (l *Flow) Jacobian(f, df, dphi *field.Field) (*field.Field, *field.Field, error) {
	for _, x := range []*field.Field{f, df, dphi} {
		if err := x.Compatible(l.g); err != nil {
			return nil, nil, err
		}
	}
	if l.t1 == l.t2 {
		return f, df, nil
	}

	n := l.g.Size()
	sys := &tangent{l: l}
	sys.dgx, sys.dgy = l.g.Gradient(dphi.Pixels())
	sys.dhxx, sys.dhxy, sys.dhyy = l.g.Hessian(dphi.Pixels())

	x0 := make(ode.State, 0, 2*n)
	x0 = append(x0, f.Pixels()...)
	x0 = append(x0, df.Pixels()...)

	x, err := l.integ.Integrate(sys, x0, l.t1, l.t2)
	if err != nil {
		return nil, nil, err
	}
	fOut, err := field.FromPixels(l.g, x[:n])
	if err != nil {
		return nil, nil, err
	}
	dfOut, err := field.FromPixels(l.g, x[n:])
	if err != nil {
		return nil, nil, err
	}
	return fOut, dfOut, nil
}

// AdjointJacobian is the transpose of Jacobian. Given the lensed field fOut at
// t2 and cotangents (fbar, phibar) there, it integrates back to t1 and returns
// the pulled-back cotangents on the input field and on the potential.
func (l *Flow) AdjointJacobian(fOut, fbar, phibar *field.Field) (*field.Field, *field.Field, error) {
	for _, x := range []*field.Field{fOut, fbar, phibar} {
		if err := x.Compatible(l.g); err != nil {
			return nil, nil, err
		}
	}
	if l.t1 == l.t2 {
		return fbar, phibar, nil
	}

	n := l.g.Size()
	x0 := make(ode.State, 0, 3*n)
	x0 = append(x0, fOut.Pixels()...)
	x0 = append(x0, fbar.Pixels()...)
	x0 = append(x0, phibar.Pixels()...)

	x, err := l.integ.Integrate(&cotangent{l: l}, x0, l.t2, l.t1)
	if err != nil {
		return nil, nil, err
	}
	fbarIn, err := field.FromPixels(l.g, x[n:2*n])
	if err != nil {
		return nil, nil, err
	}
	phibarIn, err := field.FromPixels(l.g, x[2*n:])
	if err != nil {
		return nil, nil, err
	}
	return fbarIn, phibarIn, nil
}

// tangent advances (f, δf) with
//
//	δf' = p·∇δf + δp·∇f,  δp = M⁻¹(∇δϕ − t·Hδϕ·p)
type tangent struct {
	l                *Flow
	dgx, dgy         []float64
	dhxx, dhxy, dhyy []float64
}

func (s *tangent) StateDim() int { return 2 * s.l.g.Size() }

func (s *tangent) Derive(x ode.State, t float64) ode.State {
	n := s.l.g.Size()
	f, df := x[:n], x[n:]

	px, py := s.l.velocity(t)
	fx, fy := s.l.g.Gradient(f)
	dfx, dfy := s.l.g.Gradient(df)

	out := make(ode.State, 2*n)
	for i := 0; i < n; i++ {
		rx := s.dgx[i] - t*(s.dhxx[i]*px[i]+s.dhxy[i]*py[i])
		ry := s.dgy[i] - t*(s.dhxy[i]*px[i]+s.dhyy[i]*py[i])
		a, b, d := s.l.minv(i, t)
		dpx := a*rx + b*ry
		dpy := b*rx + d*ry

		out[i] = px[i]*fx[i] + py[i]*fy[i]
		out[n+i] = px[i]*dfx[i] + py[i]*dfy[i] + dpx*fx[i] + dpy*fy[i]
	}
	return out
}

// cotangent advances (f, f̄, ϕ̄) backwards with
//
//	f' = p·∇f
//	f̄' = ∂ᵢ(pᵢ f̄)
//	ϕ̄' = ∂ᵢ(wᵢ f̄) + t·∂ᵢ∂ⱼ(pᵢ wⱼ f̄),  w = M⁻¹∇f
type cotangent struct{ l *Flow }

func (s *cotangent) StateDim() int { return 3 * s.l.g.Size() }

func (s *cotangent) Derive(x ode.State, t float64) ode.State {
	n := s.l.g.Size()
	f, fbar := x[:n], x[n:2*n]

	px, py := s.l.velocity(t)
	fx, fy := s.l.g.Gradient(f)

	pfx := make([]float64, n)
	pfy := make([]float64, n)
	wfx := make([]float64, n)
	wfy := make([]float64, n)
	bxx := make([]float64, n)
	bxy := make([]float64, n)
	byy := make([]float64, n)

	out := make(ode.State, 3*n)
	for i := 0; i < n; i++ {
		a, b, d := s.l.minv(i, t)
		wx := a*fx[i] + b*fy[i]
		wy := b*fx[i] + d*fy[i]

		out[i] = px[i]*fx[i] + py[i]*fy[i]

		pfx[i] = px[i] * fbar[i]
		pfy[i] = py[i] * fbar[i]
		wfx[i] = wx * fbar[i]
		wfy[i] = wy * fbar[i]
		bxx[i] = t * px[i] * wx * fbar[i]
		bxy[i] = t * (px[i]*wy + py[i]*wx) * fbar[i]
		byy[i] = t * py[i] * wy * fbar[i]
	}

	copy(out[n:2*n], s.l.g.Divergence(pfx, pfy))

	dphi := s.l.g.Divergence(wfx, wfy)
	curv := s.l.g.HessianDivergence(bxx, bxy, byy)
	for i := 0; i < n; i++ {
		out[2*n+i] = dphi[i] + curv[i]
	}
	return out
}
