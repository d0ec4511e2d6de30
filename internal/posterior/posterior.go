// Package posterior evaluates the joint log-posterior of a signal field and a
// lensing potential, and its gradient, in three parametrizations.
//
//	−2 lnP = (d − M·B·f̃)ᴴ Cn⁻¹ (d − M·B·f̃) + fᴴ Cf⁻¹ f + ϕᴴ Cϕ⁻¹ ϕ
//
// with f the unlensed (t = 0) and f̃ = L(ϕ)[0→1]·f the lensed field.
// Gradients are exact transposes obtained through lenseflow's adjoint flow.
package posterior

import (
	"github.com/san-kum/lenseflow/internal/field"
	"github.com/san-kum/lenseflow/internal/lenseflow"
	"github.com/san-kum/lenseflow/internal/ode"
)

// Terms are the three quadratic forms making up −2 lnP.
type Terms struct {
	Data      float64
	Field     float64
	Potential float64
}

// LnP returns −½ of the sum of the terms.
func (t Terms) LnP() float64 { return -0.5 * (t.Data + t.Field + t.Potential) }

// LnP evaluates the log-posterior of (f, phi) with f given in par.
func LnP(ds *DataSet, par Parametrization, f, phi *field.Field, integ ode.Integrator) (float64, error) {
	t, err := Evaluate(ds, par, f, phi, integ)
	if err != nil {
		return 0, err
	}
	return t.LnP(), nil
}

// Evaluate is LnP broken down into its terms.
func Evaluate(ds *DataSet, par Parametrization, f, phi *field.Field, integ ode.Integrator) (Terms, error) {
	if err := par.Validate(); err != nil {
		return Terms{}, err
	}
	if err := ds.Check(f, phi); err != nil {
		return Terms{}, err
	}
	flow := lenseflow.New(phi, integ)

	var f0, f1 *field.Field
	var err error
	switch par {
	case Unlensed:
		f0 = f
		f1, err = flow.Apply(f0)
	case Lensed:
		f1 = f
		f0, err = flow.Inverse().Apply(f1)
	case Mixed:
		if f0, err = unmix(ds, flow, f); err == nil {
			f1, err = flow.Apply(f0)
		}
	}
	if err != nil {
		return Terms{}, err
	}
	return ds.terms(f0, f1, phi)
}

func (ds *DataSet) terms(f0, f1, phi *field.Field) (Terms, error) {
	r, err := ds.residual(f1)
	if err != nil {
		return Terms{}, err
	}
	cr, err := ds.cnInv.Apply(r)
	if err != nil {
		return Terms{}, err
	}
	cf, err := ds.cfInv.Apply(f0)
	if err != nil {
		return Terms{}, err
	}
	cphi, err := ds.cphiInv.Apply(phi)
	if err != nil {
		return Terms{}, err
	}
	return Terms{
		Data:      r.Dot(cr),
		Field:     f0.Dot(cf),
		Potential: phi.Dot(cphi),
	}, nil
}

// Gradient returns (∂lnP/∂f, ∂lnP/∂ϕ) at (f, phi) with f given in par.
func Gradient(ds *DataSet, par Parametrization, f, phi *field.Field, integ ode.Integrator) (*field.Field, *field.Field, error) {
	if err := par.Validate(); err != nil {
		return nil, nil, err
	}
	if err := ds.Check(f, phi); err != nil {
		return nil, nil, err
	}
	flow := lenseflow.New(phi, integ)

	switch par {
	case Unlensed:
		return ds.unlensedGradient(flow, f)
	case Lensed:
		return ds.lensedGradient(flow, f)
	default:
		return ds.mixedGradient(flow, f)
	}
}

func (ds *DataSet) potentialPrior(phi *field.Field) (*field.Field, error) {
	g, err := ds.cphiInv.Apply(phi)
	if err != nil {
		return nil, err
	}
	return g.Scale(-1), nil
}

func (ds *DataSet) unlensedGradient(flow *lenseflow.Flow, f0 *field.Field) (*field.Field, *field.Field, error) {
	f1, err := flow.Apply(f0)
	if err != nil {
		return nil, nil, err
	}
	g1, err := ds.dataGradient(f1)
	if err != nil {
		return nil, nil, err
	}
	gphi, err := ds.potentialPrior(flow.Potential())
	if err != nil {
		return nil, nil, err
	}
	gf0, gphi, err := flow.AdjointJacobian(f1, g1, gphi)
	if err != nil {
		return nil, nil, err
	}
	prior, err := ds.cfInv.Apply(f0)
	if err != nil {
		return nil, nil, err
	}
	return gf0.Sub(prior).Map(), gphi, nil
}

func (ds *DataSet) lensedGradient(flow *lenseflow.Flow, f1 *field.Field) (*field.Field, *field.Field, error) {
	back := flow.Inverse()
	f0, err := back.Apply(f1)
	if err != nil {
		return nil, nil, err
	}
	prior, err := ds.cfInv.Apply(f0)
	if err != nil {
		return nil, nil, err
	}
	gphi, err := ds.potentialPrior(flow.Potential())
	if err != nil {
		return nil, nil, err
	}
	gf1, gphi, err := back.AdjointJacobian(f0, prior.Scale(-1), gphi)
	if err != nil {
		return nil, nil, err
	}
	data, err := ds.dataGradient(f1)
	if err != nil {
		return nil, nil, err
	}
	return gf1.Add(data).Map(), gphi, nil
}

func (ds *DataSet) mixedGradient(flow *lenseflow.Flow, fmix *field.Field) (*field.Field, *field.Field, error) {
	back := flow.Inverse()
	u, err := ds.mixInv.Apply(fmix)
	if err != nil {
		return nil, nil, err
	}
	f0, err := back.Apply(u)
	if err != nil {
		return nil, nil, err
	}
	gf0, gphi, err := ds.unlensedGradient(flow, f0)
	if err != nil {
		return nil, nil, err
	}
	gu, gphi, err := back.AdjointJacobian(f0, gf0, gphi)
	if err != nil {
		return nil, nil, err
	}
	gmix, err := ds.mixInv.ApplyAdjoint(gu)
	if err != nil {
		return nil, nil, err
	}
	return gmix.Map(), gphi, nil
}

// Mix returns D·L(ϕ)[0→1]·f for an unlensed f.
func Mix(ds *DataSet, f, phi *field.Field, integ ode.Integrator) (*field.Field, error) {
	if err := ds.Check(f, phi); err != nil {
		return nil, err
	}
	f1, err := lenseflow.New(phi, integ).Apply(f)
	if err != nil {
		return nil, err
	}
	return ds.Mix.Apply(f1)
}

// Unmix inverts Mix, returning the unlensed field L(ϕ)[1→0]·D⁻¹·f.
func Unmix(ds *DataSet, fmix, phi *field.Field, integ ode.Integrator) (*field.Field, error) {
	if err := ds.Check(fmix, phi); err != nil {
		return nil, err
	}
	return unmix(ds, lenseflow.New(phi, integ), fmix)
}

func unmix(ds *DataSet, flow *lenseflow.Flow, fmix *field.Field) (*field.Field, error) {
	u, err := ds.mixInv.Apply(fmix)
	if err != nil {
		return nil, err
	}
	return flow.Inverse().Apply(u)
}
