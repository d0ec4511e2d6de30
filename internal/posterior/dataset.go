package posterior

import (
	"fmt"
	"math"

	"github.com/san-kum/lenseflow/internal/field"
)

// DataSetParams lists the inputs of NewDataSet. Data, Cn, Cf and Cphi are
// required; the rest are optional and derived when missing.
type DataSetParams struct {
	Data *field.Field

	// Cn is the noise covariance, diagonal in either basis.
	Cn *field.Diagonal
	// Cf is the unlensed signal covariance.
	Cf *field.Diagonal
	// CfLensed is the lensed signal covariance, used by noise estimates only.
	CfLensed *field.Diagonal
	// Cphi is the potential covariance.
	Cphi *field.Diagonal

	// Mask and beam, identity when nil.
	M field.LinOp
	B field.LinOp

	// Fourier-diagonal surrogates of Cn and B for preconditioning.
	CnApprox *field.Diagonal
	BApprox  *field.Diagonal

	// Mix is the mixing operator D. When nil it is derived from Cf as
	// sqrt((Cf + MixVariance)/Cf) with non-finite entries set to zero.
	Mix         *field.Diagonal
	MixVariance float64
}

// DataSet bundles an observation with every operator of the posterior. It
// is built once by NewDataSet and never modified.
type DataSet struct {
	Grid *field.Grid

	Data     *field.Field
	Cn       *field.Diagonal
	Cf       *field.Diagonal
	CfLensed *field.Diagonal
	Cphi     *field.Diagonal
	M        field.LinOp
	B        field.LinOp
	CnApprox *field.Diagonal
	BApprox  *field.Diagonal
	Mix      *field.Diagonal

	cnInv   *field.Diagonal
	cfInv   *field.Diagonal
	cphiInv *field.Diagonal
	mixInv  *field.Diagonal
}

// NewDataSet validates p, derives the optional components and precomputes
// the inverses every likelihood evaluation needs.
func NewDataSet(p DataSetParams) (*DataSet, error) {
	if p.Data == nil {
		return nil, fmt.Errorf("%w: data", ErrMissingOperator)
	}
	required := []struct {
		name string
		d    *field.Diagonal
	}{{"Cn", p.Cn}, {"Cf", p.Cf}, {"Cphi", p.Cphi}}
	for _, r := range required {
		if r.d == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingOperator, r.name)
		}
	}

	g := p.Data.Grid()
	diagonals := []struct {
		name string
		d    *field.Diagonal
	}{
		{"Cn", p.Cn}, {"Cf", p.Cf}, {"CfLensed", p.CfLensed}, {"Cphi", p.Cphi},
		{"CnApprox", p.CnApprox}, {"BApprox", p.BApprox}, {"Mix", p.Mix},
	}
	for _, c := range diagonals {
		if c.d != nil && !c.d.Grid().SameShape(g) {
			return nil, fmt.Errorf("%w: %s is %dx%d, data is %dx%d",
				field.ErrShapeMismatch, c.name, c.d.Grid().N(), c.d.Grid().N(), g.N(), g.N())
		}
	}

	ds := &DataSet{
		Grid:     g,
		Data:     p.Data,
		Cn:       p.Cn,
		Cf:       p.Cf,
		CfLensed: p.CfLensed,
		Cphi:     p.Cphi,
		M:        p.M,
		B:        p.B,
		CnApprox: p.CnApprox,
		BApprox:  p.BApprox,
		Mix:      p.Mix,
	}
	if ds.M == nil {
		ds.M = field.Identity{}
	}
	if ds.B == nil {
		ds.B = field.Identity{}
	}
	if ds.CnApprox == nil {
		ds.CnApprox = fourierSurrogate(p.Cn)
	}
	if ds.BApprox == nil {
		if b, ok := p.B.(*field.Diagonal); ok && b.Basis() == field.Fourier {
			ds.BApprox = b
		} else {
			ds.BApprox = field.ConstantDiagonal(g, field.Fourier, 1)
		}
	}
	if ds.Mix == nil {
		ds.Mix = MixingOperator(p.Cf, p.MixVariance)
	}

	var err error
	if ds.cnInv, err = p.Cn.Inverse(); err != nil {
		return nil, fmt.Errorf("noise covariance: %w", err)
	}
	if ds.cfInv, err = p.Cf.Inverse(); err != nil {
		return nil, fmt.Errorf("signal covariance: %w", err)
	}
	if ds.cphiInv, err = p.Cphi.Inverse(); err != nil {
		return nil, fmt.Errorf("potential covariance: %w", err)
	}
	if ds.mixInv, err = ds.Mix.Inverse(); err != nil {
		return nil, fmt.Errorf("mixing operator: %w", err)
	}
	return ds, nil
}

// MixingOperator returns D = sqrt((Cf + variance)/Cf) with every non-finite
// entry replaced by zero. A zeroed entry leaves D singular, so NewDataSet
// rejects it and the mixed parametrization is unavailable for that Cf.
func MixingOperator(cf *field.Diagonal, variance float64) *field.Diagonal {
	return cf.MapValues(func(c float64) float64 {
		d := math.Sqrt((c + variance) / c)
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return 0
		}
		return d
	})
}

// fourierSurrogate keeps a Fourier-diagonal covariance and replaces a
// pixel-diagonal one by white noise of the same mean variance.
func fourierSurrogate(c *field.Diagonal) *field.Diagonal {
	if c.Basis() == field.Fourier {
		return c
	}
	return field.ConstantDiagonal(c.Grid(), field.Fourier, c.Mean())
}

func (ds *DataSet) CnInv() *field.Diagonal   { return ds.cnInv }
func (ds *DataSet) CfInv() *field.Diagonal   { return ds.cfInv }
func (ds *DataSet) CphiInv() *field.Diagonal { return ds.cphiInv }
func (ds *DataSet) MixInv() *field.Diagonal  { return ds.mixInv }

// Check reports field.ErrShapeMismatch for any field not on the dataset grid.
func (ds *DataSet) Check(fields ...*field.Field) error {
	for _, f := range fields {
		if err := f.Compatible(ds.Grid); err != nil {
			return err
		}
	}
	return nil
}

// Observe returns M·B·f.
func (ds *DataSet) Observe(f *field.Field) (*field.Field, error) {
	bf, err := ds.B.Apply(f)
	if err != nil {
		return nil, err
	}
	return ds.M.Apply(bf)
}

// ObserveAdjoint returns Bᵀ·Mᵀ·g.
func (ds *DataSet) ObserveAdjoint(g *field.Field) (*field.Field, error) {
	mg, err := ds.M.ApplyAdjoint(g)
	if err != nil {
		return nil, err
	}
	return ds.B.ApplyAdjoint(mg)
}

// residual returns d − M·B·f.
func (ds *DataSet) residual(f *field.Field) (*field.Field, error) {
	mbf, err := ds.Observe(f)
	if err != nil {
		return nil, err
	}
	return ds.Data.Sub(mbf), nil
}

// dataGradient returns Bᵀ·Mᵀ·Cn⁻¹·(d − M·B·f), the gradient of the
// log-likelihood in the lensed field.
func (ds *DataSet) dataGradient(f *field.Field) (*field.Field, error) {
	r, err := ds.residual(f)
	if err != nil {
		return nil, err
	}
	w, err := ds.cnInv.Apply(r)
	if err != nil {
		return nil, err
	}
	return ds.ObserveAdjoint(w)
}
