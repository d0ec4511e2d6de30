package field

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// LinOp is a linear operator on fields of one grid.
type LinOp interface {
	Apply(f *Field) (*Field, error)
	ApplyAdjoint(f *Field) (*Field, error)
	ApplyInverse(f *Field) (*Field, error)
	ApplyInverseAdjoint(f *Field) (*Field, error)
}

// Identity is the identity operator.
type Identity struct{}

func (Identity) Apply(f *Field) (*Field, error)               { return f, nil }
func (Identity) ApplyAdjoint(f *Field) (*Field, error)        { return f, nil }
func (Identity) ApplyInverse(f *Field) (*Field, error)        { return f, nil }
func (Identity) ApplyInverseAdjoint(f *Field) (*Field, error) { return f, nil }

// Diagonal is an operator diagonal in one basis. In the Fourier basis values
// are indexed like the DFT coefficients and must be even in k for the
// operator to map real fields to real fields.
type Diagonal struct {
	g      *Grid
	basis  Basis
	values []float64
}

func NewDiagonal(g *Grid, basis Basis, values []float64) (*Diagonal, error) {
	if len(values) != g.Size() {
		return nil, fmt.Errorf("%w: %d diagonal entries for a %dx%d grid", ErrShapeMismatch, len(values), g.n, g.n)
	}
	v := make([]float64, len(values))
	copy(v, values)
	return &Diagonal{g: g, basis: basis, values: v}, nil
}

// NewFourierDiagonal evaluates fn at the physical wavenumber of every mode.
func NewFourierDiagonal(g *Grid, fn func(kx, ky float64) float64) *Diagonal {
	v := make([]float64, g.Size())
	for idx := range v {
		v[idx] = fn(g.Wavenumber(idx))
	}
	return &Diagonal{g: g, basis: Fourier, values: v}
}

// NewIsotropic evaluates fn at |k| of every mode.
func NewIsotropic(g *Grid, fn func(k float64) float64) *Diagonal {
	return NewFourierDiagonal(g, func(kx, ky float64) float64 { return fn(math.Hypot(kx, ky)) })
}

func ConstantDiagonal(g *Grid, basis Basis, value float64) *Diagonal {
	v := make([]float64, g.Size())
	for i := range v {
		v[i] = value
	}
	return &Diagonal{g: g, basis: basis, values: v}
}

func (d *Diagonal) Grid() *Grid  { return d.g }
func (d *Diagonal) Basis() Basis { return d.basis }

// Values returns a copy of the diagonal entries.
func (d *Diagonal) Values() []float64 {
	out := make([]float64, len(d.values))
	copy(out, d.values)
	return out
}

// Mean of the diagonal. For a Fourier-diagonal covariance this is the
// per-pixel variance.
func (d *Diagonal) Mean() float64 {
	return floats.Sum(d.values) / float64(len(d.values))
}

func (d *Diagonal) apply(f *Field, v []float64) (*Field, error) {
	if err := f.Compatible(d.g); err != nil {
		return nil, err
	}
	if d.basis == Fourier {
		c := f.Fourier().coef
		out := make([]complex128, len(c))
		for i := range c {
			out[i] = complex(v[i], 0) * c[i]
		}
		return fromCoefficients(d.g, out), nil
	}
	out := make([]float64, len(v))
	floats.MulTo(out, f.pixels(), v)
	return wrap(d.g, out), nil
}

func (d *Diagonal) Apply(f *Field) (*Field, error) { return d.apply(f, d.values) }

func (d *Diagonal) ApplyAdjoint(f *Field) (*Field, error) { return d.apply(f, d.values) }

func (d *Diagonal) ApplyInverse(f *Field) (*Field, error) {
	inv, err := d.Inverse()
	if err != nil {
		return nil, err
	}
	return inv.Apply(f)
}

func (d *Diagonal) ApplyInverseAdjoint(f *Field) (*Field, error) { return d.ApplyInverse(f) }

// Inverse returns the elementwise reciprocal.
func (d *Diagonal) Inverse() (*Diagonal, error) {
	v := make([]float64, len(d.values))
	for i, x := range d.values {
		if x == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: %s-diagonal entry %d is %g", ErrSingular, d.basis, i, x)
		}
		v[i] = 1 / x
	}
	return &Diagonal{g: d.g, basis: d.basis, values: v}, nil
}

// MapValues returns a diagonal with fn applied to every entry.
func (d *Diagonal) MapValues(fn func(float64) float64) *Diagonal {
	v := make([]float64, len(d.values))
	for i, x := range d.values {
		v[i] = fn(x)
	}
	return &Diagonal{g: d.g, basis: d.basis, values: v}
}

func (d *Diagonal) Sqrt() *Diagonal { return d.MapValues(math.Sqrt) }

func (d *Diagonal) Pow(p float64) *Diagonal {
	return d.MapValues(func(x float64) float64 { return math.Pow(x, p) })
}

func (d *Diagonal) Scale(alpha float64) *Diagonal {
	return d.MapValues(func(x float64) float64 { return alpha * x })
}

func (d *Diagonal) AddConstant(c float64) *Diagonal {
	return d.MapValues(func(x float64) float64 { return x + c })
}

func (d *Diagonal) combine(o *Diagonal, fn func(a, b float64) float64) (*Diagonal, error) {
	if !d.g.SameShape(o.g) {
		return nil, fmt.Errorf("%w: diagonal operators on different grids", ErrShapeMismatch)
	}
	if d.basis != o.basis {
		return nil, fmt.Errorf("%w: %s and %s", ErrBasisMismatch, d.basis, o.basis)
	}
	v := make([]float64, len(d.values))
	for i := range v {
		v[i] = fn(d.values[i], o.values[i])
	}
	return &Diagonal{g: d.g, basis: d.basis, values: v}, nil
}

// Plus returns d + o. Both must share a basis.
func (d *Diagonal) Plus(o *Diagonal) (*Diagonal, error) {
	return d.combine(o, func(a, b float64) float64 { return a + b })
}

// Times returns the elementwise product d·o. Both must share a basis.
func (d *Diagonal) Times(o *Diagonal) (*Diagonal, error) {
	return d.combine(o, func(a, b float64) float64 { return a * b })
}

// Divide returns the elementwise quotient d/o without checking for zeros.
func (d *Diagonal) Divide(o *Diagonal) (*Diagonal, error) {
	return d.combine(o, func(a, b float64) float64 { return a / b })
}

// Chain is the product ops[0]·ops[1]·…·ops[n-1]; Apply runs the last operator
// first.
type Chain []LinOp

func NewChain(ops ...LinOp) Chain { return Chain(ops) }

func (c Chain) Apply(f *Field) (*Field, error) {
	var err error
	for i := len(c) - 1; i >= 0; i-- {
		if f, err = c[i].Apply(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (c Chain) ApplyAdjoint(f *Field) (*Field, error) {
	var err error
	for _, op := range c {
		if f, err = op.ApplyAdjoint(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (c Chain) ApplyInverse(f *Field) (*Field, error) {
	var err error
	for _, op := range c {
		if f, err = op.ApplyInverse(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (c Chain) ApplyInverseAdjoint(f *Field) (*Field, error) {
	var err error
	for i := len(c) - 1; i >= 0; i-- {
		if f, err = c[i].ApplyInverseAdjoint(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}
