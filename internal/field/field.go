package field

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Basis names the representation a Field is held in.
type Basis int

const (
	Map Basis = iota
	Fourier
)

func (b Basis) String() string {
	switch b {
	case Map:
		return "map"
	case Fourier:
		return "fourier"
	default:
		return fmt.Sprintf("Basis(%d)", int(b))
	}
}

// Field is a real scalar field on a Grid. The zero value is not usable;
// construct fields with Zero, FromPixels or an operator.
type Field struct {
	g     *Grid
	basis Basis
	pix   []float64
	coef  []complex128
}

func Zero(g *Grid) *Field {
	return &Field{g: g, basis: Map, pix: make([]float64, g.Size())}
}

// FromPixels copies pix into a new Map-basis field.
func FromPixels(g *Grid, pix []float64) (*Field, error) {
	if len(pix) != g.Size() {
		return nil, fmt.Errorf("%w: %d pixels for a %dx%d grid", ErrShapeMismatch, len(pix), g.n, g.n)
	}
	c := make([]float64, len(pix))
	copy(c, pix)
	return &Field{g: g, basis: Map, pix: c}, nil
}

// FromRows builds a Map-basis field from a row-major [][]float64.
func FromRows(g *Grid, rows [][]float64) (*Field, error) {
	if len(rows) != g.n {
		return nil, fmt.Errorf("%w: %d rows for a %dx%d grid", ErrShapeMismatch, len(rows), g.n, g.n)
	}
	pix := make([]float64, 0, g.Size())
	for i, row := range rows {
		if len(row) != g.n {
			return nil, fmt.Errorf("%w: row %d has %d columns", ErrShapeMismatch, i, len(row))
		}
		pix = append(pix, row...)
	}
	return &Field{g: g, basis: Map, pix: pix}, nil
}

// fromCoefficients wraps coef without copying.
func fromCoefficients(g *Grid, coef []complex128) *Field {
	return &Field{g: g, basis: Fourier, coef: coef}
}

// wrap builds a Map-basis field around pix without copying.
func wrap(g *Grid, pix []float64) *Field {
	return &Field{g: g, basis: Map, pix: pix}
}

// WhiteNoise draws unit-variance Gaussian pixels from rng.
func WhiteNoise(g *Grid, rng *rand.Rand) *Field {
	pix := make([]float64, g.Size())
	for i := range pix {
		pix[i] = rng.NormFloat64()
	}
	return wrap(g, pix)
}

func (f *Field) Grid() *Grid  { return f.g }
func (f *Field) Basis() Basis { return f.basis }

// Map returns f in pixel representation.
func (f *Field) Map() *Field {
	if f.basis == Map {
		return f
	}
	return wrap(f.g, f.g.inverse(f.coef))
}

// Fourier returns f in discrete Fourier representation.
func (f *Field) Fourier() *Field {
	if f.basis == Fourier {
		return f
	}
	return fromCoefficients(f.g, f.g.forward(f.pix))
}

func (f *Field) InBasis(b Basis) *Field {
	if b == Fourier {
		return f.Fourier()
	}
	return f.Map()
}

// Pixels returns a copy of the pixel values.
func (f *Field) Pixels() []float64 {
	m := f.Map()
	out := make([]float64, len(m.pix))
	copy(out, m.pix)
	return out
}

// pixels returns the pixel slice without copying. Callers must not modify it.
func (f *Field) pixels() []float64 { return f.Map().pix }

// Coefficients returns a copy of the unnormalized DFT coefficients.
func (f *Field) Coefficients() []complex128 {
	c := f.Fourier()
	out := make([]complex128, len(c.coef))
	copy(out, c.coef)
	return out
}

// Rows returns the pixels as a row-major [][]float64.
func (f *Field) Rows() [][]float64 {
	pix := f.pixels()
	rows := make([][]float64, f.g.n)
	for i := range rows {
		rows[i] = make([]float64, f.g.n)
		copy(rows[i], pix[i*f.g.n:(i+1)*f.g.n])
	}
	return rows
}

// At returns pixel (i, j) with periodic wrapping.
func (f *Field) At(i, j int) float64 {
	return f.pixels()[f.g.Index(i, j)]
}

func (f *Field) mustMatch(o *Field) {
	if !f.g.SameShape(o.g) {
		panic(fmt.Sprintf("%v: %dx%d vs %dx%d", ErrShapeMismatch, f.g.n, f.g.n, o.g.n, o.g.n))
	}
}

// Compatible reports an ErrShapeMismatch error when f does not live on g.
func (f *Field) Compatible(g *Grid) error {
	if f == nil {
		return fmt.Errorf("%w: nil field", ErrShapeMismatch)
	}
	if !f.g.SameShape(g) {
		return fmt.Errorf("%w: field is %dx%d (dx=%g), expected %dx%d (dx=%g)",
			ErrShapeMismatch, f.g.n, f.g.n, f.g.dx, g.n, g.n, g.dx)
	}
	return nil
}

func (f *Field) Add(o *Field) *Field { return f.AddScaled(1, o) }

func (f *Field) Sub(o *Field) *Field { return f.AddScaled(-1, o) }

// AddScaled returns f + alpha*o in the basis of f.
func (f *Field) AddScaled(alpha float64, o *Field) *Field {
	f.mustMatch(o)
	if f.basis == Fourier {
		oc := o.Fourier().coef
		out := make([]complex128, len(f.coef))
		a := complex(alpha, 0)
		for i, c := range f.coef {
			out[i] = c + a*oc[i]
		}
		return fromCoefficients(f.g, out)
	}
	out := make([]float64, len(f.pix))
	copy(out, f.pix)
	floats.AddScaled(out, alpha, o.pixels())
	return wrap(f.g, out)
}

func (f *Field) Scale(alpha float64) *Field {
	if f.basis == Fourier {
		out := make([]complex128, len(f.coef))
		a := complex(alpha, 0)
		for i, c := range f.coef {
			out[i] = a * c
		}
		return fromCoefficients(f.g, out)
	}
	out := make([]float64, len(f.pix))
	copy(out, f.pix)
	floats.Scale(alpha, out)
	return wrap(f.g, out)
}

// Mul returns the pixelwise product.
func (f *Field) Mul(o *Field) *Field {
	f.mustMatch(o)
	out := make([]float64, f.g.Size())
	floats.MulTo(out, f.pixels(), o.pixels())
	return wrap(f.g, out)
}

// Dot is the pixel-sum inner product.
func (f *Field) Dot(o *Field) float64 {
	f.mustMatch(o)
	if f.basis == Fourier && o.basis == Fourier {
		// Parseval for the unnormalized transform
		var s float64
		for i, c := range f.coef {
			s += real(cmplx.Conj(c) * o.coef[i])
		}
		return s / float64(f.g.Size())
	}
	return floats.Dot(f.pixels(), o.pixels())
}

func (f *Field) Norm() float64 { return math.Sqrt(f.Dot(f)) }

// IsZero reports whether every pixel is exactly zero.
func (f *Field) IsZero() bool {
	if f.basis == Fourier {
		for _, c := range f.coef {
			if c != 0 {
				return false
			}
		}
		return true
	}
	for _, v := range f.pix {
		if v != 0 {
			return false
		}
	}
	return true
}

// IsFinite reports whether every pixel is finite.
func (f *Field) IsFinite() bool {
	for _, v := range f.pixels() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Gradient returns (∂x f, ∂y f).
func (f *Field) Gradient() (*Field, *Field) {
	dx, dy := f.g.gradientCoef(f.Fourier().coef)
	return wrap(f.g, dx), wrap(f.g, dy)
}

// Hessian returns (∂x∂x f, ∂x∂y f, ∂y∂y f).
func (f *Field) Hessian() (*Field, *Field, *Field) {
	xx, xy, yy := f.g.hessianCoef(f.Fourier().coef)
	return wrap(f.g, xx), wrap(f.g, xy), wrap(f.g, yy)
}

// Divergence returns ∂x ax + ∂y ay.
func Divergence(ax, ay *Field) *Field {
	ax.mustMatch(ay)
	return wrap(ax.g, ax.g.Divergence(ax.pixels(), ay.pixels()))
}
