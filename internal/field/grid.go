package field

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Grid is an N×N periodic pixelization with pixel width Dx. Pixel (i, j) is
// row i (y) and column j (x), stored at index i*N + j.
type Grid struct {
	n  int
	dx float64

	// first-derivative wavenumbers per row/column, Nyquist zeroed
	kx, ky []float64
	// physical wavenumbers per row/column
	fx, fy []float64

	mu  sync.Mutex
	fft *fourier.CmplxFFT
	buf []complex128
}

func NewGrid(n int, dx float64) (*Grid, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w: size must be at least 2, got %d", ErrInvalidGrid, n)
	}
	if !(dx > 0) || math.IsInf(dx, 0) {
		return nil, fmt.Errorf("%w: pixel width must be positive, got %g", ErrInvalidGrid, dx)
	}

	g := &Grid{
		n:   n,
		dx:  dx,
		kx:  make([]float64, n),
		ky:  make([]float64, n),
		fx:  make([]float64, n),
		fy:  make([]float64, n),
		fft: fourier.NewCmplxFFT(n),
		buf: make([]complex128, n),
	}

	dk := 2 * math.Pi / (float64(n) * dx)
	for m := 0; m < n; m++ {
		freq := m
		if m >= (n+1)/2 {
			freq = m - n
		}
		k := dk * float64(freq)
		g.fx[m], g.fy[m] = k, k
		if n%2 == 0 && m == n/2 {
			k = 0
		}
		g.kx[m], g.ky[m] = k, k
	}
	return g, nil
}

// MustGrid is NewGrid for static sizes known to be valid.
func MustGrid(n int, dx float64) *Grid {
	g, err := NewGrid(n, dx)
	if err != nil {
		panic(err)
	}
	return g
}

func (g *Grid) N() int        { return g.n }
func (g *Grid) Dx() float64   { return g.dx }
func (g *Grid) Size() int     { return g.n * g.n }
func (g *Grid) Area() float64 { return float64(g.n) * g.dx * float64(g.n) * g.dx }

// Fundamental returns the smallest non-zero wavenumber 2π/(N·Dx).
func (g *Grid) Fundamental() float64 { return 2 * math.Pi / (float64(g.n) * g.dx) }

// Nyquist returns the largest representable wavenumber π/Dx.
func (g *Grid) Nyquist() float64 { return math.Pi / g.dx }

// SameShape reports whether both grids describe the same pixelization.
func (g *Grid) SameShape(o *Grid) bool {
	if g == o {
		return true
	}
	return g != nil && o != nil && g.n == o.n && g.dx == o.dx
}

// Wavenumber returns the physical (kx, ky) of Fourier mode idx.
func (g *Grid) Wavenumber(idx int) (float64, float64) {
	return g.fx[idx%g.n], g.fy[idx/g.n]
}

// K returns |k| of Fourier mode idx.
func (g *Grid) K(idx int) float64 {
	kx, ky := g.Wavenumber(idx)
	return math.Hypot(kx, ky)
}

// Index returns the storage index of mode (or pixel) at row i, column j with
// periodic wrapping.
func (g *Grid) Index(i, j int) int {
	i = ((i % g.n) + g.n) % g.n
	j = ((j % g.n) + g.n) % g.n
	return i*g.n + j
}

func (g *Grid) forward(pix []float64) []complex128 {
	out := make([]complex128, len(pix))
	for i, v := range pix {
		out[i] = complex(v, 0)
	}
	g.transform(out, true)
	return out
}

func (g *Grid) inverse(coef []complex128) []float64 {
	work := make([]complex128, len(coef))
	copy(work, coef)
	g.transform(work, false)

	scale := 1 / float64(g.Size())
	out := make([]float64, len(work))
	for i, c := range work {
		out[i] = real(c) * scale
	}
	return out
}

// transform runs an unnormalized 2-D transform in place, rows then columns.
func (g *Grid) transform(a []complex128, forward bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.n
	apply := g.fft.Sequence
	if forward {
		apply = g.fft.Coefficients
	}

	for i := 0; i < n; i++ {
		row := a[i*n : (i+1)*n]
		apply(row, row)
	}

	col := g.buf
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			col[i] = a[i*n+j]
		}
		apply(col, col)
		for i := 0; i < n; i++ {
			a[i*n+j] = col[i]
		}
	}
}
