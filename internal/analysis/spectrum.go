package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/lenseflow/internal/field"
)

// ErrInvalidBands indicates fewer than two band edges or unsorted edges.
var ErrInvalidBands = errors.New("analysis: invalid band edges")

// Bands holds ascending band edges in physical wavenumber. Band b covers
// [Bands[b], Bands[b+1]).
type Bands []float64

// LinearBands splits [0, √2·Nyquist] into n bands of equal width, so that
// every mode of g falls into one of them.
func LinearBands(g *field.Grid, n int) Bands {
	if n < 1 {
		n = 1
	}
	kmax := math.Sqrt2 * g.Nyquist() * (1 + 1e-9)
	edges := make(Bands, n+1)
	floats.Span(edges, 0, kmax)
	return edges
}

func (b Bands) Len() int {
	if len(b) < 2 {
		return 0
	}
	return len(b) - 1
}

func (b Bands) validate() error {
	if len(b) < 2 || !sort.Float64sAreSorted(b) {
		return fmt.Errorf("%w: %v", ErrInvalidBands, []float64(b))
	}
	return nil
}

// Find returns the band holding k, or -1 when k lies outside every band.
func (b Bands) Find(k float64) int {
	if b.Len() == 0 || k < b[0] || k >= b[len(b)-1] {
		return -1
	}
	return sort.Search(len(b), func(i int) bool { return b[i] > k }) - 1
}

// Centers returns the midpoint of every band.
func (b Bands) Centers() []float64 {
	c := make([]float64, b.Len())
	for i := range c {
		c[i] = 0.5 * (b[i] + b[i+1])
	}
	return c
}

// Spectrum is a binned power spectrum. Empty bands have zero count and NaN
// power.
type Spectrum struct {
	Bands   Bands
	Centers []float64
	Power   []float64
	// Error is the standard error of the band mean.
	Error  []float64
	Counts []int
}

// modes returns the unnormalized 2-D DFT of f grouped by band.
func modes(f *field.Field, bands Bands) ([][]complex128, error) {
	if err := bands.validate(); err != nil {
		return nil, err
	}
	g := f.Grid()
	coef := fft.FFT2Real(f.Rows())
	out := make([][]complex128, bands.Len())
	for i, row := range coef {
		for j, c := range row {
			if b := bands.Find(g.K(g.Index(i, j))); b >= 0 {
				out[b] = append(out[b], c)
			}
		}
	}
	return out, nil
}

// BandPowers returns the band-averaged |f̂(k)|²/N² of f.
func BandPowers(f *field.Field, bands Bands) (*Spectrum, error) {
	grouped, err := modes(f, bands)
	if err != nil {
		return nil, err
	}
	n2 := float64(f.Grid().Size())
	s := &Spectrum{
		Bands:   bands,
		Centers: bands.Centers(),
		Power:   make([]float64, len(grouped)),
		Error:   make([]float64, len(grouped)),
		Counts:  make([]int, len(grouped)),
	}
	for b, cs := range grouped {
		s.Counts[b] = len(cs)
		if len(cs) == 0 {
			s.Power[b] = math.NaN()
			continue
		}
		p := make([]float64, len(cs))
		for i, c := range cs {
			a := cmplx.Abs(c)
			p[i] = a * a / n2
		}
		s.Power[b] = stat.Mean(p, nil)
		if len(p) > 1 {
			s.Error[b] = stat.StdErr(stat.StdDev(p, nil), float64(len(p)))
		}
	}
	return s, nil
}

// Average returns the elementwise mean of spectra sharing the same bands.
func Average(spectra ...*Spectrum) (*Spectrum, error) {
	if len(spectra) == 0 {
		return nil, fmt.Errorf("%w: no spectra", ErrInvalidBands)
	}
	first := spectra[0]
	out := &Spectrum{
		Bands:   first.Bands,
		Centers: first.Bands.Centers(),
		Power:   make([]float64, first.Bands.Len()),
		Error:   make([]float64, first.Bands.Len()),
		Counts:  make([]int, first.Bands.Len()),
	}
	col := make([]float64, len(spectra))
	for b := range out.Power {
		for i, s := range spectra {
			if !floats.Equal(s.Bands, first.Bands) {
				return nil, fmt.Errorf("%w: spectrum %d has different bands", ErrInvalidBands, i)
			}
			col[i] = s.Power[b]
			out.Counts[b] += s.Counts[b]
		}
		out.Power[b] = stat.Mean(col, nil)
		if len(col) > 1 {
			out.Error[b] = stat.StdErr(stat.StdDev(col, nil), float64(len(col)))
		}
	}
	return out, nil
}

// Diagonal spreads the spectrum over the modes of g as a Fourier-diagonal
// covariance. Modes outside the bands, or in empty bands, take the nearest
// populated band.
func (s *Spectrum) Diagonal(g *field.Grid) (*field.Diagonal, error) {
	var populated []int
	for b, p := range s.Power {
		if !math.IsNaN(p) {
			populated = append(populated, b)
		}
	}
	if len(populated) == 0 {
		return nil, fmt.Errorf("%w: every band is empty", ErrInvalidBands)
	}
	centers := s.Bands.Centers()
	return field.NewIsotropic(g, func(k float64) float64 {
		best := populated[0]
		for _, b := range populated[1:] {
			if math.Abs(centers[b]-k) < math.Abs(centers[best]-k) {
				best = b
			}
		}
		if b := s.Bands.Find(k); b >= 0 && !math.IsNaN(s.Power[b]) {
			best = b
		}
		return s.Power[best]
	}), nil
}

// CrossCorrelation returns, per band, Σ Re(â b̂*) / √(Σ|â|² Σ|b̂|²). Bands
// without power in either map are NaN.
func CrossCorrelation(a, b *field.Field, bands Bands) ([]float64, error) {
	if err := a.Compatible(b.Grid()); err != nil {
		return nil, err
	}
	am, err := modes(a, bands)
	if err != nil {
		return nil, err
	}
	bm, err := modes(b, bands)
	if err != nil {
		return nil, err
	}
	r := make([]float64, len(am))
	for k := range am {
		ar, ai := split(am[k])
		br, bi := split(bm[k])
		cross := floats.Dot(ar, br) + floats.Dot(ai, bi)
		norm := math.Sqrt((floats.Dot(ar, ar) + floats.Dot(ai, ai)) * (floats.Dot(br, br) + floats.Dot(bi, bi)))
		if norm == 0 {
			r[k] = math.NaN()
			continue
		}
		r[k] = cross / norm
	}
	return r, nil
}

func split(cs []complex128) ([]float64, []float64) {
	re := make([]float64, len(cs))
	im := make([]float64, len(cs))
	for i, c := range cs {
		re[i], im[i] = real(c), imag(c)
	}
	return re, im
}
