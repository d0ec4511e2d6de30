package analysis

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/san-kum/lenseflow/internal/field"
	"github.com/san-kum/lenseflow/internal/posterior"
)

func TestBands(t *testing.T) {
	g := field.MustGrid(8, 1)
	b := LinearBands(g, 4)
	if b.Len() != 4 {
		t.Fatalf("want 4 bands, got %d", b.Len())
	}
	tests := []struct {
		k    float64
		want int
	}{
		{0, 0},
		{b[1], 1},
		{b[1] - 1e-9, 0},
		{math.Sqrt2 * g.Nyquist(), 3},
		{-1, -1},
		{10, -1},
	}
	for _, tt := range tests {
		if got := b.Find(tt.k); got != tt.want {
			t.Errorf("Find(%g) = %d, want %d", tt.k, got, tt.want)
		}
	}
	for idx := 0; idx < g.Size(); idx++ {
		if b.Find(g.K(idx)) < 0 {
			t.Errorf("mode %d (k=%g) outside every band", idx, g.K(idx))
		}
	}
}

func TestBandPowers_Parseval(t *testing.T) {
	g := field.MustGrid(8, 0.5)
	f := field.WhiteNoise(g, rand.New(rand.NewSource(1)))

	s, err := BandPowers(f, LinearBands(g, 5))
	if err != nil {
		t.Fatal(err)
	}
	var total float64
	var count int
	for b, p := range s.Power {
		if s.Counts[b] > 0 {
			total += p * float64(s.Counts[b])
		}
		count += s.Counts[b]
	}
	if count != g.Size() {
		t.Errorf("bands hold %d modes, grid has %d", count, g.Size())
	}
	if want := f.Dot(f); math.Abs(total-want) > 1e-9*want {
		t.Errorf("Σ power = %g, Σ pixel² = %g", total, want)
	}
}

func TestBandPowers_RecoversCovariance(t *testing.T) {
	g := field.MustGrid(16, 1)
	cf := field.NewIsotropic(g, func(k float64) float64 { return 2 / (1 + k*k) })
	bands := LinearBands(g, 6)
	rng := rand.New(rand.NewSource(2))

	var spectra []*Spectrum
	for i := 0; i < 200; i++ {
		f, _ := cf.Sqrt().Apply(field.WhiteNoise(g, rng))
		s, err := BandPowers(f, bands)
		if err != nil {
			t.Fatal(err)
		}
		spectra = append(spectra, s)
	}
	avg, err := Average(spectra...)
	if err != nil {
		t.Fatal(err)
	}

	values := cf.Values()
	for b := 0; b < bands.Len(); b++ {
		var sum float64
		var n int
		for idx, v := range values {
			if bands.Find(g.K(idx)) == b {
				sum += v
				n++
			}
		}
		if n == 0 {
			continue
		}
		if avg.Error[b] <= 0 {
			t.Fatalf("band %d: expected a positive error bar", b)
		}
		want := sum / float64(n)
		if d := math.Abs(avg.Power[b] - want); d > 5*avg.Error[b] {
			t.Errorf("band %d: power %g ± %g, covariance %g", b, avg.Power[b], avg.Error[b], want)
		}
	}
}

func TestSpectrum_Diagonal(t *testing.T) {
	g := field.MustGrid(8, 1)
	s := &Spectrum{Bands: Bands{0, 1, 2, 5}, Power: []float64{3, math.NaN(), 7}}
	d, err := s.Diagonal(g)
	if err != nil {
		t.Fatal(err)
	}
	for idx, v := range d.Values() {
		k := g.K(idx)
		want := 3.0
		if k >= 2 {
			want = 7
		}
		if v != want {
			t.Errorf("k=%g: got %g, want %g", k, v, want)
		}
	}

	empty := &Spectrum{Bands: Bands{0, 1}, Power: []float64{math.NaN()}}
	if _, err := empty.Diagonal(g); !errors.Is(err, ErrInvalidBands) {
		t.Errorf("expected ErrInvalidBands, got %v", err)
	}
}

func TestCrossCorrelation(t *testing.T) {
	g := field.MustGrid(8, 1)
	rng := rand.New(rand.NewSource(3))
	a := field.WhiteNoise(g, rng)
	bands := LinearBands(g, 4)

	same, err := CrossCorrelation(a, a, bands)
	if err != nil {
		t.Fatal(err)
	}
	opposite, err := CrossCorrelation(a, a.Scale(-2), bands)
	if err != nil {
		t.Fatal(err)
	}
	for b := range same {
		if math.Abs(same[b]-1) > 1e-12 {
			t.Errorf("band %d: self correlation %g", b, same[b])
		}
		if math.Abs(opposite[b]+1) > 1e-12 {
			t.Errorf("band %d: anti-correlation %g", b, opposite[b])
		}
	}

	zero, err := CrossCorrelation(a, field.Zero(g), bands)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(zero[0]) {
		t.Errorf("correlation with a zero map should be NaN, got %g", zero[0])
	}

	if _, err := CrossCorrelation(a, field.Zero(field.MustGrid(4, 1)), bands); !errors.Is(err, field.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
	if _, err := CrossCorrelation(a, a, Bands{1}); !errors.Is(err, ErrInvalidBands) {
		t.Errorf("expected ErrInvalidBands, got %v", err)
	}
}

func qeDataSet(t *testing.T, noise float64) *posterior.DataSet {
	t.Helper()
	g := field.MustGrid(8, 1)
	cf := field.NewIsotropic(g, func(k float64) float64 { return 1/(1+k*k) + 0.01 })
	ds, err := posterior.NewDataSet(posterior.DataSetParams{
		Data: field.Zero(g),
		Cn:   field.ConstantDiagonal(g, field.Map, noise),
		Cf:   cf,
		Cphi: cf,
		B:    field.NewIsotropic(g, func(k float64) float64 { return math.Exp(-k * k / 16) }),
	})
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func TestQuadraticEstimatorNoise(t *testing.T) {
	noisy, err := QuadraticEstimatorNoise(qeDataSet(t, 0.1))
	if err != nil {
		t.Fatal(err)
	}
	quiet, err := QuadraticEstimatorNoise(qeDataSet(t, 0.01))
	if err != nil {
		t.Fatal(err)
	}

	g := noisy.Grid()
	nv, qv := noisy.Values(), quiet.Values()
	for idx := range nv {
		if g.K(idx) == 0 {
			if !math.IsInf(nv[idx], 1) {
				t.Errorf("L=0 should be unconstrained, got %g", nv[idx])
			}
			continue
		}
		if !(nv[idx] > 0) || math.IsInf(nv[idx], 0) {
			t.Errorf("mode %d: noise %g not positive and finite", idx, nv[idx])
		}
		if qv[idx] >= nv[idx] {
			t.Errorf("mode %d: lower map noise gave higher reconstruction noise (%g >= %g)", idx, qv[idx], nv[idx])
		}
	}
}

func TestQuadraticEstimatorNoise_BasisMismatch(t *testing.T) {
	g := field.MustGrid(4, 1)
	ds, err := posterior.NewDataSet(posterior.DataSetParams{
		Data: field.Zero(g),
		Cn:   field.ConstantDiagonal(g, field.Map, 1),
		Cf:   field.ConstantDiagonal(g, field.Map, 1),
		Cphi: field.ConstantDiagonal(g, field.Fourier, 1),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := QuadraticEstimatorNoise(ds); !errors.Is(err, field.ErrBasisMismatch) {
		t.Errorf("expected ErrBasisMismatch, got %v", err)
	}
}
