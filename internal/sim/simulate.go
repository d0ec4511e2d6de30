// Package sim draws synthetic lensed observations from toy spectra.
package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/lenseflow/internal/config"
	"github.com/san-kum/lenseflow/internal/field"
	"github.com/san-kum/lenseflow/internal/lenseflow"
	"github.com/san-kum/lenseflow/internal/ode"
	"github.com/san-kum/lenseflow/internal/posterior"
)

// IntegratorFactory returns a fresh integrator. Integrators keep scratch
// buffers, so concurrent draws each need their own.
type IntegratorFactory func() ode.Integrator

// Truth is the simulated unlensed field and potential behind a dataset.
type Truth struct {
	F   *field.Field
	Phi *field.Field
}

// Simulate draws f ~ N(0, Cf) and ϕ ~ N(0, Cϕ), lenses f by ϕ and observes
// it through the configured beam, mask and white noise. All randomness comes
// from rng, in a fixed order.
func Simulate(ctx context.Context, cfg *config.Config, rng *rand.Rand, newInteg IntegratorFactory) (*posterior.DataSet, *Truth, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	g, err := field.NewGrid(cfg.Grid.N, cfg.Grid.Dx)
	if err != nil {
		return nil, nil, err
	}

	cf := SignalSpectrum(g, cfg.Signal)
	cphi := PotentialSpectrum(g, cfg.Potential)
	cn := field.ConstantDiagonal(g, field.Map, cfg.Noise.Level*cfg.Noise.Level)
	beam := Beam(g, cfg.Noise.BeamFWHM)
	mask := Mask(g, cfg.Noise.MaskHoles, cfg.Noise.HoleSize, rng)

	f, err := draw(cf, rng)
	if err != nil {
		return nil, nil, err
	}
	phi, err := draw(cphi, rng)
	if err != nil {
		return nil, nil, err
	}
	lensed, err := lenseflow.New(phi, newInteg()).Apply(f)
	if err != nil {
		return nil, nil, fmt.Errorf("lens truth: %w", err)
	}
	observed, err := field.NewChain(mask, beam).Apply(lensed)
	if err != nil {
		return nil, nil, err
	}
	noise, err := draw(cn, rng)
	if err != nil {
		return nil, nil, err
	}

	params := posterior.DataSetParams{
		Data:        observed.Add(noise).Map(),
		Cn:          cn,
		Cf:          cf,
		Cphi:        cphi,
		M:           mask,
		B:           beam,
		MixVariance: cfg.Signal.MixVariance,
	}
	if cfg.Signal.LensedDraws > 0 {
		ens := NewEnsemble(cf, cphi, newInteg, cfg.Signal.LensedDraws)
		if params.CfLensed, err = ens.LensedSpectrum(ctx, rng); err != nil {
			return nil, nil, err
		}
	}

	ds, err := posterior.NewDataSet(params)
	if err != nil {
		return nil, nil, err
	}
	return ds, &Truth{F: f, Phi: phi}, nil
}

func draw(c *field.Diagonal, rng *rand.Rand) (*field.Field, error) {
	f, err := c.Sqrt().Apply(field.WhiteNoise(c.Grid(), rng))
	if err != nil {
		return nil, err
	}
	return f.Map(), nil
}

// SignalSpectrum returns Amplitude/(1 + (k/Knee)²)·exp(−(k/Damping)²) with
// a small floor that keeps it invertible.
func SignalSpectrum(g *field.Grid, c config.SignalConfig) *field.Diagonal {
	floor := 1e-6 * c.Amplitude
	return field.NewIsotropic(g, func(k float64) float64 {
		x := k / c.Knee
		return c.Amplitude/(1+x*x)*math.Exp(-(k/c.Damping)*(k/c.Damping)) + floor
	})
}

// PotentialSpectrum returns A/(1 + (k/Knee)²)² with A chosen so the rms
// deflection |∇ϕ| equals DeflectionRMS.
func PotentialSpectrum(g *field.Grid, c config.PotentialConfig) *field.Diagonal {
	shape := field.NewIsotropic(g, func(k float64) float64 {
		x := k / c.Knee
		return 1 / ((1 + x*x) * (1 + x*x))
	})
	deflection := shape.Values()
	for idx := range deflection {
		k := g.K(idx)
		deflection[idx] *= k * k
	}
	var mean float64
	for _, v := range deflection {
		mean += v
	}
	mean /= float64(len(deflection))
	return shape.Scale(c.DeflectionRMS * c.DeflectionRMS / mean)
}

// Beam returns a Gaussian beam of the given full width at half maximum, or
// the identity for fwhm = 0.
func Beam(g *field.Grid, fwhm float64) field.LinOp {
	if fwhm <= 0 {
		return field.Identity{}
	}
	sigma := fwhm / math.Sqrt(8*math.Ln2)
	return field.NewIsotropic(g, func(k float64) float64 {
		return math.Exp(-0.5 * k * k * sigma * sigma)
	})
}

// Mask returns a pixel mask with the given number of square holes of side
// size at random positions, wrapping periodically.
func Mask(g *field.Grid, holes, size int, rng *rand.Rand) field.LinOp {
	if holes <= 0 {
		return field.Identity{}
	}
	v := make([]float64, g.Size())
	for i := range v {
		v[i] = 1
	}
	n := g.N()
	for h := 0; h < holes; h++ {
		i0, j0 := rng.Intn(n), rng.Intn(n)
		for i := 0; i < size; i++ {
			for j := 0; j < size; j++ {
				v[g.Index(i0+i, j0+j)] = 0
			}
		}
	}
	m, _ := field.NewDiagonal(g, field.Map, v)
	return m
}
