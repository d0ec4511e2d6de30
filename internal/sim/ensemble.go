package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/san-kum/lenseflow/internal/analysis"
	"github.com/san-kum/lenseflow/internal/field"
	"github.com/san-kum/lenseflow/internal/lenseflow"
)

// Ensemble lenses independent prior draws concurrently.
type Ensemble struct {
	cf, cphi *field.Diagonal
	newInteg IntegratorFactory
	numRuns  int
}

func NewEnsemble(cf, cphi *field.Diagonal, newInteg IntegratorFactory, numRuns int) *Ensemble {
	return &Ensemble{cf: cf, cphi: cphi, newInteg: newInteg, numRuns: numRuns}
}

// Lensed returns numRuns lensed fields. The white noise is drawn from rng
// sequentially before any goroutine starts, so the output depends on rng
// alone.
func (e *Ensemble) Lensed(ctx context.Context, rng *rand.Rand) ([]*field.Field, error) {
	g := e.cf.Grid()
	fs := make([]*field.Field, e.numRuns)
	phis := make([]*field.Field, e.numRuns)
	for i := range fs {
		fs[i] = field.WhiteNoise(g, rng)
		phis[i] = field.WhiteNoise(g, rng)
	}

	results := make([]*field.Field, e.numRuns)
	errs := make([]error, e.numRuns)

	var wg sync.WaitGroup
	for i := 0; i < e.numRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return
			}
			results[idx], errs[idx] = e.lens(fs[idx], phis[idx])
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (e *Ensemble) lens(wf, wphi *field.Field) (*field.Field, error) {
	f, err := e.cf.Sqrt().Apply(wf)
	if err != nil {
		return nil, err
	}
	phi, err := e.cphi.Sqrt().Apply(wphi)
	if err != nil {
		return nil, err
	}
	return lenseflow.New(phi.Map(), e.newInteg()).Apply(f.Map())
}

// LensedSpectrum averages the band powers of the lensed draws into a
// Fourier-diagonal covariance, binned in N/2 linear bands.
func (e *Ensemble) LensedSpectrum(ctx context.Context, rng *rand.Rand) (*field.Diagonal, error) {
	lensed, err := e.Lensed(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("lensed spectrum: %w", err)
	}
	g := e.cf.Grid()
	bands := analysis.LinearBands(g, g.N()/2)
	spectra := make([]*analysis.Spectrum, len(lensed))
	for i, f := range lensed {
		if spectra[i], err = analysis.BandPowers(f, bands); err != nil {
			return nil, err
		}
	}
	avg, err := analysis.Average(spectra...)
	if err != nil {
		return nil, err
	}
	return avg.Diagonal(g)
}
