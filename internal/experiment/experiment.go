// Package experiment wires a configuration into a simulated dataset, a joint
// reconstruction and its diagnostics.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/lenseflow/internal/analysis"
	"github.com/san-kum/lenseflow/internal/config"
	"github.com/san-kum/lenseflow/internal/field"
	"github.com/san-kum/lenseflow/internal/jointmax"
	"github.com/san-kum/lenseflow/internal/ode"
	"github.com/san-kum/lenseflow/internal/posterior"
	"github.com/san-kum/lenseflow/internal/sim"
	"github.com/san-kum/lenseflow/internal/wiener"
)

var ErrNotSetup = errors.New("experiment: not set up")

type Experiment struct {
	cfg      *config.Config
	registry *Registry
	logger   *zap.Logger

	integ ode.Integrator
	ds    *posterior.DataSet
	truth *sim.Truth
}

// Outcome is a finished reconstruction compared against the simulated truth.
type Outcome struct {
	Result *jointmax.Result
	Truth  *sim.Truth
	Bands  analysis.Bands
	// Correlation is the per-band cross-correlation of the reconstructed and
	// true potential.
	Correlation []float64
	PhiSpectrum *analysis.Spectrum
	Elapsed     time.Duration
}

func New(cfg *config.Config, logger *zap.Logger) *Experiment {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Experiment{cfg: cfg, registry: NewRegistry(), logger: logger}
}

// Setup simulates the dataset. The simulation stream is seeded by cfg.Seed.
func (e *Experiment) Setup(ctx context.Context) error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	factory, err := e.registry.Factory(e.cfg.Integrator)
	if err != nil {
		return err
	}
	e.integ = factory()

	rng := rand.New(rand.NewSource(e.cfg.Seed))
	e.ds, e.truth, err = sim.Simulate(ctx, e.cfg, rng, factory)
	if err != nil {
		return fmt.Errorf("simulate: %w", err)
	}
	e.logger.Info("dataset ready",
		zap.String("config", e.cfg.Name),
		zap.Int("n", e.cfg.Grid.N),
		zap.String("integrator", e.cfg.Integrator.Kind),
		zap.Bool("lensed_spectrum", e.ds.CfLensed != nil),
	)
	return nil
}

func (e *Experiment) DataSet() *posterior.DataSet { return e.ds }
func (e *Experiment) Truth() *sim.Truth           { return e.truth }
func (e *Experiment) Integrator() ode.Integrator  { return e.integ }
func (e *Experiment) Config() *config.Config      { return e.cfg }

// Options translates the configuration into optimizer options.
func (e *Experiment) Options(progress func(jointmax.Record)) (jointmax.Options, error) {
	if e.ds == nil {
		return jointmax.Options{}, ErrNotSetup
	}
	opts := jointmax.Options{
		Steps:       e.cfg.Optimizer.Steps,
		Integrator:  e.integ,
		Solver:      wiener.Options{MaxIter: e.cfg.Solver.MaxIter, Tol: e.cfg.Solver.Tol},
		AlphaMax:    e.cfg.Optimizer.AlphaMax,
		AlphaTol:    e.cfg.Optimizer.AlphaTol,
		QuasiSample: e.cfg.Optimizer.QuasiSample,
		// separate stream from the simulation
		Seed:     e.cfg.Seed + 1,
		Progress: progress,
		Logger:   e.logger,
	}
	if e.cfg.Optimizer.QuadraticNoise {
		nphi, err := analysis.QuadraticEstimatorNoise(e.ds)
		if err != nil {
			return opts, fmt.Errorf("quadratic estimator noise: %w", err)
		}
		opts.NPhi = nphi
	}
	return opts, nil
}

// Run reconstructs the simulated dataset. Cancellation is honored between
// Setup and Run only; an in-flight optimization runs to completion.
func (e *Experiment) Run(ctx context.Context, progress func(jointmax.Record)) (*Outcome, error) {
	if e.ds == nil {
		return nil, ErrNotSetup
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts, err := e.Options(progress)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := jointmax.Run(e.ds, opts)
	if err != nil {
		return nil, err
	}
	out := &Outcome{
		Result:  res,
		Truth:   e.truth,
		Bands:   analysis.LinearBands(e.ds.Grid, e.ds.Grid.N()/2),
		Elapsed: time.Since(start),
	}
	if out.Correlation, err = analysis.CrossCorrelation(res.Phi, e.truth.Phi, out.Bands); err != nil {
		return nil, err
	}
	if out.PhiSpectrum, err = analysis.BandPowers(res.Phi, out.Bands); err != nil {
		return nil, err
	}

	last := res.Trace[len(res.Trace)-1]
	e.logger.Info("reconstruction finished",
		zap.Int("steps", len(res.Trace)),
		zap.Float64("lnP", last.LnP),
		zap.Duration("elapsed", out.Elapsed),
	)
	return out, nil
}

// Spectra returns the band powers of the true and, when given, a
// reconstructed potential next to the band-averaged prior.
func (e *Experiment) Spectra(phi *field.Field) (prior, truth, recon *analysis.Spectrum, err error) {
	if e.ds == nil {
		return nil, nil, nil, ErrNotSetup
	}
	bands := analysis.LinearBands(e.ds.Grid, e.ds.Grid.N()/2)
	if truth, err = analysis.BandPowers(e.truth.Phi, bands); err != nil {
		return nil, nil, nil, err
	}
	if phi != nil {
		if recon, err = analysis.BandPowers(phi, bands); err != nil {
			return nil, nil, nil, err
		}
	}
	prior = bandAverage(e.ds.Cphi, bands)
	return prior, truth, recon, nil
}

func bandAverage(c *field.Diagonal, bands analysis.Bands) *analysis.Spectrum {
	g := c.Grid()
	s := &analysis.Spectrum{
		Bands:   bands,
		Centers: bands.Centers(),
		Power:   make([]float64, bands.Len()),
		Error:   make([]float64, bands.Len()),
		Counts:  make([]int, bands.Len()),
	}
	for idx, v := range c.Values() {
		if b := bands.Find(g.K(idx)); b >= 0 {
			s.Power[b] += v
			s.Counts[b]++
		}
	}
	for b := range s.Power {
		if s.Counts[b] == 0 {
			s.Power[b] = math.NaN()
			continue
		}
		s.Power[b] /= float64(s.Counts[b])
	}
	return s
}
