// Package jointmax alternates Wiener-filter field updates with line-searched
// potential updates to reach the joint maximum of the posterior, or an
// iterative conditional quasi-sample of it.
package jointmax

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/san-kum/lenseflow/internal/field"
	"github.com/san-kum/lenseflow/internal/lenseflow"
	"github.com/san-kum/lenseflow/internal/ode"
	"github.com/san-kum/lenseflow/internal/optim"
	"github.com/san-kum/lenseflow/internal/posterior"
	"github.com/san-kum/lenseflow/internal/wiener"
)

// ErrInvalidOptions indicates an unusable optimizer configuration.
var ErrInvalidOptions = errors.New("jointmax: invalid options")

const (
	DefaultAlphaMax = 0.5
	DefaultAlphaTol = 1e-4
)

// Options configures Run.
type Options struct {
	Steps      int
	Integrator ode.Integrator
	// Solver configures every field step. Start and Logger are set by Run.
	Solver wiener.Options

	AlphaMax float64
	AlphaTol float64

	// NPhi is an estimate of the potential reconstruction noise. When set the
	// potential step is preconditioned by (Cϕ⁻¹ + Nϕ⁻¹)⁻¹ instead of Cϕ.
	NPhi *field.Diagonal

	// QuasiSample switches the field step to sample mode drawing from a
	// random state seeded with Seed.
	QuasiSample bool
	Seed        int64

	// Phi0 is the starting potential, zero when nil.
	Phi0 *field.Field

	Progress func(Record)
	Logger   *zap.Logger
}

// Record is one outer iteration. F and FMix are the field step's output at
// the potential the iteration started from; Phi is the accepted potential
// after the line search.
type Record struct {
	Step      int
	LnP       float64
	LnPBefore float64
	Alpha     float64
	Direction *field.Field
	Phi       *field.Field
	F         *field.Field
	FMix      *field.Field
	Solver    *wiener.History
}

// Result is the final state of a run and its trace.
type Result struct {
	FMix  *field.Field
	F     *field.Field
	Phi   *field.Field
	Trace []Record
}

func (o Options) validate() (Options, error) {
	if o.Steps < 1 {
		return o, fmt.Errorf("%w: steps must be positive, got %d", ErrInvalidOptions, o.Steps)
	}
	if o.Integrator == nil {
		return o, fmt.Errorf("%w: no integrator", ErrInvalidOptions)
	}
	if o.AlphaMax == 0 {
		o.AlphaMax = DefaultAlphaMax
	}
	if o.AlphaTol == 0 {
		o.AlphaTol = DefaultAlphaTol
	}
	if !(o.AlphaMax > 0) || math.IsInf(o.AlphaMax, 0) || !(o.AlphaTol > 0) {
		return o, fmt.Errorf("%w: line search bound %g, tolerance %g", ErrInvalidOptions, o.AlphaMax, o.AlphaTol)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o, nil
}

// Run performs opts.Steps outer iterations on ds. Integration and inversion
// failures abort the run; incomplete solves are recorded in the trace.
func Run(ds *posterior.DataSet, opts Options) (*Result, error) {
	opts, err := opts.validate()
	if err != nil {
		return nil, err
	}
	phi := opts.Phi0
	if phi == nil {
		phi = field.Zero(ds.Grid)
	}
	if err := ds.Check(phi); err != nil {
		return nil, err
	}
	precond, err := Preconditioner(ds, opts.NPhi)
	if err != nil {
		return nil, err
	}

	mode := wiener.Mean
	var rng *rand.Rand
	if opts.QuasiSample {
		mode = wiener.Sample
		rng = rand.New(rand.NewSource(opts.Seed))
	}
	solver := opts.Solver
	solver.Logger = opts.Logger

	res := &Result{}
	var f *field.Field
	for i := 1; i <= opts.Steps; i++ {
		var lens field.LinOp = lenseflow.New(phi, opts.Integrator)
		if i == 1 && phi.IsZero() {
			lens = field.Identity{}
		}

		solver.Start = f
		var hist *wiener.History
		f, hist, err = wiener.Solve(ds, lens, mode, solver, rng)
		if err != nil {
			return nil, fmt.Errorf("step %d: field update: %w", i, err)
		}
		fmix, err := posterior.Mix(ds, f, phi, opts.Integrator)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		lnp, err := posterior.LnP(ds, posterior.Mixed, fmix, phi, opts.Integrator)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}

		rec := Record{Step: i, LnP: lnp, LnPBefore: lnp, Phi: phi, F: f, FMix: fmix, Solver: hist}
		if i < opts.Steps {
			rec, err = potentialStep(ds, opts, precond, rec)
			if err != nil {
				return nil, fmt.Errorf("step %d: potential update: %w", i, err)
			}
			phi = rec.Phi
		}

		res.Trace = append(res.Trace, rec)
		res.F, res.FMix, res.Phi = f, fmix, phi

		opts.Logger.Info("joint step",
			zap.Int("step", i),
			zap.Float64("lnP", rec.LnP),
			zap.Float64("alpha", rec.Alpha),
			zap.Int("cg_iterations", hist.Iterations),
			zap.Bool("cg_converged", hist.Converged),
		)
		if opts.Progress != nil {
			opts.Progress(rec)
		}
	}
	return res, nil
}

// potentialStep moves rec.Phi along the preconditioned gradient at fixed
// mixed field, accepting the line-search optimum only if it beats α = 0.
func potentialStep(ds *posterior.DataSet, opts Options, precond *field.Diagonal, rec Record) (Record, error) {
	_, gphi, err := posterior.Gradient(ds, posterior.Mixed, rec.FMix, rec.Phi, opts.Integrator)
	if err != nil {
		return rec, err
	}
	dir, err := precond.Apply(gphi)
	if err != nil {
		return rec, err
	}
	dir = dir.Map()
	rec.Direction = dir

	phi := rec.Phi
	lnp := func(alpha float64) (float64, error) {
		return posterior.LnP(ds, posterior.Mixed, rec.FMix, phi.AddScaled(alpha, dir), opts.Integrator)
	}
	best, err := optim.MaximizeBounded(lnp, 0, opts.AlphaMax, optim.Options{Tol: opts.AlphaTol})
	if err != nil {
		return rec, err
	}
	if best.F > rec.LnPBefore {
		rec.Alpha = best.X
		rec.LnP = best.F
		rec.Phi = phi.AddScaled(best.X, dir)
	}
	return rec, nil
}

// Preconditioner returns the approximate inverse Hessian of the potential
// step: Cϕ, or (Cϕ⁻¹ + Nϕ⁻¹)⁻¹ when nphi is given. Infinite noise entries
// carry no information and leave the prior unchanged.
func Preconditioner(ds *posterior.DataSet, nphi *field.Diagonal) (*field.Diagonal, error) {
	if nphi == nil {
		return ds.Cphi, nil
	}
	ninv := nphi.MapValues(func(n float64) float64 {
		if math.IsInf(n, 1) {
			return 0
		}
		return 1 / n
	})
	sum, err := ds.CphiInv().Plus(ninv)
	if err != nil {
		return nil, fmt.Errorf("potential noise: %w", err)
	}
	return sum.Inverse()
}
