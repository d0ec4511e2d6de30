package experiment

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/lenseflow/internal/field"
	"github.com/san-kum/lenseflow/internal/lenseflow"
	"github.com/san-kum/lenseflow/internal/posterior"
)

// Check is one numerical consistency test on the configured dataset.
type Check struct {
	Name      string
	Error     float64
	Tolerance float64
	Passed    bool
}

const (
	roundTripTol = 1e-3
	adjointTol   = 1e-3
	gradientTol  = 1e-3
	gradientEps  = 1e-8
)

// SelfCheck verifies the flow round trip, the flow adjoint and the posterior
// gradient in every parametrization against the simulated truth. Failures of
// the operators themselves are returned as errors; a failed check is not.
func (e *Experiment) SelfCheck(seed int64) ([]Check, error) {
	if e.ds == nil {
		return nil, ErrNotSetup
	}
	rng := rand.New(rand.NewSource(seed))
	g := e.ds.Grid
	flow := lenseflow.New(e.truth.Phi, e.integ)

	var checks []Check
	add := func(name string, errVal, tol float64) {
		checks = append(checks, Check{Name: name, Error: errVal, Tolerance: tol, Passed: errVal <= tol})
	}

	id, err := lenseflow.New(field.Zero(g), e.integ).Apply(e.truth.F)
	if err != nil {
		return nil, err
	}
	add("identity", id.Sub(e.truth.F).Norm()/e.truth.F.Norm(), 1e-12)

	lensed, err := flow.Apply(e.truth.F)
	if err != nil {
		return nil, err
	}
	back, err := flow.ApplyInverse(lensed)
	if err != nil {
		return nil, err
	}
	add("round trip", back.Sub(e.truth.F).Norm()/e.truth.F.Norm(), roundTripTol)

	w := field.WhiteNoise(g, rng)
	lt, err := flow.ApplyAdjoint(w)
	if err != nil {
		return nil, err
	}
	lhs, rhs := lensed.Dot(w), e.truth.F.Dot(lt)
	add("adjoint", math.Abs(lhs-rhs)/(lensed.Norm()*w.Norm()), adjointTol)

	for _, par := range []posterior.Parametrization{posterior.Unlensed, posterior.Lensed, posterior.Mixed} {
		rel, err := e.gradientError(par, rng)
		if err != nil {
			return nil, fmt.Errorf("%s gradient: %w", par, err)
		}
		add("gradient "+par.String(), rel, gradientTol)
	}
	return checks, nil
}

// gradientError compares the analytic directional derivative of lnP with a
// centered finite difference along a random prior-distributed direction.
func (e *Experiment) gradientError(par posterior.Parametrization, rng *rand.Rand) (float64, error) {
	f, err := e.inParametrization(par)
	if err != nil {
		return 0, err
	}
	phi := e.truth.Phi

	df, err := e.ds.Cf.Sqrt().Apply(field.WhiteNoise(e.ds.Grid, rng))
	if err != nil {
		return 0, err
	}
	dphi, err := e.ds.Cphi.Sqrt().Apply(field.WhiteNoise(e.ds.Grid, rng))
	if err != nil {
		return 0, err
	}
	df, dphi = df.Map(), dphi.Map()

	gf, gphi, err := posterior.Gradient(e.ds, par, f, phi, e.integ)
	if err != nil {
		return 0, err
	}
	analytic := gf.Dot(df) + gphi.Dot(dphi)

	plus, err := posterior.LnP(e.ds, par, f.AddScaled(gradientEps, df), phi.AddScaled(gradientEps, dphi), e.integ)
	if err != nil {
		return 0, err
	}
	minus, err := posterior.LnP(e.ds, par, f.AddScaled(-gradientEps, df), phi.AddScaled(-gradientEps, dphi), e.integ)
	if err != nil {
		return 0, err
	}
	numeric := (plus - minus) / (2 * gradientEps)
	return math.Abs(analytic-numeric) / math.Max(math.Abs(numeric), 1e-12), nil
}

func (e *Experiment) inParametrization(par posterior.Parametrization) (*field.Field, error) {
	switch par {
	case posterior.Lensed:
		return lenseflow.New(e.truth.Phi, e.integ).Apply(e.truth.F)
	case posterior.Mixed:
		return posterior.Mix(e.ds, e.truth.F, e.truth.Phi, e.integ)
	default:
		return e.truth.F, nil
	}
}
