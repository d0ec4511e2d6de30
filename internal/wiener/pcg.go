package wiener

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/lenseflow/internal/field"
)

// ErrSolverIncomplete marks a solve that stopped at its iteration cap before
// reaching tolerance. The returned iterate is still usable.
var ErrSolverIncomplete = errors.New("wiener: conjugate gradient stopped at iteration cap")

// ErrNotPositiveDefinite indicates a search direction of non-positive
// curvature.
var ErrNotPositiveDefinite = errors.New("wiener: system operator is not positive definite")

const (
	DefaultMaxIter = 200
	DefaultTol     = 1e-6
)

// Operator is the part of field.LinOp the solver needs.
type Operator interface {
	Apply(f *field.Field) (*field.Field, error)
}

// OperatorFunc adapts a function to Operator.
type OperatorFunc func(*field.Field) (*field.Field, error)

func (fn OperatorFunc) Apply(f *field.Field) (*field.Field, error) { return fn(f) }

// History records the relative residual |b − A·x|/|b| of every iterate,
// starting with the initial guess.
type History struct {
	Residuals  []float64
	Iterations int
	Converged  bool
	// Best is the iteration whose iterate was returned.
	Best int
	// Breakdown is set when a direction of non-positive curvature ended the solve.
	Breakdown bool
}

// Err returns ErrSolverIncomplete when the solve did not converge.
func (h *History) Err() error {
	if h == nil || h.Converged {
		return nil
	}
	if h.Breakdown {
		return fmt.Errorf("%w after %d iterations: %w", ErrSolverIncomplete, h.Iterations, ErrNotPositiveDefinite)
	}
	return fmt.Errorf("%w: residual %.3g after %d iterations", ErrSolverIncomplete, h.Final(), h.Iterations)
}

// Final returns the residual of the returned iterate.
func (h *History) Final() float64 {
	if h == nil || len(h.Residuals) == 0 {
		return math.NaN()
	}
	return h.Residuals[h.Best]
}

// PCGOptions bounds a conjugate-gradient solve.
type PCGOptions struct {
	MaxIter int
	Tol     float64
}

func (o PCGOptions) withDefaults() PCGOptions {
	if o.MaxIter <= 0 {
		o.MaxIter = DefaultMaxIter
	}
	if o.Tol <= 0 {
		o.Tol = DefaultTol
	}
	return o
}

// PCG solves A·x = b for symmetric positive-definite A, preconditioned by
// minv ≈ A⁻¹, starting from x0 (zero when nil). It returns the iterate with
// the lowest residual. Exhausting MaxIter is reported through History only;
// the error is reserved for failures of A or minv themselves.
func PCG(a, minv Operator, b, x0 *field.Field, opts PCGOptions) (*field.Field, *History, error) {
	opts = opts.withDefaults()
	hist := &History{}

	x := x0
	if x == nil {
		x = field.Zero(b.Grid())
	}
	x = x.Map()

	bnorm := b.Norm()
	if bnorm == 0 {
		hist.Residuals = []float64{0}
		hist.Converged = true
		return field.Zero(b.Grid()), hist, nil
	}

	ax, err := a.Apply(x)
	if err != nil {
		return nil, nil, err
	}
	r := b.Sub(ax).Map()
	z, err := minv.Apply(r)
	if err != nil {
		return nil, nil, err
	}
	p := z.Map()
	rz := r.Dot(z)

	res := r.Norm() / bnorm
	hist.Residuals = append(hist.Residuals, res)
	best, bestRes := x, res

	for i := 1; i <= opts.MaxIter && res > opts.Tol; i++ {
		ap, err := a.Apply(p)
		if err != nil {
			return nil, nil, err
		}
		pap := p.Dot(ap)
		if !(pap > 0) {
			hist.Breakdown = true
			break
		}

		alpha := rz / pap
		x = x.AddScaled(alpha, p)
		r = r.AddScaled(-alpha, ap)
		hist.Iterations = i

		res = r.Norm() / bnorm
		hist.Residuals = append(hist.Residuals, res)
		if res < bestRes {
			best, bestRes, hist.Best = x, res, i
		}
		if res <= opts.Tol {
			break
		}

		if z, err = minv.Apply(r); err != nil {
			return nil, nil, err
		}
		rzNext := r.Dot(z)
		p = z.AddScaled(rzNext/rz, p).Map()
		rz = rzNext
	}

	hist.Converged = bestRes <= opts.Tol
	return best, hist, nil
}
