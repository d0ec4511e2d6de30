// Package wiener computes the conditional maximum or a conditional sample of
// the signal field at fixed lensing potential.
//
// The conditional posterior of the unlensed field is Gaussian; its mean
// solves
//
//	(Cf⁻¹ + Lᵀ Bᵀ Mᵀ Cn⁻¹ M B L) f = Lᵀ Bᵀ Mᵀ Cn⁻¹ d
//
// which Solve inverts by preconditioned conjugate gradient against the
// Fourier-diagonal surrogate (Cf⁻¹ + B̂ᵀ Cn̂⁻¹ B̂)⁻¹.
package wiener

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"go.uber.org/zap"

	"github.com/san-kum/lenseflow/internal/field"
	"github.com/san-kum/lenseflow/internal/posterior"
)

var (
	// ErrInvalidMode indicates a mode other than mean, sample or fluctuation.
	ErrInvalidMode = errors.New("wiener: invalid mode")

	// ErrNoRandomSource indicates a sampling mode without a random state.
	ErrNoRandomSource = errors.New("wiener: sampling requires a random source")
)

// Mode selects the right-hand side of the solve.
type Mode int

const (
	// Mean solves for the conditional maximum.
	Mean Mode = iota
	// Sample draws from the conditional posterior.
	Sample
	// Fluctuation is Sample minus Mean.
	Fluctuation
)

var modeNames = []string{"mean", "sample", "fluctuation"}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if strings.EqualFold(s, name) {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Options configures Solve. Zero values select the package defaults.
type Options struct {
	MaxIter int
	Tol     float64
	// Start is the initial guess, typically the previous solution.
	Start  *field.Field
	Logger *zap.Logger
}

// Solve returns the unlensed field for mode at the potential carried by lens,
// the lensing operator L[0→1]. Randomness for Sample and Fluctuation is drawn
// from rng only.
func Solve(ds *posterior.DataSet, lens field.LinOp, mode Mode, opts Options, rng *rand.Rand) (*field.Field, *History, error) {
	if mode < Mean || mode > Fluctuation {
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}
	if mode != Mean && rng == nil {
		return nil, nil, ErrNoRandomSource
	}
	if opts.Start != nil {
		if err := ds.Check(opts.Start); err != nil {
			return nil, nil, err
		}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	b, err := rhs(ds, lens, mode, rng)
	if err != nil {
		return nil, nil, err
	}
	minv, err := Preconditioner(ds)
	if err != nil {
		return nil, nil, err
	}

	x, hist, err := PCG(System(ds, lens), minv, b, opts.Start, PCGOptions{MaxIter: opts.MaxIter, Tol: opts.Tol})
	if err != nil {
		return nil, nil, err
	}

	fields := []zap.Field{
		zap.Stringer("mode", mode),
		zap.Int("iterations", hist.Iterations),
		zap.Float64("residual", hist.Final()),
	}
	if hist.Converged {
		log.Debug("wiener filter converged", fields...)
	} else {
		log.Warn("wiener filter stopped before tolerance", append(fields, zap.Error(hist.Err()))...)
	}
	return x, hist, nil
}

// System returns the operator Cf⁻¹ + Lᵀ Bᵀ Mᵀ Cn⁻¹ M B L.
func System(ds *posterior.DataSet, lens field.LinOp) Operator {
	return OperatorFunc(func(f *field.Field) (*field.Field, error) {
		prior, err := ds.CfInv().Apply(f)
		if err != nil {
			return nil, err
		}
		lf, err := lens.Apply(f)
		if err != nil {
			return nil, err
		}
		obs, err := ds.Observe(lf)
		if err != nil {
			return nil, err
		}
		w, err := ds.CnInv().Apply(obs)
		if err != nil {
			return nil, err
		}
		back, err := pullBack(ds, lens, w)
		if err != nil {
			return nil, err
		}
		return prior.Add(back), nil
	})
}

// Preconditioner returns (Cf⁻¹ + B̂ᵀ Cn̂⁻¹ B̂)⁻¹, diagonal in the basis of Cf.
func Preconditioner(ds *posterior.DataSet) (*field.Diagonal, error) {
	cnInv, err := ds.CnApprox.Inverse()
	if err != nil {
		return nil, fmt.Errorf("noise surrogate: %w", err)
	}
	b2 := ds.BApprox.Pow(2)
	noise, err := b2.Times(cnInv)
	if err != nil {
		return nil, err
	}
	if ds.CfInv().Basis() != noise.Basis() {
		noise = field.ConstantDiagonal(ds.Grid, ds.CfInv().Basis(), noise.Mean())
	}
	sum, err := ds.CfInv().Plus(noise)
	if err != nil {
		return nil, err
	}
	return sum.Inverse()
}

// pullBack returns Lᵀ Bᵀ Mᵀ w.
func pullBack(ds *posterior.DataSet, lens field.LinOp, w *field.Field) (*field.Field, error) {
	bw, err := ds.ObserveAdjoint(w)
	if err != nil {
		return nil, err
	}
	return lens.ApplyAdjoint(bw)
}

func rhs(ds *posterior.DataSet, lens field.LinOp, mode Mode, rng *rand.Rand) (*field.Field, error) {
	b := field.Zero(ds.Grid)

	if mode != Fluctuation {
		w, err := ds.CnInv().Apply(ds.Data)
		if err != nil {
			return nil, err
		}
		mean, err := pullBack(ds, lens, w)
		if err != nil {
			return nil, err
		}
		b = b.Add(mean)
	}

	if mode != Mean {
		w1 := field.WhiteNoise(ds.Grid, rng)
		w2 := field.WhiteNoise(ds.Grid, rng)

		signal, err := ds.CfInv().Sqrt().Apply(w1)
		if err != nil {
			return nil, err
		}
		nw, err := ds.CnInv().Sqrt().Apply(w2)
		if err != nil {
			return nil, err
		}
		noise, err := pullBack(ds, lens, nw)
		if err != nil {
			return nil, err
		}
		b = b.Add(signal).Add(noise)
	}
	return b.Map(), nil
}
