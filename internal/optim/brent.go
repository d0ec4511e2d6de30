// Package optim provides the scalar line search used by the joint optimizer
// and a grid search over configuration knobs.
package optim

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidBracket indicates an empty or non-finite search interval.
var ErrInvalidBracket = errors.New("optim: invalid search interval")

const (
	golden      = 0.3819660112501051 // (3 - √5)/2
	defaultIter = 500
)

// Objective is maximized by MaximizeBounded. An error aborts the search.
type Objective func(x float64) (float64, error)

// Result is the outcome of a bounded scalar search.
type Result struct {
	X           float64
	F           float64
	Evaluations int
	Converged   bool
}

// Options bounds a search. MaxIter ≤ 0 selects the default budget.
type Options struct {
	Tol     float64
	MaxIter int
}

// MaximizeBounded finds a local maximum of fn on [lo, hi] by Brent's method,
// combining golden-section steps with parabolic interpolation. It stops once
// the bracket around the best point is within about Tol of it.
func MaximizeBounded(fn Objective, lo, hi float64, opts Options) (Result, error) {
	if !(lo < hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return Result{}, fmt.Errorf("%w: [%g, %g]", ErrInvalidBracket, lo, hi)
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = defaultIter
	}
	tol := opts.Tol
	if tol <= 0 {
		tol = 1e-5
	}

	res := Result{}
	eval := func(x float64) (float64, error) {
		res.Evaluations++
		v, err := fn(x)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(v) {
			return math.Inf(1), nil
		}
		// minimize the negated objective
		return -v, nil
	}

	a, b := lo, hi
	x := a + golden*(b-a)
	w, v := x, x
	fx, err := eval(x)
	if err != nil {
		return res, err
	}
	fw, fv := fx, fx
	var d, e float64

	sqrtEps := math.Sqrt(2.2e-16)
	for iter := 0; iter < opts.MaxIter; iter++ {
		xm := 0.5 * (a + b)
		tol1 := sqrtEps*math.Abs(x) + tol/3
		tol2 := 2 * tol1

		if math.Abs(x-xm) <= tol2-0.5*(b-a) {
			res.Converged = true
			break
		}

		useGolden := true
		if math.Abs(e) > tol1 {
			// parabola through x, w, v
			r := (x - w) * (fx - fv)
			q := (x - v) * (fx - fw)
			p := (x-v)*q - (x-w)*r
			q = 2 * (q - r)
			if q > 0 {
				p = -p
			}
			q = math.Abs(q)
			etemp := e
			e = d

			if math.Abs(p) < math.Abs(0.5*q*etemp) && p > q*(a-x) && p < q*(b-x) {
				d = p / q
				u := x + d
				if u-a < tol2 || b-u < tol2 {
					d = math.Copysign(tol1, xm-x)
				}
				useGolden = false
			}
		}
		if useGolden {
			if x >= xm {
				e = a - x
			} else {
				e = b - x
			}
			d = golden * e
		}

		u := x + d
		if math.Abs(d) < tol1 {
			u = x + math.Copysign(tol1, d)
		}
		fu, err := eval(u)
		if err != nil {
			return res, err
		}

		if fu <= fx {
			if u >= x {
				a = x
			} else {
				b = x
			}
			v, fv = w, fw
			w, fw = x, fx
			x, fx = u, fu
			continue
		}
		if u < x {
			a = u
		} else {
			b = u
		}
		switch {
		case fu <= fw || w == x:
			v, fv = w, fw
			w, fw = u, fu
		case fu <= fv || v == x || v == w:
			v, fv = u, fu
		}
	}

	res.X = x
	res.F = -fx
	return res, nil
}
