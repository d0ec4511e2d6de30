package analysis

import (
	"fmt"
	"math"

	"github.com/san-kum/lenseflow/internal/field"
	"github.com/san-kum/lenseflow/internal/posterior"
)

// QuadraticEstimatorNoise returns the flat-sky reconstruction noise Nϕ(L) of
// the minimum-variance temperature quadratic estimator, as a Fourier
// diagonal in the convention of ds.Cphi:
//
//	Nϕ(L)⁻¹ = 1/A Σₗ [L·l C̃(l) + L·(L−l) C̃(|L−l|)]² / (2 Ctot(l) Ctot(|L−l|))
//
// with A the map area, C̃ the lensed signal spectrum (Cf when no lensed
// spectrum is set) and Ctot = C̃ + Cn̂/B̂². The L = 0 mode is unconstrained
// and set to +Inf.
func QuadraticEstimatorNoise(ds *posterior.DataSet) (*field.Diagonal, error) {
	cl := ds.CfLensed
	if cl == nil {
		cl = ds.Cf
	}
	for name, d := range map[string]*field.Diagonal{"signal": cl, "noise": ds.CnApprox, "beam": ds.BApprox} {
		if d.Basis() != field.Fourier {
			return nil, fmt.Errorf("%w: %s spectrum must be Fourier-diagonal", field.ErrBasisMismatch, name)
		}
	}

	g := ds.Grid
	n := g.N()
	ct := cl.Values()
	cn := ds.CnApprox.Values()
	beam := ds.BApprox.Values()
	tot := make([]float64, len(ct))
	for i := range tot {
		tot[i] = ct[i] + cn[i]/(beam[i]*beam[i])
	}

	// dx² converts pixel-convention spectra to continuum power and back.
	dx2 := g.Dx() * g.Dx()
	area := g.Area()
	noise := make([]float64, g.Size())
	for iL := 0; iL < n; iL++ {
		for jL := 0; jL < n; jL++ {
			L := g.Index(iL, jL)
			Lx, Ly := g.Wavenumber(L)
			if Lx == 0 && Ly == 0 {
				noise[L] = math.Inf(1)
				continue
			}
			var sum float64
			for il := 0; il < n; il++ {
				for jl := 0; jl < n; jl++ {
					l := g.Index(il, jl)
					m := g.Index(iL-il, jL-jl)
					lx, ly := g.Wavenumber(l)
					mx, my := g.Wavenumber(m)
					resp := (Lx*lx+Ly*ly)*ct[l] + (Lx*mx+Ly*my)*ct[m]
					term := resp * resp / (2 * tot[l] * tot[m])
					if !math.IsNaN(term) && !math.IsInf(term, 0) {
						sum += term
					}
				}
			}
			if sum == 0 {
				noise[L] = math.Inf(1)
				continue
			}
			noise[L] = area / sum / dx2
		}
	}
	return field.NewDiagonal(g, field.Fourier, noise)
}
