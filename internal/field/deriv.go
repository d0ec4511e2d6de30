package field

// Spectral derivatives on raw pixel slices. These are the hot path of the
// flow right-hand sides and avoid the Field wrappers.

// Gradient returns (∂x u, ∂y u).
func (g *Grid) Gradient(u []float64) ([]float64, []float64) {
	return g.gradientCoef(g.forward(u))
}

// Hessian returns (∂x∂x u, ∂x∂y u, ∂y∂y u).
func (g *Grid) Hessian(u []float64) ([]float64, []float64, []float64) {
	return g.hessianCoef(g.forward(u))
}

// Divergence returns ∂x ax + ∂y ay.
func (g *Grid) Divergence(ax, ay []float64) []float64 {
	cx := g.forward(ax)
	cy := g.forward(ay)
	n := g.n
	for i := 0; i < n; i++ {
		ky := g.ky[i]
		for j := 0; j < n; j++ {
			idx := i*n + j
			cx[idx] = complex(0, g.kx[j])*cx[idx] + complex(0, ky)*cy[idx]
		}
	}
	return g.inverse(cx)
}

// HessianDivergence returns ∂x∂x bxx + ∂x∂y bxy + ∂y∂y byy. Pass the sum of
// both off-diagonal components of a non-symmetric tensor as bxy.
func (g *Grid) HessianDivergence(bxx, bxy, byy []float64) []float64 {
	cxx := g.forward(bxx)
	cxy := g.forward(bxy)
	cyy := g.forward(byy)
	n := g.n
	for i := 0; i < n; i++ {
		ky := g.ky[i]
		for j := 0; j < n; j++ {
			kx := g.kx[j]
			idx := i*n + j
			cxx[idx] = complex(-kx*kx, 0)*cxx[idx] + complex(-kx*ky, 0)*cxy[idx] + complex(-ky*ky, 0)*cyy[idx]
		}
	}
	return g.inverse(cxx)
}

func (g *Grid) gradientCoef(c []complex128) ([]float64, []float64) {
	n := g.n
	cx := make([]complex128, len(c))
	cy := make([]complex128, len(c))
	for i := 0; i < n; i++ {
		ky := g.ky[i]
		for j := 0; j < n; j++ {
			idx := i*n + j
			cx[idx] = complex(0, g.kx[j]) * c[idx]
			cy[idx] = complex(0, ky) * c[idx]
		}
	}
	return g.inverse(cx), g.inverse(cy)
}

func (g *Grid) hessianCoef(c []complex128) ([]float64, []float64, []float64) {
	n := g.n
	cxx := make([]complex128, len(c))
	cxy := make([]complex128, len(c))
	cyy := make([]complex128, len(c))
	for i := 0; i < n; i++ {
		ky := g.ky[i]
		for j := 0; j < n; j++ {
			kx := g.kx[j]
			idx := i*n + j
			cxx[idx] = complex(-kx*kx, 0) * c[idx]
			cxy[idx] = complex(-kx*ky, 0) * c[idx]
			cyy[idx] = complex(-ky*ky, 0) * c[idx]
		}
	}
	return g.inverse(cxx), g.inverse(cxy), g.inverse(cyy)
}
