package lenseflow

import (
	"math"
	"testing"

	"github.com/san-kum/lenseflow/internal/field"
)

func TestJacobian_FiniteDifference(t *testing.T) {
	g, rng := setup(t, 11)
	phi := smooth(g, rng, 0.3)
	f := smooth(g, rng, 1)
	df := smooth(g, rng, 1)
	dphi := smooth(g, rng, 0.3)
	integ := rk4(10)

	for _, ends := range [][2]float64{{0, 1}, {1, 0}, {0.25, 0.75}} {
		l := New(phi, integ).Between(ends[0], ends[1])
		fOut, jac, err := l.Jacobian(f, df, dphi)
		if err != nil {
			t.Fatal(err)
		}
		lensed, err := l.Apply(f)
		if err != nil {
			t.Fatal(err)
		}
		if d := relDiff(fOut, lensed); d > 1e-12 {
			t.Errorf("%v: Jacobian base output differs from Apply by %g", ends, d)
		}

		eps := 1e-5
		plus, err := New(phi.AddScaled(eps, dphi), integ).Between(ends[0], ends[1]).Apply(f.AddScaled(eps, df))
		if err != nil {
			t.Fatal(err)
		}
		minus, err := New(phi.AddScaled(-eps, dphi), integ).Between(ends[0], ends[1]).Apply(f.AddScaled(-eps, df))
		if err != nil {
			t.Fatal(err)
		}
		fd := plus.Sub(minus).Scale(1 / (2 * eps))
		if d := relDiff(jac, fd); d > 1e-6 {
			t.Errorf("%v: Jacobian differs from finite difference by %g", ends, d)
		}
	}
}

func TestJacobian_PotentialOnly(t *testing.T) {
	g, rng := setup(t, 12)
	f := smooth(g, rng, 1)
	dphi := smooth(g, rng, 0.3)

	// around ϕ = 0 the derivative along δϕ is the first-order deflection δϕ·∇f
	l := New(field.Zero(g), rk4(10))
	_, jac, err := l.Jacobian(f, field.Zero(g), dphi)
	if err != nil {
		t.Fatal(err)
	}
	fx, fy := f.Gradient()
	px, py := dphi.Gradient()
	want := px.Mul(fx).Add(py.Mul(fy))
	if d := relDiff(jac, want); d > 1e-10 {
		t.Errorf("Jacobian at zero potential differs from ∇δϕ·∇f by %g", d)
	}
}

func TestAdjointJacobian_DotProduct(t *testing.T) {
	g, rng := setup(t, 13)
	phi := smooth(g, rng, 0.3)
	f := smooth(g, rng, 1)
	df := smooth(g, rng, 1)
	dphi := smooth(g, rng, 0.3)
	ybar := smooth(g, rng, 1)

	for _, ends := range [][2]float64{{0, 1}, {1, 0}} {
		l := New(phi, rk4(16)).Between(ends[0], ends[1])
		fOut, jac, err := l.Jacobian(f, df, dphi)
		if err != nil {
			t.Fatal(err)
		}
		fbar, phibar, err := l.AdjointJacobian(fOut, ybar, field.Zero(g))
		if err != nil {
			t.Fatal(err)
		}

		lhs := jac.Dot(ybar)
		rhs := df.Dot(fbar) + dphi.Dot(phibar)
		if math.Abs(lhs-rhs) > 1e-4*math.Abs(lhs) {
			t.Errorf("%v: ⟨J δ, ȳ⟩ = %g, ⟨δ, Jᵀȳ⟩ = %g", ends, lhs, rhs)
		}
	}
}

func TestAdjointJacobian_ZeroPotential(t *testing.T) {
	g, rng := setup(t, 14)
	f := smooth(g, rng, 1)
	ybar := smooth(g, rng, 1)
	l := New(field.Zero(g), rk4(8))

	fbar, phibar, err := l.AdjointJacobian(f, ybar, field.Zero(g))
	if err != nil {
		t.Fatal(err)
	}
	if d := relDiff(fbar, ybar); d > 1e-12 {
		t.Errorf("field cotangent should pass through a zero potential, differs by %g", d)
	}
	// ϕ̄ = −∂ᵢ(ȳ ∂ᵢf) over a unit interval
	fx, fy := f.Gradient()
	want := field.Divergence(fx.Mul(ybar), fy.Mul(ybar)).Scale(-1)
	if d := relDiff(phibar, want); d > 1e-10 {
		t.Errorf("potential cotangent at zero potential differs by %g", d)
	}
}

func TestAdjointJacobian_AccumulatesPhiBar(t *testing.T) {
	g, rng := setup(t, 15)
	phi := smooth(g, rng, 0.3)
	f := smooth(g, rng, 1)
	ybar := smooth(g, rng, 1)
	seed := smooth(g, rng, 1)
	l := New(phi, rk4(8))

	_, base, err := l.AdjointJacobian(f, ybar, field.Zero(g))
	if err != nil {
		t.Fatal(err)
	}
	_, shifted, err := l.AdjointJacobian(f, ybar, seed)
	if err != nil {
		t.Fatal(err)
	}
	if d := relDiff(shifted.Sub(base), seed); d > 1e-10 {
		t.Errorf("initial ϕ̄ should be carried through unchanged, differs by %g", d)
	}
}

func TestJacobian_EqualEndpoints(t *testing.T) {
	g, rng := setup(t, 16)
	f, df := smooth(g, rng, 1), smooth(g, rng, 1)
	l := New(smooth(g, rng, 0.3), rk4(4)).Between(1, 1)

	fOut, jac, err := l.Jacobian(f, df, smooth(g, rng, 0.3))
	if err != nil {
		t.Fatal(err)
	}
	if fOut != f || jac != df {
		t.Error("equal endpoints should return the inputs unchanged")
	}
}
