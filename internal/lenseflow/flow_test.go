package lenseflow

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/san-kum/lenseflow/internal/field"
	"github.com/san-kum/lenseflow/internal/integrators"
	"github.com/san-kum/lenseflow/internal/ode"
)

// smooth returns a random band-limited field with the given pixel RMS.
func smooth(g *field.Grid, rng *rand.Rand, rms float64) *field.Field {
	d := field.NewIsotropic(g, func(k float64) float64 { return math.Exp(-k * k) })
	f, _ := d.Apply(field.WhiteNoise(g, rng))
	f = f.Map()
	return f.Scale(rms * math.Sqrt(float64(g.Size())) / f.Norm())
}

func setup(t *testing.T, seed int64) (*field.Grid, *rand.Rand) {
	t.Helper()
	g, err := field.NewGrid(8, 1)
	if err != nil {
		t.Fatal(err)
	}
	return g, rand.New(rand.NewSource(seed))
}

func rk4(steps int) ode.TrajectoryIntegrator {
	return integrators.NewFixedStep(integrators.NewRK4(), steps)
}

func relDiff(a, b *field.Field) float64 {
	return a.Sub(b).Norm() / math.Max(b.Norm(), 1e-300)
}

func TestFlow_ZeroPotentialIsIdentity(t *testing.T) {
	g, rng := setup(t, 1)
	f := field.WhiteNoise(g, rng)
	flow := New(field.Zero(g), rk4(4))

	for _, ends := range [][2]float64{{0, 1}, {1, 0}, {0.3, 0.7}, {-1, 2}} {
		l := flow.Between(ends[0], ends[1])
		if !l.IsIdentity() {
			t.Fatalf("flow %v over zero potential should be the identity", ends)
		}
		out, err := l.Apply(f)
		if err != nil {
			t.Fatal(err)
		}
		if d := relDiff(out, f); d != 0 {
			t.Errorf("L(0)%v f differs from f by %g", ends, d)
		}
		adj, err := l.ApplyAdjoint(f)
		if err != nil {
			t.Fatal(err)
		}
		if d := relDiff(adj, f); d != 0 {
			t.Errorf("L(0)%vᵀ f differs from f by %g", ends, d)
		}
	}
}

func TestFlow_ZeroPotentialWithoutShortCut(t *testing.T) {
	g, rng := setup(t, 2)
	f := field.WhiteNoise(g, rng)

	// a constant potential has zero gradient but is not detected as zero, so
	// the integrator actually runs
	phi := onesLike(g)
	flow := New(phi, rk4(4))
	if flow.IsIdentity() {
		t.Fatal("constant potential should not short-circuit")
	}
	out, err := flow.Apply(f)
	if err != nil {
		t.Fatal(err)
	}
	if d := relDiff(out, f); d > 1e-12 {
		t.Errorf("constant potential changed the field by %g", d)
	}
}

func onesLike(g *field.Grid) *field.Field {
	pix := make([]float64, g.Size())
	for i := range pix {
		pix[i] = 1
	}
	f, _ := field.FromPixels(g, pix)
	return f
}

func TestFlow_EqualEndpoints(t *testing.T) {
	g, rng := setup(t, 3)
	phi := smooth(g, rng, 0.3)
	f := field.WhiteNoise(g, rng)

	l := New(phi, rk4(4)).Between(0.5, 0.5)
	out, err := l.Apply(f)
	if err != nil {
		t.Fatal(err)
	}
	if out != f {
		t.Error("equal endpoints should return the input unchanged")
	}
}

func TestFlow_RoundTrip(t *testing.T) {
	g, rng := setup(t, 4)
	phi := smooth(g, rng, 0.3)
	f := smooth(g, rng, 1)

	tests := []struct {
		name  string
		integ ode.Integrator
		tol   float64
	}{
		{"rk4", rk4(10), 1e-5},
		{"dopri5", integrators.NewDormandPrince(1e-8, 1e-10, 1e-6, 5000), 1e-5},
		{"euler", integrators.NewFixedStep(integrators.NewEuler(), 200), 5e-2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(phi, tt.integ)
			lensed, err := l.Apply(f)
			if err != nil {
				t.Fatal(err)
			}
			if relDiff(lensed, f) < 1e-3 {
				t.Fatal("potential too weak to test anything")
			}
			back, err := l.ApplyInverse(lensed)
			if err != nil {
				t.Fatal(err)
			}
			if d := relDiff(back, f); d > tt.tol {
				t.Errorf("L⁻¹ L f differs from f by %g (tol %g)", d, tt.tol)
			}
		})
	}
}

func TestFlow_InverseIsReversedFlow(t *testing.T) {
	g, rng := setup(t, 5)
	phi := smooth(g, rng, 0.3)
	f := smooth(g, rng, 1)
	l := New(phi, rk4(10))

	a, err := l.ApplyInverse(f)
	if err != nil {
		t.Fatal(err)
	}
	b, err := l.Inverse().Apply(f)
	if err != nil {
		t.Fatal(err)
	}
	if d := relDiff(a, b); d != 0 {
		t.Errorf("ApplyInverse and Inverse().Apply differ by %g", d)
	}
}

func TestFlow_AdjointConsistency(t *testing.T) {
	g, rng := setup(t, 6)
	phi := smooth(g, rng, 0.3)
	f := smooth(g, rng, 1)
	h := smooth(g, rng, 1)

	for _, ends := range [][2]float64{{0, 1}, {1, 0}} {
		l := New(phi, rk4(16)).Between(ends[0], ends[1])

		lf, err := l.Apply(f)
		if err != nil {
			t.Fatal(err)
		}
		lth, err := l.ApplyAdjoint(h)
		if err != nil {
			t.Fatal(err)
		}
		lhs, rhs := lf.Dot(h), f.Dot(lth)
		if math.Abs(lhs-rhs) > 1e-4*math.Abs(lhs) {
			t.Errorf("%v: ⟨Lf, g⟩ = %g, ⟨f, Lᵀg⟩ = %g", ends, lhs, rhs)
		}

		linv, err := l.ApplyInverse(f)
		if err != nil {
			t.Fatal(err)
		}
		linvt, err := l.ApplyInverseAdjoint(h)
		if err != nil {
			t.Fatal(err)
		}
		lhs, rhs = linv.Dot(h), f.Dot(linvt)
		if math.Abs(lhs-rhs) > 1e-4*math.Abs(lhs) {
			t.Errorf("%v: ⟨L⁻¹f, g⟩ = %g, ⟨f, L⁻ᵀg⟩ = %g", ends, lhs, rhs)
		}
	}
}

func TestFlow_Trajectory(t *testing.T) {
	g, rng := setup(t, 7)
	phi := smooth(g, rng, 0.3)
	f := smooth(g, rng, 1)
	l := New(phi, integrators.NewRK45())

	tr, err := l.Trajectory(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Times) < 2 || tr.Times[0] != 0 || tr.Times[len(tr.Times)-1] != 1 {
		t.Fatalf("unexpected trajectory times %v", tr.Times)
	}
	if relDiff(tr.Fields[0], f) != 0 {
		t.Error("trajectory should start at the input field")
	}
	final, err := l.Apply(f)
	if err != nil {
		t.Fatal(err)
	}
	if d := relDiff(tr.Final(), final); d > 1e-12 {
		t.Errorf("trajectory end differs from Apply by %g", d)
	}
}

type finalOnly struct{ ode.Integrator }

func TestFlow_TrajectoryUnsupported(t *testing.T) {
	g, rng := setup(t, 8)
	l := New(smooth(g, rng, 0.3), finalOnly{rk4(4)})
	if _, err := l.Trajectory(field.Zero(g)); !errors.Is(err, ErrNoTrajectory) {
		t.Errorf("expected ErrNoTrajectory, got %v", err)
	}
}

func TestFlow_NonConvergence(t *testing.T) {
	g, rng := setup(t, 9)
	phi := smooth(g, rng, 0.3)
	f := field.WhiteNoise(g, rng)
	l := New(phi, integrators.NewDormandPrince(1e-12, 1e-14, 1e-6, 2))

	_, err := l.Apply(f)
	if !errors.Is(err, ode.ErrNonConvergence) {
		t.Fatalf("expected ErrNonConvergence, got %v", err)
	}
	var ie *ode.IntegrationError
	if !errors.As(err, &ie) {
		t.Errorf("expected *ode.IntegrationError, got %T", err)
	}
}

func TestFlow_ShapeMismatch(t *testing.T) {
	g, rng := setup(t, 10)
	other, _ := field.NewGrid(4, 1)
	l := New(smooth(g, rng, 0.3), rk4(4))

	if _, err := l.Apply(field.Zero(other)); !errors.Is(err, field.ErrShapeMismatch) {
		t.Errorf("Apply: expected ErrShapeMismatch, got %v", err)
	}
	if _, _, err := l.AdjointJacobian(field.Zero(g), field.Zero(other), field.Zero(g)); !errors.Is(err, field.ErrShapeMismatch) {
		t.Errorf("AdjointJacobian: expected ErrShapeMismatch, got %v", err)
	}
}
