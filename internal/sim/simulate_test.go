package sim

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/san-kum/lenseflow/internal/config"
	"github.com/san-kum/lenseflow/internal/field"
	"github.com/san-kum/lenseflow/internal/integrators"
	"github.com/san-kum/lenseflow/internal/lenseflow"
	"github.com/san-kum/lenseflow/internal/ode"
)

func rk4() ode.Integrator { return integrators.NewFixedStep(integrators.NewRK4(), 4) }

func TestSimulate_NoiseResidual(t *testing.T) {
	cfg := config.GetPreset("small")
	cfg.Signal.LensedDraws = 0
	ds, truth, err := Simulate(context.Background(), cfg, rand.New(rand.NewSource(1)), rk4)
	if err != nil {
		t.Fatal(err)
	}
	if ds.Grid.N() != cfg.Grid.N {
		t.Fatalf("grid is %d, want %d", ds.Grid.N(), cfg.Grid.N)
	}
	if ds.CfLensed != nil {
		t.Error("no lensed draws requested")
	}

	lensed, err := lenseflow.New(truth.Phi, rk4()).Apply(truth.F)
	if err != nil {
		t.Fatal(err)
	}
	obs, err := ds.Observe(lensed)
	if err != nil {
		t.Fatal(err)
	}
	r := ds.Data.Sub(obs)
	variance := r.Dot(r) / float64(ds.Grid.Size())
	want := cfg.Noise.Level * cfg.Noise.Level
	if variance < 0.7*want || variance > 1.3*want {
		t.Errorf("residual variance %g, noise variance %g", variance, want)
	}
}

func TestSimulate_Reproducible(t *testing.T) {
	cfg := config.GetPreset("masked")
	cfg.Grid.N = 16
	cfg.Signal.LensedDraws = 3

	run := func(seed int64) *field.Field {
		ds, _, err := Simulate(context.Background(), cfg, rand.New(rand.NewSource(seed)), rk4)
		if err != nil {
			t.Fatal(err)
		}
		if ds.CfLensed == nil {
			t.Fatal("expected a lensed spectrum")
		}
		return ds.Data
	}
	a, b, c := run(7), run(7), run(8)
	if d := a.Sub(b).Norm(); d != 0 {
		t.Errorf("same seed gave data differing by %g", d)
	}
	if a.Sub(c).Norm() == 0 {
		t.Error("different seeds gave identical data")
	}
}

func TestSimulate_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Grid.N = 3
	_, _, err := Simulate(context.Background(), cfg, rand.New(rand.NewSource(1)), rk4)
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestPotentialSpectrum_Deflection(t *testing.T) {
	g := field.MustGrid(16, 0.5)
	c := PotentialSpectrum(g, config.PotentialConfig{DeflectionRMS: 0.4, Knee: 0.7})
	var mean float64
	for idx, v := range c.Values() {
		k := g.K(idx)
		mean += k * k * v
	}
	mean /= float64(g.Size())
	if math.Abs(mean-0.16) > 1e-12 {
		t.Errorf("mean k²Cϕ = %g, want 0.16", mean)
	}
}

func TestBeam(t *testing.T) {
	g := field.MustGrid(8, 1)
	if _, ok := Beam(g, 0).(field.Identity); !ok {
		t.Error("zero width should give the identity")
	}
	b, ok := Beam(g, 2).(*field.Diagonal)
	if !ok || b.Basis() != field.Fourier {
		t.Fatal("expected a Fourier diagonal beam")
	}
	v := b.Values()
	if v[0] != 1 {
		t.Errorf("beam at k=0 is %g", v[0])
	}
	for idx := 1; idx < len(v); idx++ {
		if v[idx] >= 1 || v[idx] <= 0 {
			t.Errorf("beam at k=%g is %g", g.K(idx), v[idx])
		}
	}
}

func TestMask(t *testing.T) {
	g := field.MustGrid(8, 1)
	if _, ok := Mask(g, 0, 2, nil).(field.Identity); !ok {
		t.Error("no holes should give the identity")
	}
	m, ok := Mask(g, 1, 3, rand.New(rand.NewSource(2))).(*field.Diagonal)
	if !ok {
		t.Fatal("expected a pixel diagonal mask")
	}
	zeros := 0
	for _, v := range m.Values() {
		if v == 0 {
			zeros++
		}
	}
	if zeros != 9 {
		t.Errorf("expected 9 masked pixels, got %d", zeros)
	}
}

func TestEnsemble_Deterministic(t *testing.T) {
	g := field.MustGrid(8, 1)
	cf := SignalSpectrum(g, config.SignalConfig{Amplitude: 1, Knee: 1, Damping: 2.5})
	cphi := PotentialSpectrum(g, config.PotentialConfig{DeflectionRMS: 0.2, Knee: 0.5})
	ens := NewEnsemble(cf, cphi, rk4, 4)

	a, err := ens.LensedSpectrum(context.Background(), rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatal(err)
	}
	b, err := ens.LensedSpectrum(context.Background(), rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatal(err)
	}
	av, bv := a.Values(), b.Values()
	for i := range av {
		if av[i] != bv[i] {
			t.Fatalf("mode %d: %g != %g", i, av[i], bv[i])
		}
		if !(av[i] > 0) {
			t.Errorf("mode %d: non-positive lensed power %g", i, av[i])
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ens.Lensed(ctx, rand.New(rand.NewSource(3))); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
