package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/lenseflow/internal/field"
	"github.com/san-kum/lenseflow/internal/jointmax"
	"github.com/san-kum/lenseflow/internal/wiener"
)

func testTrace() []jointmax.Record {
	dir := field.Zero(field.MustGrid(4, 1))
	return []jointmax.Record{
		{Step: 1, LnPBefore: -50, LnP: -40, Alpha: 0.2, Direction: dir, Solver: &wiener.History{Iterations: 10, Converged: true}},
		{Step: 2, LnPBefore: -38, LnP: -38, Alpha: 0, Direction: dir, Solver: &wiener.History{Iterations: 4, Converged: false}},
		{Step: 3, LnPBefore: -37, LnP: -37, Solver: &wiener.History{Iterations: 1, Converged: true}},
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize(testTrace())
	want := map[string]float64{
		"lnp_gain":      13,
		"acceptance":    0.5,
		"cg_iterations": 5,
		"cg_converged":  2.0 / 3,
	}
	for name, w := range want {
		if math.Abs(got[name]-w) > 1e-12 {
			t.Errorf("%s: got %g, want %g", name, got[name], w)
		}
	}
}

func TestMetricReset(t *testing.T) {
	for _, m := range Default() {
		for _, rec := range testTrace() {
			m.Observe(rec)
		}
		m.Reset()
		empty := m.Value()
		if m.Name() == "cg_converged" {
			if empty != 1 {
				t.Errorf("%s: expected 1 after reset, got %g", m.Name(), empty)
			}
			continue
		}
		if empty != 0 {
			t.Errorf("%s: expected 0 after reset, got %g", m.Name(), empty)
		}
	}
}

func TestSummarize_Empty(t *testing.T) {
	got := Summarize(nil)
	if got["lnp_gain"] != 0 || got["acceptance"] != 0 {
		t.Errorf("unexpected values for an empty trace: %v", got)
	}
}
