package export

import (
	"math"
	"strings"
	"testing"
)

func TestMapToSVG(t *testing.T) {
	svg := MapToSVG([][]float64{{-2, 0}, {2, math.NaN()}}, 10)
	if !strings.HasPrefix(svg, "<?xml") || !strings.HasSuffix(svg, "</svg>") {
		t.Fatal("expected a complete svg document")
	}
	if got := strings.Count(svg, "<rect"); got != 4 {
		t.Errorf("expected 4 cells, got %d", got)
	}
	for _, color := range []string{"#0000ff", "#ffffff", "#ff0000", "#808080"} {
		if !strings.Contains(svg, color) {
			t.Errorf("missing color %s", color)
		}
	}
	if !strings.Contains(svg, `width="20" height="20"`) {
		t.Error("expected a 20x20 image")
	}
	if MapToSVG(nil, 10) != "" {
		t.Error("expected empty output for no rows")
	}
}

func TestDiverging(t *testing.T) {
	cases := map[float64]string{-1: "#0000ff", -0.5: "#8080ff", 0: "#ffffff", 0.5: "#ff8080", 3: "#ff0000"}
	for v, want := range cases {
		if got := diverging(v); got != want {
			t.Errorf("diverging(%g) = %s, want %s", v, got, want)
		}
	}
}

func TestTraceToSVG(t *testing.T) {
	svg := TraceToSVG([]float64{-10, -5, math.NaN(), -4}, 100, 50, "#00ff00")
	if got := strings.Count(svg, " L"); got != 2 {
		t.Errorf("expected 3 points, got %d segments", got)
	}
	if !strings.Contains(svg, `stroke="#00ff00"`) {
		t.Error("missing stroke color")
	}
	if TraceToSVG([]float64{1}, 10, 10, "#fff") != "" {
		t.Error("a single point should not render")
	}
}
