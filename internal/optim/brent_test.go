package optim

import (
	"errors"
	"math"
	"testing"
)

func TestMaximizeBounded(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(float64) float64
		lo, hi float64
		want   float64
	}{
		{"parabola", func(x float64) float64 { return -(x - 0.3) * (x - 0.3) }, 0, 1, 0.3},
		{"quartic", func(x float64) float64 { return -math.Pow(x-0.12, 4) + 2 }, 0, 0.5, 0.12},
		{"cosine", func(x float64) float64 { return math.Cos(x - 1) }, -1, 2, 1},
		{"upper edge", func(x float64) float64 { return x }, 0, 0.5, 0.5},
		{"lower edge", func(x float64) float64 { return -x }, 0, 0.5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := MaximizeBounded(func(x float64) (float64, error) { return tt.fn(x), nil }, tt.lo, tt.hi, Options{Tol: 1e-6})
			if err != nil {
				t.Fatal(err)
			}
			if !res.Converged {
				t.Error("search did not converge")
			}
			if res.X < tt.lo || res.X > tt.hi {
				t.Errorf("X = %g outside [%g, %g]", res.X, tt.lo, tt.hi)
			}
			tol := 1e-5
			if tt.name == "quartic" {
				tol = 1e-2 // flat maximum
			}
			if math.Abs(res.X-tt.want) > tol {
				t.Errorf("X = %g, want %g", res.X, tt.want)
			}
			if res.F != tt.fn(res.X) {
				t.Errorf("F = %g, fn(X) = %g", res.F, tt.fn(res.X))
			}
		})
	}
}

func TestMaximizeBounded_Budget(t *testing.T) {
	calls := 0
	fn := func(x float64) (float64, error) {
		calls++
		return math.Sin(3 * x), nil
	}
	res, err := MaximizeBounded(fn, 0, 1, Options{Tol: 1e-12, MaxIter: 3})
	if err != nil {
		t.Fatal(err)
	}
	if res.Converged {
		t.Error("three iterations cannot reach 1e-12")
	}
	if res.Evaluations != calls || calls != 4 {
		t.Errorf("expected 4 evaluations, got %d (counted %d)", calls, res.Evaluations)
	}
}

func TestMaximizeBounded_Errors(t *testing.T) {
	ok := func(x float64) (float64, error) { return x, nil }
	for _, b := range [][2]float64{{1, 1}, {1, 0}, {0, math.Inf(1)}, {math.NaN(), 1}} {
		if _, err := MaximizeBounded(ok, b[0], b[1], Options{}); !errors.Is(err, ErrInvalidBracket) {
			t.Errorf("[%g, %g]: expected ErrInvalidBracket, got %v", b[0], b[1], err)
		}
	}

	boom := errors.New("boom")
	fail := func(x float64) (float64, error) {
		if x > 0.5 {
			return 0, boom
		}
		return -x, nil
	}
	if _, err := MaximizeBounded(fail, 0, 1, Options{}); !errors.Is(err, boom) {
		t.Errorf("objective error should propagate, got %v", err)
	}
}

func TestMaximizeBounded_NaNIsWorst(t *testing.T) {
	fn := func(x float64) (float64, error) {
		if x > 0.6 {
			return math.NaN(), nil
		}
		return -(x - 0.4) * (x - 0.4), nil
	}
	res, err := MaximizeBounded(fn, 0, 1, Options{Tol: 1e-6})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.X-0.4) > 1e-4 {
		t.Errorf("X = %g, want 0.4", res.X)
	}
}
