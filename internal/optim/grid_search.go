package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/lenseflow/internal/config"
)

var ErrUnknownParam = errors.New("optim: unknown parameter")

// Setter writes one swept value into a configuration.
type Setter func(cfg *config.Config, v float64)

// Params are the knobs a sweep can vary.
var Params = map[string]Setter{
	"alpha_max":      func(c *config.Config, v float64) { c.Optimizer.AlphaMax = v },
	"noise":          func(c *config.Config, v float64) { c.Noise.Level = v },
	"flow_steps":     func(c *config.Config, v float64) { c.Integrator.Steps = int(math.Round(v)) },
	"mix_variance":   func(c *config.Config, v float64) { c.Signal.MixVariance = v },
	"deflection_rms": func(c *config.Config, v float64) { c.Potential.DeflectionRMS = v },
	"steps":          func(c *config.Config, v float64) { c.Optimizer.Steps = int(math.Round(v)) },
}

func ParamNames() []string {
	names := make([]string, 0, len(Params))
	for name := range Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Runner reconstructs cfg and returns its summary values by name.
type Runner func(ctx context.Context, cfg *config.Config) (map[string]float64, error)

// Trial is one grid point. Err is set when the point could not be scored.
type Trial struct {
	Params  map[string]float64
	Summary map[string]float64
	Score   float64
	Err     error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	// Maximize picks the largest score instead of the smallest.
	Maximize bool
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, fmt.Errorf("optim: %d parameters for %d ranges", len(params), len(ranges))
	}
	for i, name := range params {
		if _, ok := Params[name]; !ok {
			return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownParam, name, ParamNames())
		}
		if len(ranges[i]) == 0 {
			return nil, fmt.Errorf("optim: empty range for %s", name)
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Size is the number of grid points.
func (g *GridSearch) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Search runs every grid point on a copy of base and returns all trials in
// grid order along with the index of the best one, -1 when no point scored.
// Points whose configuration is invalid or whose run fails keep their error
// and do not stop the sweep; a cancelled context does.
func (g *GridSearch) Search(ctx context.Context, base *config.Config, run Runner, metricName string) ([]Trial, int, error) {
	var trials []Trial
	best := -1
	err := g.searchRecursive(ctx, 0, map[string]float64{}, func(params map[string]float64) {
		trial := g.evaluate(ctx, base, params, run, metricName)
		trials = append(trials, trial)
		if trial.Err == nil && (best < 0 || g.better(trial.Score, trials[best].Score)) {
			best = len(trials) - 1
		}
	})
	return trials, best, err
}

func (g *GridSearch) better(a, b float64) bool {
	if g.Maximize {
		return a > b
	}
	return a < b
}

func (g *GridSearch) evaluate(ctx context.Context, base *config.Config, params map[string]float64, run Runner, metricName string) Trial {
	trial := Trial{Params: params}
	cfg := base.Clone()
	for name, v := range params {
		Params[name](cfg, v)
	}
	if err := cfg.Validate(); err != nil {
		trial.Err = err
		return trial
	}
	summary, err := run(ctx, cfg)
	if err != nil {
		trial.Err = err
		return trial
	}
	trial.Summary = summary
	score, ok := summary[metricName]
	switch {
	case !ok:
		trial.Err = fmt.Errorf("optim: run has no metric %q", metricName)
	case math.IsNaN(score):
		trial.Err = fmt.Errorf("optim: metric %q is NaN", metricName)
	default:
		trial.Score = score
	}
	return trial
}

func (g *GridSearch) searchRecursive(ctx context.Context, depth int, current map[string]float64, visit func(map[string]float64)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		visit(current)
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, visit); err != nil {
			return err
		}
	}
	return nil
}
