package optim

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/san-kum/lenseflow/internal/config"
	"github.com/san-kum/lenseflow/internal/experiment"
	"github.com/san-kum/lenseflow/internal/metrics"
)

// ExperimentRunner simulates and reconstructs each configuration. Besides the
// trace metrics the summary carries final_lnp and correlation, the mean
// finite band correlation with the true potential.
func ExperimentRunner(logger *zap.Logger) Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, cfg *config.Config) (map[string]float64, error) {
		e := experiment.New(cfg, logger)
		if err := e.Setup(ctx); err != nil {
			return nil, err
		}
		out, err := e.Run(ctx, nil)
		if err != nil {
			return nil, err
		}
		summary := metrics.Summarize(out.Result.Trace)
		summary["final_lnp"] = out.Result.Trace[len(out.Result.Trace)-1].LnP
		summary["correlation"] = finiteMean(out.Correlation)
		return summary, nil
	}
}

func finiteMean(v []float64) float64 {
	var sum float64
	n := 0
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		sum += x
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
