package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/lenseflow/internal/optim"
)

func sweep(cmd *cobra.Command, args []string) error {
	if len(sweepParams) == 0 {
		return fmt.Errorf("at least one --param is required (known: %s)", strings.Join(optim.ParamNames(), ", "))
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	names := make([]string, len(sweepParams))
	ranges := make([][]float64, len(sweepParams))
	for i, p := range sweepParams {
		if names[i], ranges[i], err = parseParam(p); err != nil {
			return err
		}
	}
	gs, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}
	gs.Maximize = !sweepMinimize

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	logger.Info("sweep started", zap.Strings("params", names), zap.Int("points", gs.Size()), zap.String("metric", sweepMetric))
	trials, best, err := gs.Search(ctx, cfg, optim.ExperimentRunner(logger.Named("sweep")), sweepMetric)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(names, "\t"))+"\t"+sweepMetric+"\t")
	for i, tr := range trials {
		cells := make([]string, 0, len(names)+2)
		for _, name := range names {
			cells = append(cells, strconv.FormatFloat(tr.Params[name], 'g', 4, 64))
		}
		switch {
		case tr.Err != nil:
			cells = append(cells, "error: "+tr.Err.Error(), "")
		case i == best:
			cells = append(cells, fmt.Sprintf("%.4g", tr.Score), "best")
		default:
			cells = append(cells, fmt.Sprintf("%.4g", tr.Score), "")
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if best < 0 {
		return fmt.Errorf("no grid point produced %s", sweepMetric)
	}
	if ctx.Err() != nil {
		fmt.Println("interrupted, sweep incomplete")
	}
	return nil
}

// parseParam reads name=v1,v2,...
func parseParam(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" || list == "" {
		return "", nil, fmt.Errorf("invalid --param %q, want name=v1,v2", s)
	}
	var values []float64
	for _, field := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return "", nil, fmt.Errorf("invalid --param %q: %w", s, err)
		}
		values = append(values, v)
	}
	return name, values, nil
}
