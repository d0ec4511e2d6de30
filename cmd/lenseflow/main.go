package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/san-kum/lenseflow/internal/analysis"
	"github.com/san-kum/lenseflow/internal/config"
	"github.com/san-kum/lenseflow/internal/experiment"
	"github.com/san-kum/lenseflow/internal/export"
	"github.com/san-kum/lenseflow/internal/jointmax"
	"github.com/san-kum/lenseflow/internal/metrics"
	"github.com/san-kum/lenseflow/internal/optim"
	"github.com/san-kum/lenseflow/internal/storage"
	"github.com/san-kum/lenseflow/internal/viz"
)

var (
	dataDir string
	verbose bool
	logger  *zap.Logger

	configFile string
	preset     string
	seed       int64
	gridN      int
	noise      float64
	steps      int
	integrator string
	flowSteps  int
	quasi      bool
	qeNoise    bool
	live       bool
	noSave     bool

	outputFile string
	mapName    string
	cellSize   float64
	checkSeed  int64

	sweepParams   []string
	sweepMetric   string
	sweepMinimize bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lenseflow",
		Short: "joint lensing and field reconstruction with LenseFlow",
		Long: `lenseflow simulates lensed, noisy and masked maps and reconstructs the
unlensed field and lensing potential jointly, alternating Wiener filter
field steps with line-searched potential steps.

Run without arguments to pick a preset and watch it run.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := zap.NewProductionConfig()
			if verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			logger, err = cfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: pickAndRun,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".lenseflow", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "simulate a dataset and reconstruct it",
		RunE:  runReconstruction,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().Int64Var(&seed, "seed", 0, "simulation seed")
	runCmd.Flags().IntVar(&gridN, "n", 0, "grid size")
	runCmd.Flags().Float64Var(&noise, "noise", 0, "white noise level per pixel")
	runCmd.Flags().IntVar(&steps, "steps", 0, "outer optimizer iterations")
	runCmd.Flags().StringVar(&integrator, "integrator", "", "flow integrator (euler, rk4, dopri5)")
	runCmd.Flags().IntVar(&flowSteps, "flow-steps", 0, "fixed integrator steps")
	runCmd.Flags().BoolVar(&quasi, "quasi-sample", false, "draw field steps from the conditional instead of its mean")
	runCmd.Flags().BoolVar(&qeNoise, "quadratic-noise", false, "precondition potential steps with the quadratic estimator noise")
	runCmd.Flags().BoolVar(&live, "live", false, "show live progress")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the run")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the optimizer trace of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	spectraCmd := &cobra.Command{
		Use:   "spectra [run_id]",
		Short: "compare the reconstructed potential spectrum with the truth",
		Args:  cobra.ExactArgs(1),
		RunE:  spectra,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run metadata, trace and maps to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file, stdout when empty")

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "render a stored map or the lnP trace as SVG",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}
	exportSVGCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file, stdout when empty")
	exportSVGCmd.Flags().StringVar(&mapName, "map", "phi", "what to render: phi, f, fmix or trace")
	exportSVGCmd.Flags().Float64Var(&cellSize, "cell", 8, "pixel size in svg units")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.ListPresets() {
				fmt.Printf("  %-8s %s\n", name, describePreset(name))
			}
			return nil
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "verify the flow, its adjoint and the posterior gradients",
		RunE:  selfCheck,
	}
	addConfigFlags(checkCmd)
	checkCmd.Flags().Int64Var(&checkSeed, "direction-seed", 1, "seed of the random test directions")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "grid search configuration knobs by a reconstruction summary",
		Example: `  lenseflow sweep --preset tiny --param alpha_max=0.1,0.3,0.5 --param noise=0.05,0.1
  lenseflow sweep --param flow_steps=2,4,8 --metric cg_iterations --minimize`,
		RunE: sweep,
	}
	addConfigFlags(sweepCmd)
	sweepCmd.Flags().StringArrayVar(&sweepParams, "param", nil, "name=v1,v2,... (repeatable; one of "+strings.Join(optim.ParamNames(), ", ")+")")
	sweepCmd.Flags().StringVar(&sweepMetric, "metric", "correlation", "summary value to rank by")
	sweepCmd.Flags().BoolVar(&sweepMinimize, "minimize", false, "rank by the smallest value")

	rootCmd.AddCommand(runCmd, listCmd, plotCmd, spectraCmd, exportCmd, exportJSONCmd, exportSVGCmd, presetsCmd, checkCmd, sweepCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "small", "preset configuration")
}

func describePreset(name string) string {
	cfg := config.GetPreset(name)
	if cfg == nil {
		return ""
	}
	var extras []string
	if cfg.Noise.MaskHoles > 0 {
		extras = append(extras, "masked")
	}
	if cfg.Optimizer.QuasiSample {
		extras = append(extras, "quasi-sample")
	}
	if cfg.Optimizer.QuadraticNoise {
		extras = append(extras, "qe preconditioner")
	}
	desc := fmt.Sprintf("n=%d noise=%.2g beam=%.2g integrator=%s steps=%d",
		cfg.Grid.N, cfg.Noise.Level, cfg.Noise.BeamFWHM, cfg.Integrator.Kind, cfg.Optimizer.Steps)
	if len(extras) > 0 {
		desc += " (" + strings.Join(extras, ", ") + ")"
	}
	return desc
}

// loadConfig starts from the preset, replaces it by the config file when
// given, then applies explicitly set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.GetPreset(preset)
	if cfg == nil {
		return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
	}
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("n") {
		cfg.Grid.N = gridN
	}
	if flags.Changed("noise") {
		cfg.Noise.Level = noise
	}
	if flags.Changed("steps") {
		cfg.Optimizer.Steps = steps
	}
	if flags.Changed("integrator") {
		cfg.Integrator.Kind = integrator
	}
	if flags.Changed("flow-steps") {
		cfg.Integrator.Steps = flowSteps
	}
	if flags.Changed("quasi-sample") {
		cfg.Optimizer.QuasiSample = quasi
	}
	if flags.Changed("quadratic-noise") {
		cfg.Optimizer.QuadraticNoise = qeNoise
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func pickAndRun(cmd *cobra.Command, args []string) error {
	name, err := viz.Pick("LENSEFLOW PRESETS", config.ListPresets(), describePreset)
	if err != nil {
		return err
	}
	if name == "" {
		return nil
	}
	cfg := config.GetPreset(name)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	out, err := runLive(ctx, cfg)
	if err != nil || out == nil {
		return err
	}
	return save(cfg, out)
}

func runReconstruction(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var out *experiment.Outcome
	if live {
		if out, err = runLive(ctx, cfg); err != nil || out == nil {
			return err
		}
	} else {
		e := experiment.New(cfg, logger)
		if err := e.Setup(ctx); err != nil {
			return err
		}
		if out, err = e.Run(ctx, nil); err != nil {
			return err
		}
		printOutcome(out)
	}

	if noSave {
		return nil
	}
	return save(cfg, out)
}

// runLive runs the reconstruction behind the progress view. A nil outcome
// with a nil error means the user quit early.
func runLive(ctx context.Context, cfg *config.Config) (*experiment.Outcome, error) {
	e := experiment.New(cfg, zap.NewNop())
	if err := e.Setup(ctx); err != nil {
		return nil, err
	}

	p := tea.NewProgram(viz.NewModel(cfg.Name, cfg.Optimizer.Steps), tea.WithAltScreen(), tea.WithContext(ctx))
	var out *experiment.Outcome
	go func() {
		var err error
		out, err = e.Run(ctx, func(rec jointmax.Record) { p.Send(viz.RecordMsg(rec)) })
		p.Send(viz.DoneMsg{Err: err})
	}()

	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return nil, err
	}
	m, ok := final.(viz.Model)
	if !ok || !m.Done() {
		fmt.Println("interrupted, run not saved")
		return nil, nil
	}
	if m.Err() != nil {
		return nil, m.Err()
	}
	printOutcome(out)
	return out, nil
}

func save(cfg *config.Config, out *experiment.Outcome) error {
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(cfg, out.Result, out.Correlation)
	if err != nil {
		return err
	}
	fmt.Printf("run saved: %s\n", runID)
	return nil
}

func printOutcome(out *experiment.Outcome) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tlnP\tΔlnP\tALPHA\tCG\tRESIDUAL")
	for _, rec := range out.Result.Trace {
		fmt.Fprintf(w, "%d\t%.4f\t%.4g\t%.4g\t%d\t%.3g\n",
			rec.Step, rec.LnP, rec.LnP-rec.LnPBefore, rec.Alpha, rec.Solver.Iterations, rec.Solver.Final())
	}
	w.Flush()

	summary := metrics.Summarize(out.Result.Trace)
	fmt.Println()
	for _, m := range metrics.Default() {
		fmt.Printf("%-14s %.4g\n", m.Name(), summary[m.Name()])
	}
	fmt.Printf("%-14s %s\n", "elapsed", out.Elapsed)
	fmt.Printf("%-14s %s\n", "correlation", formatBands(out.Correlation))
}

func formatBands(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		if math.IsNaN(x) {
			parts[i] = "-"
			continue
		}
		parts[i] = fmt.Sprintf("%.2f", x)
	}
	return strings.Join(parts, " ")
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIME\tN\tINTEG\tSTEPS\tMODE\tlnP")
	for _, run := range runs {
		mode := "max"
		if run.QuasiSample {
			mode = "sample"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\t%s\t%.4f\n",
			run.ID,
			run.Name,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.N,
			run.Integrator,
			run.Steps,
			mode,
			run.FinalLnP,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	trace, err := st.LoadTrace(runID)
	if err != nil {
		return err
	}
	if len(trace) < 2 {
		return fmt.Errorf("run %s has %d steps, nothing to plot", runID, len(trace))
	}

	fmt.Printf("run: %s (%s)\n", meta.ID, meta.Name)
	fmt.Printf("steps: %d\n\n", len(trace))

	series := []struct {
		caption string
		value   func(storage.TraceRow) float64
	}{
		{"lnP after each step", func(r storage.TraceRow) float64 { return r.LnP }},
		{"line search step α", func(r storage.TraceRow) float64 { return r.Alpha }},
		{"CG iterations", func(r storage.TraceRow) float64 { return float64(r.CGIterations) }},
	}
	for _, s := range series {
		data := make([]float64, len(trace))
		for i, r := range trace {
			data[i] = s.value(r)
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(s.caption),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

// spectra resimulates the stored run's dataset from its configuration and
// compares the stored potential with the truth band by band.
func spectra(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	if meta.Config == nil {
		return fmt.Errorf("run %s has no stored configuration", runID)
	}
	maps, err := st.LoadMaps(runID)
	if err != nil {
		return err
	}
	_, _, phi, err := maps.Fields()
	if err != nil {
		return err
	}

	e := experiment.New(meta.Config, logger)
	if err := e.Setup(cmd.Context()); err != nil {
		return err
	}
	prior, truth, recon, err := e.Spectra(phi)
	if err != nil {
		return err
	}
	corr, err := analysis.CrossCorrelation(phi, e.Truth().Phi, truth.Bands)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "k\tMODES\tPRIOR\tTRUTH\tRECON\tCORR")
	for b, k := range truth.Centers {
		if truth.Counts[b] == 0 {
			continue
		}
		fmt.Fprintf(w, "%.3f\t%d\t%.4g\t%.4g\t%.4g\t%.3f\n",
			k, truth.Counts[b], prior.Power[b], truth.Power[b], recon.Power[b], corr[b])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	var ratio []float64
	for b := range truth.Power {
		if truth.Counts[b] > 0 && truth.Power[b] > 0 {
			ratio = append(ratio, recon.Power[b]/truth.Power[b])
		}
	}
	if len(ratio) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(ratio, asciigraph.Height(8), asciigraph.Width(60), asciigraph.Caption("reconstructed / true ϕ power per band")))
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if outputFile != "" {
		if err := st.ExportJSONFile(args[0], outputFile); err != nil {
			return err
		}
		fmt.Printf("exported to %s\n", outputFile)
		return nil
	}
	return st.ExportJSON(args[0], os.Stdout)
}

func exportSVG(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)

	var svg string
	switch mapName {
	case "trace":
		trace, err := st.LoadTrace(runID)
		if err != nil {
			return err
		}
		lnp := make([]float64, len(trace))
		for i, r := range trace {
			lnp[i] = r.LnP
		}
		svg = export.TraceToSVG(lnp, 640, 320, "#00ff88")
	case "phi", "f", "fmix":
		maps, err := st.LoadMaps(runID)
		if err != nil {
			return err
		}
		rows := map[string][][]float64{"phi": maps.Phi, "f": maps.F, "fmix": maps.FMix}[mapName]
		svg = export.MapToSVG(rows, cellSize)
	default:
		return fmt.Errorf("unknown map %q (want phi, f, fmix or trace)", mapName)
	}
	if svg == "" {
		return fmt.Errorf("run %s: nothing to render for %s", runID, mapName)
	}

	if outputFile == "" {
		fmt.Println(svg)
		return nil
	}
	if err := os.WriteFile(outputFile, []byte(svg), 0644); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", outputFile)
	return nil
}

func selfCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	e := experiment.New(cfg, logger)
	if err := e.Setup(cmd.Context()); err != nil {
		return err
	}
	checks, err := e.SelfCheck(checkSeed)
	if err != nil {
		return err
	}

	failed := 0
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tERROR\tTOLERANCE\tRESULT")
	for _, c := range checks {
		result := "ok"
		if !c.Passed {
			result = "FAIL"
			failed++
		}
		fmt.Fprintf(w, "%s\t%.3g\t%.3g\t%s\n", c.Name, c.Error, c.Tolerance, result)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(checks))
	}
	return nil
}
