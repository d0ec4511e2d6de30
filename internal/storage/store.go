// Package storage persists reconstruction runs on disk, one directory per
// run holding metadata.json, trace.csv and maps.json.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/lenseflow/internal/config"
	"github.com/san-kum/lenseflow/internal/jointmax"
)

// ErrRunNotFound indicates a run ID without a run directory.
var ErrRunNotFound = errors.New("storage: run not found")

var traceHeader = []string{"step", "lnp", "lnp_before", "alpha", "cg_iterations", "cg_residual", "cg_converged"}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Timestamp   time.Time      `json:"timestamp"`
	Seed        int64          `json:"seed"`
	N           int            `json:"n"`
	Dx          float64        `json:"dx"`
	Integrator  string         `json:"integrator"`
	Steps       int            `json:"steps"`
	QuasiSample bool           `json:"quasi_sample"`
	FinalLnP    float64        `json:"final_lnp"`
	Correlation []float64      `json:"correlation,omitempty"`
	Config      *config.Config `json:"config"`
}

// TraceRow is one line of trace.csv.
type TraceRow struct {
	Step         int     `json:"step"`
	LnP          float64 `json:"lnp"`
	LnPBefore    float64 `json:"lnp_before"`
	Alpha        float64 `json:"alpha"`
	CGIterations int     `json:"cg_iterations"`
	CGResidual   float64 `json:"cg_residual"`
	CGConverged  bool    `json:"cg_converged"`
}

// Save writes cfg and res under a fresh run ID. correlation, when given, is
// the per-band correlation with the true potential.
func (s *Store) Save(cfg *config.Config, res *jointmax.Result, correlation []float64) (string, error) {
	if len(res.Trace) == 0 {
		return "", fmt.Errorf("storage: empty trace")
	}
	runID := uuid.NewString()
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:          runID,
		Name:        cfg.Name,
		Timestamp:   time.Now(),
		Seed:        cfg.Seed,
		N:           cfg.Grid.N,
		Dx:          cfg.Grid.Dx,
		Integrator:  cfg.Integrator.Kind,
		Steps:       len(res.Trace),
		QuasiSample: cfg.Optimizer.QuasiSample,
		FinalLnP:    res.Trace[len(res.Trace)-1].LnP,
		Correlation: finite(correlation),
		Config:      cfg,
	}
	if err := writeJSON(filepath.Join(runDir, "metadata.json"), meta); err != nil {
		return "", err
	}
	if err := writeTrace(filepath.Join(runDir, "trace.csv"), res.Trace); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "maps.json"), NewMaps(res)); err != nil {
		return "", err
	}
	return runID, nil
}

// finite replaces NaN and infinite entries, which JSON cannot encode, by
// zero.
func finite(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out[i] = x
		}
	}
	return out
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTrace(path string, trace []jointmax.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(traceHeader); err != nil {
		return err
	}
	for _, rec := range trace {
		row := []string{
			strconv.Itoa(rec.Step),
			strconv.FormatFloat(rec.LnP, 'g', -1, 64),
			strconv.FormatFloat(rec.LnPBefore, 'g', -1, 64),
			strconv.FormatFloat(rec.Alpha, 'g', -1, 64),
			"0", "NaN", "false",
		}
		if h := rec.Solver; h != nil {
			row[4] = strconv.Itoa(h.Iterations)
			row[5] = strconv.FormatFloat(h.Final(), 'g', -1, 64)
			row[6] = strconv.FormatBool(h.Converged)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// List returns every readable run, oldest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	var meta RunMetadata
	if err := s.readJSON(runID, "metadata.json", &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) readJSON(runID, name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s/%s: %w", runID, name, err)
	}
	return nil
}

func (s *Store) LoadTrace(runID string) ([]TraceRow, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "trace.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(traceHeader)

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []TraceRow{}, nil
	}

	rows := make([]TraceRow, 0, len(records)-1)
	for i, record := range records[1:] {
		row, err := parseTraceRow(record)
		if err != nil {
			return nil, fmt.Errorf("trace.csv line %d: %w", i+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseTraceRow(record []string) (TraceRow, error) {
	var row TraceRow
	var err error
	if row.Step, err = strconv.Atoi(record[0]); err != nil {
		return row, err
	}
	floatsAt := []*float64{&row.LnP, &row.LnPBefore, &row.Alpha}
	for i, dst := range floatsAt {
		if *dst, err = strconv.ParseFloat(record[1+i], 64); err != nil {
			return row, err
		}
	}
	if row.CGIterations, err = strconv.Atoi(record[4]); err != nil {
		return row, err
	}
	if row.CGResidual, err = strconv.ParseFloat(record[5], 64); err != nil {
		return row, err
	}
	if row.CGConverged, err = strconv.ParseBool(record[6]); err != nil {
		return row, err
	}
	return row, nil
}
