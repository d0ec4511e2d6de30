package storage

import (
	"encoding/json"
	"io"
	"math"
	"os"
)

type ExportData struct {
	Metadata *RunMetadata `json:"metadata"`
	Trace    []TraceRow   `json:"trace"`
	Maps     *Maps        `json:"maps"`
}

// Export collects everything stored for runID.
func (s *Store) Export(runID string) (*ExportData, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	trace, err := s.LoadTrace(runID)
	if err != nil {
		return nil, err
	}
	for i := range trace {
		if math.IsNaN(trace[i].CGResidual) {
			trace[i].CGResidual = 0
		}
	}
	maps, err := s.LoadMaps(runID)
	if err != nil {
		return nil, err
	}
	return &ExportData{Metadata: meta, Trace: trace, Maps: maps}, nil
}

// ExportJSON writes the run as one indented JSON document to w.
func (s *Store) ExportJSON(runID string, w io.Writer) error {
	data, err := s.Export(runID)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// ExportJSONFile is ExportJSON into a new file at path.
func (s *Store) ExportJSONFile(runID, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return s.ExportJSON(runID, file)
}
