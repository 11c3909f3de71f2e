// Package jsonreport writes the per-run summary as indented JSON.
package jsonreport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bytemomo/rhembatch/internal/domain"
)

// Version of the report layout.
const Version = "1.0"

type Writer struct {
	OutDir string // e.g., ./output
}

func New(out string) *Writer { return &Writer{OutDir: out} }

// Path is where the report for runID is written.
func (w *Writer) Path(runID string) string {
	if runID == "" {
		runID = "unnamed"
	}
	return filepath.Join(w.OutDir, "run-"+runID+".json")
}

type report struct {
	Version string         `json:"version"`
	Elapsed string         `json:"elapsed"`
	Pending int            `json:"pending"`
	Summary domain.Summary `json:"summary"`
}

func (w *Writer) Aggregate(s domain.Summary) (string, error) {
	if err := os.MkdirAll(w.OutDir, 0o755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}
	path := w.Path(s.RunID)
	return path, writeJSON(path, report{
		Version: Version,
		Elapsed: s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond).String(),
		Pending: s.Pending(),
		Summary: s,
	})
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
