package domain

import (
	"context"
	"io"
)

// ScenarioTable is the scenario source and persistence sink.
// Implementations need not be safe for concurrent use; the runner serializes access.
type ScenarioTable interface {
	// ReadAllRows returns every data row in source order.
	ReadAllRows(ctx context.Context) ([]Row, error)
	// ReadCell returns the current value of one cell.
	ReadCell(row int, col Column) (string, error)
	// WriteCell stages a value; it is durable only after Save.
	WriteCell(row int, col Column, value string) error
	// Save durably stores all staged writes.
	Save(ctx context.Context) error
}

// ScenarioExecutor runs one validated scenario row to completion.
type ScenarioExecutor interface {
	Supports(mode string) bool
	Execute(ctx context.Context, row Row) (Result, error)
}

// ArtifactSink stores a downloaded or produced artifact and returns where it went.
type ArtifactSink interface {
	Put(ctx context.Context, name string, body io.Reader, size int64) (string, error)
}

// ReportWriter is an interface for writing reports.
type ReportWriter interface {
	// Aggregate writes the run summary and returns its location.
	Aggregate(s Summary) (string, error)
}

// Execution modes.
const (
	ModeService = "service"
	ModeLocal   = "local"
)
