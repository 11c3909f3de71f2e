package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Row is one scenario as read from the scenario table.
// Index is the table's own row key and is opaque to everything but the table.
// Number is the 1-based position of the row among the data rows.
type Row struct {
	Index  int
	Number int
	Cells  []string
}

// Cell returns the trimmed cell value, or "" when the column is absent.
func (r Row) Cell(c Column) string {
	if c < 0 || int(c) >= len(r.Cells) {
		return ""
	}
	return strings.TrimSpace(r.Cells[c])
}

// Has reports whether the column holds a value.
func (r Row) Has(c Column) bool { return r.Cell(c) != "" }

// Float parses the column as a finite number.
func (r Row) Float(c Column) (float64, error) {
	v := r.Cell(c)
	if v == "" {
		return 0, fmt.Errorf("%s is empty", c)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s: %q is not a number", c, v)
	}
	return f, nil
}

// FloatOr parses the column, returning def when it is empty or malformed.
func (r Row) FloatOr(c Column, def float64) float64 {
	if f, err := r.Float(c); err == nil {
		return f
	}
	return def
}

// ScenarioName is the raw name column, used for logging.
func (r Row) ScenarioName() string { return r.Cell(ColScenarioName) }

// Completed reports whether the marker column is populated.
func (r Row) Completed(l Layout) bool { return r.Has(l.Marker) }

// Errored reports whether a previous run left a message in the error column.
func (r Row) Errored() bool { return r.Has(ColError) }

// State derives the row's run state from what is stored in the table.
// Stored errors cannot distinguish between failure kinds, so they read as Failed.
func (r Row) State(l Layout) RunState {
	switch {
	case r.Completed(l):
		return StateCompleted
	case r.Errored():
		return StateFailed
	default:
		return StatePending
	}
}
