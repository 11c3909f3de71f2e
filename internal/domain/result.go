package domain

import (
	"strconv"
	"time"
)

// Metrics are the four annual averages read from a summary report.
type Metrics struct {
	Precip   float64 `json:"precip"`
	Runoff   float64 `json:"runoff"`
	SoilLoss float64 `json:"soilloss"`
	SedYield float64 `json:"sedyield"`
}

// Artifact is a file produced by a scenario run.
type Artifact struct {
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	Location string `json:"location,omitempty"`
}

// Result is what a successful scenario run yields.
type Result struct {
	Metrics   Metrics    `json:"metrics"`
	Aux       string     `json:"aux,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Cells returns the values to write into the result columns.
func (r Result) Cells() map[Column]string {
	return map[Column]string{
		ColAvgPrecip:   formatFloat(r.Metrics.Precip),
		ColAvgRunoff:   formatFloat(r.Metrics.Runoff),
		ColAvgSoilLoss: formatFloat(r.Metrics.SoilLoss),
		ColAvgSedYield: formatFloat(r.Metrics.SedYield),
		ColAux:         r.Aux,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Outcome is how one row settled during a run.
type Outcome struct {
	Row      int           `json:"row"`
	Scenario string        `json:"scenario"`
	State    RunState      `json:"state"`
	Message  string        `json:"message,omitempty"`
	Result   *Result       `json:"result,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
}

// Summary aggregates a whole batch run.
type Summary struct {
	RunID       string           `json:"run_id"`
	Mode        string           `json:"mode"`
	Concurrency int              `json:"concurrency"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Rows        int              `json:"rows"`
	Resumed     int              `json:"resumed"`
	Counts      map[RunState]int `json:"counts"`
	Outcomes    []Outcome        `json:"outcomes"`
}

// Add records an outcome and bumps its state's count.
func (s *Summary) Add(o Outcome) {
	if s.Counts == nil {
		s.Counts = make(map[RunState]int)
	}
	s.Counts[o.State]++
	s.Outcomes = append(s.Outcomes, o)
}

// Pending is the number of rows that did not settle during the run.
func (s *Summary) Pending() int {
	settled := s.Resumed
	for state, n := range s.Counts {
		if state.Terminal() {
			settled += n
		}
	}
	return s.Rows - settled
}

// Count returns how many rows ended in state.
func (s *Summary) Count(state RunState) int { return s.Counts[state] }
