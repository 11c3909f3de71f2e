// Package testutil provides test doubles for the model service.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// RunPath and FilePrefix are the routes served by MockService.
const (
	RunPath    = "/csip-rhem/m/rhem/runrhem/1.0"
	FilePrefix = "/files/"
)

// DefaultSummary renders a summary report with fixed averages.
func DefaultSummary(string) string {
	return "     -ANNUAL-AVERAGES-\n\n" +
		"Avg-Precipitation(mm/year)=   12.3\n" +
		"Avg-Runoff(mm/year)=   4.5\n" +
		"Avg-Soil-Loss(ton/ha/year)=   0.6\n" +
		"Avg-SY(ton/ha/year)=   0.7\n"
}

// MockService is an httptest server that imitates the model run endpoint.
// Behaviour is keyed by the scenarioname parameter of each request.
type MockService struct {
	// Delay is applied to every run request before responding.
	Delay time.Duration
	// Errors maps scenario names to a metainfo error message.
	Errors map[string]string
	// Malformed lists scenario names answered with an undecodable body.
	Malformed map[string]bool
	// BrokenSummary lists scenario names whose summary file cannot be parsed.
	BrokenSummary map[string]bool
	// Summary renders the summary file for a scenario.
	Summary func(scenario string) string
	// TDS is the auxiliary value returned for every run.
	TDS string

	server *httptest.Server

	mu        sync.Mutex
	requests  []map[string]any
	inFlight  int32
	maxFlight int32
	runs      int32
	fetches   int32
}

// NewMockService creates a service with default behaviour. Call Start before use.
func NewMockService() *MockService {
	return &MockService{
		Errors:        map[string]string{},
		Malformed:     map[string]bool{},
		BrokenSummary: map[string]bool{},
		Summary:       DefaultSummary,
		TDS:           "0.42",
	}
}

// Start starts the server on a random port.
func (s *MockService) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc(RunPath, s.handleRun)
	mux.HandleFunc(FilePrefix, s.handleFile)
	s.server = httptest.NewServer(mux)
}

// Stop stops the server.
func (s *MockService) Stop() {
	if s.server != nil {
		s.server.Close()
	}
}

// URL is the run endpoint.
func (s *MockService) URL() string { return s.server.URL + RunPath }

// Runs is the number of run requests received.
func (s *MockService) Runs() int { return int(atomic.LoadInt32(&s.runs)) }

// Fetches is the number of file downloads served.
func (s *MockService) Fetches() int { return int(atomic.LoadInt32(&s.fetches)) }

// MaxInFlight is the highest number of run requests observed at once.
func (s *MockService) MaxInFlight() int { return int(atomic.LoadInt32(&s.maxFlight)) }

// Requests returns the decoded parameters of every run request, keyed by name.
func (s *MockService) Requests() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.requests))
	copy(out, s.requests)
	return out
}

// Scenarios returns the scenario names received, in arrival order.
func (s *MockService) Scenarios() []string {
	var names []string
	for _, r := range s.Requests() {
		name, _ := r["scenarioname"].(string)
		names = append(names, name)
	}
	return names
}

type wireParam struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type wireRequest struct {
	Metainfo  map[string]any `json:"metainfo"`
	Parameter []wireParam    `json:"parameter"`
}

type wireEntry struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

func (s *MockService) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	atomic.AddInt32(&s.runs, 1)
	cur := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		prev := atomic.LoadInt32(&s.maxFlight)
		if cur <= prev || atomic.CompareAndSwapInt32(&s.maxFlight, prev, cur) {
			break
		}
	}

	var req wireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	params := make(map[string]any, len(req.Parameter))
	for _, p := range req.Parameter {
		params[p.Name] = p.Value
	}
	s.mu.Lock()
	s.requests = append(s.requests, params)
	s.mu.Unlock()

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-r.Context().Done():
			return
		}
	}

	name, _ := params["scenarioname"].(string)
	w.Header().Set("Content-Type", "application/json")

	if s.Malformed[name] {
		_, _ = w.Write([]byte(`{"metainfo": {"status": "Finished"}, "result": [`))
		return
	}
	if msg, ok := s.Errors[name]; ok {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"metainfo": map[string]any{"status": "Failed", "error": msg},
		})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"metainfo": map[string]any{"status": "Finished"},
		"result":   s.results(name, params),
	})
}

func (s *MockService) results(name string, params map[string]any) []wireEntry {
	short := name
	if len(short) > 15 {
		short = short[:15]
	}
	file := func(n string) wireEntry {
		return wireEntry{Name: n, Value: s.server.URL + FilePrefix + n}
	}
	entries := []wireEntry{
		{Name: "AoAID", Value: params["AoAID"]},
		{Name: "rhem_site_id", Value: params["rhem_site_id"]},
	}
	for _, n := range []string{"CLEN", "UNITS", "DIAMS", "DENSITY", "CHEZY", "RCHEZY", "SL", "SX", "KSS", "KE", "G", "DIST", "POR"} {
		entries = append(entries, wireEntry{Name: n, Value: "1.0"})
	}
	return append(entries,
		wireEntry{Name: "TDS", Value: s.TDS},
		file("scenario_input_"+short+".par"),
		file("storm_input_"+short+".pre"),
		file("scenario_output_summary_"+short+".sum"),
		file("scenario_output_summary_"+short+".out"),
	)
}

func (s *MockService) handleFile(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&s.fetches, 1)
	name := strings.TrimPrefix(r.URL.Path, FilePrefix)
	switch {
	case strings.HasSuffix(name, ".sum"):
		scenario := strings.TrimSuffix(strings.TrimPrefix(name, "scenario_output_summary_"), ".sum")
		if s.BrokenSummary[scenario] {
			_, _ = w.Write([]byte("     -ANNUAL-AVERAGES-\n\nnothing to see here\n"))
			return
		}
		_, _ = w.Write([]byte(s.Summary(scenario)))
	case strings.HasSuffix(name, ".par"):
		_, _ = fmt.Fprintf(w, "! Parameter file for scenario: %s\nBEGIN GLOBAL\nEND GLOBAL\n", name)
	default:
		_, _ = w.Write([]byte("contents of " + name))
	}
}
