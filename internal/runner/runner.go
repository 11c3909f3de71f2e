// Package runner drives a scenario table to completion: it skips rows that
// already ran, records validation failures without spending a call, and
// dispatches the rest in source order with at most K executions in flight.
// Every settled row is saved before the next one is recorded, so an
// interrupted batch resumes where it stopped.
package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"bytemomo/rhembatch/internal/domain"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Defaults for a zero Config.
const (
	DefaultConcurrency = 10
	DefaultTimeout     = 24 * time.Hour
)

// ErrBatchTimeout is returned when the overall batch deadline expires.
// Rows still in flight at that point are left pending.
var ErrBatchTimeout = fmt.Errorf("batch timed out: %w", context.DeadlineExceeded)

type Config struct {
	RunID         string
	Mode          string
	Concurrency   int
	Timeout       time.Duration
	ScenarioCount int
	Layout        domain.Layout
}

type Runner struct {
	Table     domain.ScenarioTable
	Executors []domain.ScenarioExecutor
	Report    domain.ReportWriter
	Config    Config
	Log       *log.Entry

	// Now is the clock used for timestamps; nil means time.Now.
	Now func() time.Time
}

// batch is the state shared by the tasks of one Run.
type batch struct {
	r      *Runner
	exec   domain.ScenarioExecutor
	layout domain.Layout
	log    *log.Entry

	// mu serializes every table access and summary update.
	mu      sync.Mutex
	summary domain.Summary
	fatal   error
	cancel  context.CancelCauseFunc
}

// Run processes the table once. It returns an error only when the table
// cannot be read or saved, when no executor serves the mode, or when the
// batch deadline (ErrBatchTimeout) or ctx ends the run early. The summary
// reflects whatever settled either way.
func (r *Runner) Run(ctx context.Context) (domain.Summary, error) {
	cfg := r.config()
	l := r.logger().WithFields(log.Fields{
		"run_id": cfg.RunID,
		"mode":   cfg.Mode,
	})

	summary := domain.Summary{
		RunID:       cfg.RunID,
		Mode:        cfg.Mode,
		Concurrency: cfg.Concurrency,
		StartedAt:   r.now(),
		Counts:      map[domain.RunState]int{},
	}

	if err := cfg.Layout.Validate(); err != nil {
		return summary, fmt.Errorf("layout: %w", err)
	}
	exec := r.executorFor(cfg.Mode)
	if exec == nil {
		return summary, fmt.Errorf("no executor for mode %q", cfg.Mode)
	}

	timeoutCtx, cancelTimeout := context.WithTimeout(ctx, cfg.Timeout)
	defer cancelTimeout()
	runCtx, cancel := context.WithCancelCause(timeoutCtx)
	defer cancel(nil)

	rows, err := r.Table.ReadAllRows(runCtx)
	if err != nil {
		return summary, domain.E(domain.KindStorage, "read table", "cannot read scenario rows", err)
	}
	if cfg.ScenarioCount > 0 {
		// Counted by scenario number, so skipped blank workbook rows still use up the count.
		rows = slices.DeleteFunc(rows, func(row domain.Row) bool {
			return row.Number > cfg.ScenarioCount
		})
	}
	summary.Rows = len(rows)

	l.WithFields(log.Fields{
		"rows":        len(rows),
		"concurrency": cfg.Concurrency,
		"timeout":     cfg.Timeout.String(),
		"marker":      int(cfg.Layout.Marker),
	}).Info("Starting batch")

	b := &batch{
		r:       r,
		exec:    exec,
		layout:  cfg.Layout,
		log:     l,
		summary: summary,
		cancel:  cancel,
	}
	b.dispatch(runCtx, rows, int64(cfg.Concurrency))

	b.summary.FinishedAt = r.now()
	runErr := b.err(ctx, timeoutCtx)
	r.logTally(l, b.summary, runErr)
	r.writeReport(l, b.summary)
	return b.summary, runErr
}

// dispatch walks the rows in order and returns once every started task has
// settled.
func (b *batch) dispatch(ctx context.Context, rows []domain.Row, k int64) {
	sem := semaphore.NewWeighted(k)
	var wg sync.WaitGroup

	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		rl := b.log.WithFields(log.Fields{"row": row.Number, "scenario": row.ScenarioName()})

		done, err := b.alreadyCompleted(row)
		if err != nil {
			b.fail(err)
			break
		}
		if done {
			rl.Info("Scenario already completed, skipping")
			continue
		}

		if err := domain.Validate(row); err != nil {
			rl.WithField("reason", domain.Message(err)).Warn("Scenario is invalid, skipping")
			if !b.settle(ctx, row, domain.Result{}, err, 0) {
				break
			}
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		rl.Debug("Dispatching scenario")
		go func(row domain.Row) {
			defer wg.Done()
			defer sem.Release(1)

			start := time.Now()
			res, err := b.exec.Execute(ctx, row)
			if ctx.Err() != nil {
				rl.Warn("Batch ended before scenario settled, leaving it pending")
				return
			}
			b.settle(ctx, row, res, err, time.Since(start))
		}(row)
	}
	wg.Wait()
}

func (b *batch) alreadyCompleted(row domain.Row) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, err := b.r.Table.ReadCell(row.Index, b.layout.Marker)
	if err != nil {
		return false, domain.E(domain.KindStorage, "read marker", fmt.Sprintf("row %d", row.Number), err)
	}
	if v == "" {
		return false, nil
	}
	b.summary.Resumed++
	return true, nil
}

// settle records a row's outcome in the table, saves it and adds it to the
// summary. It reports false once the batch has hit a storage failure.
func (b *batch) settle(ctx context.Context, row domain.Row, res domain.Result, runErr error, took time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fatal != nil {
		return false
	}

	o := domain.Outcome{
		Row:      row.Number,
		Scenario: row.ScenarioName(),
		Duration: took,
	}
	var writes map[domain.Column]string
	if runErr != nil {
		o.State = domain.KindOf(runErr).State()
		o.Message = domain.Message(runErr)
		writes = map[domain.Column]string{domain.ColError: o.Message}
	} else {
		o.State = domain.StateCompleted
		o.Result = &res
		writes = res.Cells()
		writes[domain.ColError] = ""
		if !b.layout.MarkerIsResult() || writes[b.layout.Marker] == "" {
			writes[b.layout.Marker] = b.r.now().UTC().Format(time.RFC3339)
		}
	}

	if err := b.persist(ctx, row, writes); err != nil {
		if ctx.Err() != nil {
			// The batch ended while saving; the row stays pending for the next run.
			b.log.WithError(err).WithField("row", row.Number).Warn("Batch ended before scenario outcome was saved, leaving it pending")
			return false
		}
		b.fatal = err
		b.cancel(err)
		b.log.WithError(err).WithField("row", row.Number).Error("Failed to save scenario outcome")
		return false
	}

	b.summary.Add(o)
	entry := b.log.WithFields(log.Fields{
		"row":      row.Number,
		"scenario": o.Scenario,
		"state":    o.State.String(),
	})
	if took > 0 {
		entry = entry.WithField("duration", took.Round(time.Millisecond).String())
	}
	switch o.State {
	case domain.StateCompleted:
		entry.Info("Scenario completed")
	case domain.StateSkippedInvalid:
		entry.Debug("Recorded validation failure")
	default:
		entry.WithField("error", o.Message).Warn("Scenario failed")
	}
	return true
}

// persist writes the cells in column order and saves the table.
// Callers hold b.mu.
func (b *batch) persist(ctx context.Context, row domain.Row, writes map[domain.Column]string) error {
	cols := make([]domain.Column, 0, len(writes))
	for col := range writes {
		cols = append(cols, col)
	}
	slices.Sort(cols)
	for _, col := range cols {
		v := writes[col]
		if err := b.r.Table.WriteCell(row.Index, col, v); err != nil {
			return domain.E(domain.KindStorage, "write cell", fmt.Sprintf("row %d %s", row.Number, col), err)
		}
	}
	if err := b.r.Table.Save(ctx); err != nil {
		return domain.E(domain.KindStorage, "save table", fmt.Sprintf("after row %d", row.Number), err)
	}
	return nil
}

// fail records a storage failure found outside settle.
func (b *batch) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fatal == nil {
		b.fatal = err
		b.cancel(err)
	}
}

func (b *batch) err(parent, timeoutCtx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.fatal != nil:
		return b.fatal
	case parent.Err() != nil:
		return parent.Err()
	case errors.Is(timeoutCtx.Err(), context.DeadlineExceeded):
		return ErrBatchTimeout
	}
	return nil
}

func (r *Runner) executorFor(mode string) domain.ScenarioExecutor {
	for _, e := range r.Executors {
		if e.Supports(mode) {
			return e
		}
	}
	return nil
}

func (r *Runner) logTally(l *log.Entry, s domain.Summary, err error) {
	entry := l.WithFields(log.Fields{
		"rows":            s.Rows,
		"resumed":         s.Resumed,
		"completed":       s.Count(domain.StateCompleted),
		"skipped_invalid": s.Count(domain.StateSkippedInvalid),
		"failed":          s.Count(domain.StateFailed),
		"error_transport": s.Count(domain.StateErrorTransport),
		"pending":         s.Pending(),
		"elapsed":         s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond).String(),
	})
	if err != nil {
		entry.WithError(err).Error("Batch stopped")
		return
	}
	entry.Info("Batch finished")
}

func (r *Runner) writeReport(l *log.Entry, s domain.Summary) {
	if r.Report == nil {
		return
	}
	path, err := r.Report.Aggregate(s)
	if err != nil {
		l.WithError(err).Error("Failed to write run report")
		return
	}
	l.WithField("path", path).Info("Run report written")
}

func (r *Runner) config() Config {
	cfg := r.Config
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeService
	}
	if cfg.Layout == (domain.Layout{}) {
		cfg.Layout = domain.DefaultLayout()
	}
	return cfg
}

func (r *Runner) logger() *log.Entry {
	if r.Log != nil {
		return r.Log
	}
	return log.NewEntry(log.StandardLogger())
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
