package runner

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bytemomo/rhembatch/internal/adapter/memtable"
	"bytemomo/rhembatch/internal/domain"
	"bytemomo/rhembatch/internal/testutil"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	delay  time.Duration
	errs   map[string]error
	block  bool
	result domain.Result

	mu        sync.Mutex
	calls     []string
	inFlight  int32
	maxFlight int32
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		errs: map[string]error{},
		result: domain.Result{
			Metrics: domain.Metrics{Precip: 12.3, Runoff: 4.5, SoilLoss: 0.6, SedYield: 0.7},
			Aux:     "0.42",
		},
	}
}

func (f *fakeExecutor) Supports(mode string) bool { return mode == domain.ModeService }

func (f *fakeExecutor) Execute(ctx context.Context, row domain.Row) (domain.Result, error) {
	name := row.ScenarioName()
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()

	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		prev := atomic.LoadInt32(&f.maxFlight)
		if cur <= prev || atomic.CompareAndSwapInt32(&f.maxFlight, prev, cur) {
			break
		}
	}

	if f.block {
		<-ctx.Done()
		return domain.Result{}, domain.E(domain.KindTransport, "fake", "cancelled", ctx.Err())
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.Result{}, ctx.Err()
		}
	}
	if err, ok := f.errs[name]; ok {
		return domain.Result{}, err
	}
	return f.result, nil
}

func (f *fakeExecutor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeReport struct {
	got *domain.Summary
}

func (r *fakeReport) Aggregate(s domain.Summary) (string, error) {
	r.got = &s
	return "report.json", nil
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newRunner(tbl domain.ScenarioTable, exec domain.ScenarioExecutor, k int) *Runner {
	return &Runner{
		Table:     tbl,
		Executors: []domain.ScenarioExecutor{exec},
		Config: Config{
			RunID:       "test",
			Mode:        domain.ModeService,
			Concurrency: k,
			Timeout:     10 * time.Second,
		},
		Log: quietLog(),
	}
}

func TestRun_CompletesRows(t *testing.T) {
	rows := testutil.Rows("s", 3)
	tbl := memtable.New(rows)
	exec := newFakeExecutor()
	report := &fakeReport{}
	r := newRunner(tbl, exec, 2)
	r.Report = report

	summary, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Rows)
	assert.Equal(t, 3, summary.Count(domain.StateCompleted))
	assert.Zero(t, summary.Pending())
	assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, exec.Calls())
	assert.Equal(t, 3, tbl.Saves())

	for _, row := range rows {
		assert.Equal(t, "12.3", tbl.Cell(row.Index, domain.ColAvgPrecip))
		assert.Equal(t, "4.5", tbl.Cell(row.Index, domain.ColAvgRunoff))
		assert.Equal(t, "0.6", tbl.Cell(row.Index, domain.ColAvgSoilLoss))
		assert.Equal(t, "0.7", tbl.Cell(row.Index, domain.ColAvgSedYield))
		assert.Equal(t, "0.42", tbl.Cell(row.Index, domain.ColAux))
		assert.Empty(t, tbl.Cell(row.Index, domain.ColError))
	}

	require.NotNil(t, report.got)
	assert.Equal(t, "test", report.got.RunID)
	assert.Len(t, report.got.Outcomes, 3)
}

func TestRun_BoundsConcurrency(t *testing.T) {
	for _, k := range []int{1, 3} {
		tbl := memtable.New(testutil.Rows("s", 12))
		exec := newFakeExecutor()
		exec.delay = 20 * time.Millisecond

		summary, err := newRunner(tbl, exec, k).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 12, summary.Count(domain.StateCompleted))
		assert.Equal(t, int32(k), atomic.LoadInt32(&exec.maxFlight), "k=%d", k)
	}
}

func TestRun_SkipsCompletedRows(t *testing.T) {
	rows := testutil.Rows("s", 3)
	rows[1].Cells[domain.ColAvgPrecip] = "1"
	rows[1].Cells[domain.ColAvgSoilLoss] = "9.9"
	rows[1].Cells[domain.ColAux] = "x"
	tbl := memtable.New(rows)
	before := tbl.Cells(rows[1].Index)

	exec := newFakeExecutor()
	summary, err := newRunner(tbl, exec, 2).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, before, tbl.Cells(rows[1].Index))
	assert.NotContains(t, exec.Calls(), "s2")
	assert.Equal(t, 1, summary.Resumed)
	assert.Equal(t, 2, summary.Count(domain.StateCompleted))
	assert.Equal(t, 2, tbl.Saves())
}

func TestRun_SecondRunIsNoop(t *testing.T) {
	tbl := memtable.New(testutil.Rows("s", 4))
	exec := newFakeExecutor()

	_, err := newRunner(tbl, exec, 2).Run(context.Background())
	require.NoError(t, err)
	first := tbl.Cells(3)

	summary, err := newRunner(tbl, exec, 2).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Resumed)
	assert.Len(t, exec.Calls(), 4)
	assert.Equal(t, first, tbl.Cells(3))
}

func TestRun_InvalidRowsAreNotDispatched(t *testing.T) {
	rows := testutil.Rows("s", 2)
	rows[0].Cells[domain.ColLitterCover] = "70"
	tbl := memtable.New(rows)
	exec := newFakeExecutor()

	summary, err := newRunner(tbl, exec, 2).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"s2"}, exec.Calls())
	assert.Equal(t, 1, summary.Count(domain.StateSkippedInvalid))
	reason := tbl.Cell(rows[0].Index, domain.ColError)
	assert.Contains(t, reason, "cannot exceed 100%")
	assert.Empty(t, tbl.Cell(rows[0].Index, domain.ColAvgSoilLoss))
}

func TestRun_NonFiniteCoverIsSkippedInvalid(t *testing.T) {
	rows := testutil.Rows("s", 3)
	rows[0].Cells[domain.ColShrubsCanopy] = "NaN"
	rows[1].Cells[domain.ColRockCover] = "-Inf"
	tbl := memtable.New(rows)
	exec := newFakeExecutor()

	summary, err := newRunner(tbl, exec, 2).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"s3"}, exec.Calls())
	assert.Equal(t, 2, summary.Count(domain.StateSkippedInvalid))
	assert.Zero(t, summary.Count(domain.StateErrorTransport))
	assert.Contains(t, tbl.Cell(rows[0].Index, domain.ColError), "shrubs")
	assert.Contains(t, tbl.Cell(rows[1].Index, domain.ColError), "rock cover")
}

func TestRun_IsolatesRowFailures(t *testing.T) {
	tbl := memtable.New(testutil.Rows("s", 4))
	exec := newFakeExecutor()
	exec.errs["s1"] = domain.E(domain.KindServiceReported, "svc", "station not found", nil)
	exec.errs["s2"] = errors.New("connection reset")
	exec.errs["s3"] = domain.E(domain.KindExtraction, "summary", "missing soil loss", nil)

	summary, err := newRunner(tbl, exec, 4).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Count(domain.StateFailed))
	assert.Equal(t, 2, summary.Count(domain.StateErrorTransport))
	assert.Equal(t, 1, summary.Count(domain.StateCompleted))

	assert.Equal(t, "station not found", tbl.Cell(3, domain.ColError))
	assert.Equal(t, "transport error: connection reset", tbl.Cell(4, domain.ColError))
	assert.Contains(t, tbl.Cell(5, domain.ColError), "could not read results")
	assert.Equal(t, "0.6", tbl.Cell(6, domain.ColAvgSoilLoss))
	for idx := 3; idx <= 5; idx++ {
		assert.Empty(t, tbl.Cell(idx, domain.ColAvgSoilLoss))
	}
}

func TestRun_RetriesPreviouslyErroredRows(t *testing.T) {
	rows := testutil.Rows("s", 1)
	rows[0].Cells[domain.ColError] = "transport error: timeout"
	tbl := memtable.New(rows)
	exec := newFakeExecutor()

	_, err := newRunner(tbl, exec, 1).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, exec.Calls())
	assert.Empty(t, tbl.Cell(rows[0].Index, domain.ColError))
	assert.Equal(t, "0.6", tbl.Cell(rows[0].Index, domain.ColAvgSoilLoss))
}

func TestRun_StorageFailureIsFatal(t *testing.T) {
	tbl := memtable.New(testutil.Rows("s", 5))
	boom := errors.New("disk full")
	tbl.SaveErr = boom
	exec := newFakeExecutor()

	summary, err := newRunner(tbl, exec, 1).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, domain.KindStorage, domain.KindOf(err))
	assert.Less(t, len(exec.Calls()), 5)
	assert.Zero(t, summary.Count(domain.StateCompleted))
}

func TestRun_ReadFailureIsFatal(t *testing.T) {
	tbl := memtable.New(nil)
	tbl.ReadErr = errors.New("no such file")

	_, err := newRunner(tbl, newFakeExecutor(), 1).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.KindStorage, domain.KindOf(err))
}

func TestRun_TimeoutLeavesRowsPending(t *testing.T) {
	rows := testutil.Rows("s", 3)
	tbl := memtable.New(rows)
	exec := newFakeExecutor()
	exec.block = true

	r := newRunner(tbl, exec, 2)
	r.Config.Timeout = 50 * time.Millisecond

	summary, err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBatchTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, 3, summary.Pending())
	assert.Zero(t, tbl.Saves())
	for _, row := range rows {
		assert.Equal(t, domain.StatePending, domain.Row{Cells: tbl.Cells(row.Index)}.State(domain.DefaultLayout()))
	}
}

// slowSaveTable blocks every Save until the batch context ends.
type slowSaveTable struct {
	*memtable.Table
}

func (s slowSaveTable) Save(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRun_SaveInterruptedByTimeoutIsNotFatal(t *testing.T) {
	rows := testutil.Rows("s", 1)
	tbl := slowSaveTable{memtable.New(rows)}

	r := newRunner(tbl, newFakeExecutor(), 1)
	r.Config.Timeout = 50 * time.Millisecond

	summary, err := r.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBatchTimeout)
	assert.NotEqual(t, domain.KindStorage, domain.KindOf(err))
	assert.Zero(t, summary.Count(domain.StateCompleted))
	assert.Equal(t, 1, summary.Pending())
}

func TestRun_StampsNonResultMarker(t *testing.T) {
	tbl := memtable.New(testutil.Rows("s", 1))
	r := newRunner(tbl, newFakeExecutor(), 1)
	r.Config.Layout = domain.Layout{Marker: domain.NumColumns}
	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.Now = func() time.Time { return stamp }

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T12:00:00Z", tbl.Cell(3, domain.NumColumns))
}

func TestRun_ScenarioCount(t *testing.T) {
	tbl := memtable.New(testutil.Rows("s", 5))
	exec := newFakeExecutor()
	r := newRunner(tbl, exec, 2)
	r.Config.ScenarioCount = 2

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Rows)
	assert.ElementsMatch(t, []string{"s1", "s2"}, exec.Calls())
}

// sheetNumberedTable numbers rows by worksheet position, leaving gaps where
// blank rows were dropped.
type sheetNumberedTable struct {
	*memtable.Table
}

func (s sheetNumberedTable) ReadAllRows(ctx context.Context) ([]domain.Row, error) {
	rows, err := s.Table.ReadAllRows(ctx)
	for i := range rows {
		rows[i].Number = rows[i].Index - 2
	}
	return rows, err
}

func TestRun_ScenarioCountSpansBlankRows(t *testing.T) {
	rows := []domain.Row{
		testutil.ScenarioRow(1, "s1"),
		testutil.ScenarioRow(3, "s3"),
		testutil.ScenarioRow(4, "s4"),
	}
	tbl := sheetNumberedTable{memtable.New(rows)}
	exec := newFakeExecutor()
	r := newRunner(tbl, exec, 2)
	r.Config.ScenarioCount = 3

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Rows)
	assert.ElementsMatch(t, []string{"s1", "s3"}, exec.Calls())
}

func TestRun_NoExecutorForMode(t *testing.T) {
	r := newRunner(memtable.New(nil), newFakeExecutor(), 1)
	r.Config.Mode = domain.ModeLocal

	_, err := r.Run(context.Background())
	assert.Error(t, err)
}

func TestRun_InvalidLayout(t *testing.T) {
	r := newRunner(memtable.New(nil), newFakeExecutor(), 1)
	r.Config.Layout = domain.Layout{Marker: domain.ColError}

	_, err := r.Run(context.Background())
	assert.Error(t, err)
}
