package scheduler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EMAScreener/internal/collector"
	"EMAScreener/internal/model"
	"EMAScreener/internal/recorder"
	"EMAScreener/internal/report"
	"EMAScreener/internal/runstate"
	"EMAScreener/internal/screener"
	"EMAScreener/internal/universe"
)

var runDay = time.Date(2024, 6, 3, 17, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	docs     []string
	err      error
}

func (f *fakeNotifier) SendWithRetry(_ context.Context, text string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return f.err
}

func (f *fakeNotifier) SendDocumentWithRetry(_ context.Context, filename string, _ []byte, _ string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, filename)
	return f.err
}

type fakeMailer struct {
	sent []report.Summary
	csv  [][]byte
	err  error
}

func (f *fakeMailer) SendReport(_ context.Context, sum report.Summary, csv []byte) error {
	f.sent = append(f.sent, sum)
	f.csv = append(f.csv, csv)
	return f.err
}

func history(symbol string, n int, close float64) model.PriceHistory {
	h := make(model.PriceHistory, n)
	for i := range h {
		h[i] = model.PriceBar{Symbol: symbol, Date: runDay.AddDate(0, 0, i-n-1), Close: close}
	}
	return h
}

func bar(symbol string, low, close float64) *model.PriceBar {
	return &model.PriceBar{Symbol: symbol, Name: symbol + " Inc.", Exchange: "XNAS", Date: runDay,
		Open: close, High: close + 1, Low: low, Close: close, Volume: 1000}
}

type harness struct {
	sched    *Scheduler
	notifier *fakeNotifier
	mailer   *fakeMailer
	rec      *recorder.SQLiteRecorder
	dir      string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	fetcher := &collector.MockFetcher{
		Latest: map[string]*model.PriceBar{"AAA": bar("AAA", 9, 11), "BBB": bar("BBB", 10, 11)},
		History: map[string]model.PriceHistory{
			"AAA": history("AAA", 60, 10),
			"BBB": history("BBB", 60, 10),
			"NEW": history("NEW", 30, 10),
		},
	}
	fetcher.Latest["NEW"] = bar("NEW", 9, 11)

	scr := screener.New(fetcher, screener.Options{Retries: 1}, nil)
	scr.Now = func() time.Time { return runDay }
	runs := 0
	scr.NewID = func() string {
		runs++
		return fmt.Sprintf("run-%d", runs)
	}

	state, err := runstate.NewManager(filepath.Join(dir, "state.json"), nil)
	require.NoError(t, err)
	state.Now = func() time.Time { return runDay }

	rec, err := recorder.NewSQLiteRecorder(filepath.Join(dir, "history.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })

	s := NewScheduler(context.Background(), scr, universe.NewLoader(nil, nil),
		universe.Source{Symbols: []string{"AAA", "BBB", "NEW"}},
		state, rec, Output{Dir: filepath.Join(dir, "reports"), BaseName: "ema50_screen"}, nil)
	s.Now = func() time.Time { return runDay }
	s.Provider = "mock"

	h := &harness{sched: s, notifier: &fakeNotifier{}, mailer: &fakeMailer{}, rec: rec, dir: dir}
	s.Notifier = h.notifier
	s.Mailer = h.mailer
	return h
}

func TestRunOnce_EndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.sched.RunOnce(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.DeliveryErrors)

	assert.Equal(t, 2, res.Report.TotalStocks)
	assert.Equal(t, 1, res.Report.QualifyingStocks)
	assert.Equal(t, filepath.Join(h.dir, "reports", "ema50_screen_2024-06-03.csv"), res.Path)

	onDisk, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, res.CSV, onDisk)
	rows, err := report.ParseTable(bytes.NewReader(onDisk))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "AAA", rows[0].Symbol)

	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, "ema50_screen_2024-06-03.csv", h.mailer.sent[0].Filename)
	assert.Equal(t, []string{"AAA"}, h.mailer.sent[0].Qualifying)
	require.Len(t, h.notifier.messages, 1)
	assert.Contains(t, h.notifier.messages[0], "Qualifying: 1")
	assert.Equal(t, []string{"ema50_screen_2024-06-03.csv"}, h.notifier.docs)

	runs, err := h.rec.LastRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, []string{"AAA"}, runs[0].Qualifying)
	assert.Equal(t, 1, runs[0].SkippedStocks)

	st := h.sched.State.GetState()
	assert.Equal(t, "2024-06-03", st.LastRunDate)
	assert.False(t, st.Running)

	// same day again is refused unless forced
	_, err = h.sched.RunOnce(ctx, RunOptions{})
	assert.ErrorIs(t, err, runstate.ErrAlreadyDone)
}

func TestRunOnce_DeliveryFailureDoesNotFailRun(t *testing.T) {
	h := newHarness(t)
	h.mailer.err = errors.New("535 auth failed")
	h.notifier.err = errors.New("telegram down")

	res, err := h.sched.RunOnce(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Len(t, res.DeliveryErrors, 2)
	assert.Empty(t, h.notifier.docs, "document is not sent after the summary failed")
	assert.Equal(t, "2024-06-03", h.sched.State.GetState().LastRunDate)
}

func TestRunOnce_DryRun(t *testing.T) {
	h := newHarness(t)

	res, err := h.sched.RunOnce(context.Background(), RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, res.Path)
	assert.NotEmpty(t, res.CSV)
	assert.Empty(t, h.mailer.sent)
	assert.Empty(t, h.notifier.messages)
	assert.Empty(t, h.sched.State.GetState().LastRunDate)

	_, err = os.Stat(filepath.Join(h.dir, "reports"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunOnce_UniverseFailureReleasesState(t *testing.T) {
	h := newHarness(t)
	h.sched.Source = universe.Source{Symbols: []string{"???"}}

	_, err := h.sched.RunOnce(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, universe.ErrEmpty)
	assert.False(t, h.sched.State.GetState().Running)
}

func TestRunOnce_Overlap(t *testing.T) {
	h := newHarness(t)
	h.sched.mu.Lock()
	_, err := h.sched.RunOnce(context.Background(), RunOptions{Force: true})
	h.sched.mu.Unlock()
	assert.ErrorIs(t, err, runstate.ErrRunning)
}

func TestHandleCommand(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.Contains(t, h.sched.HandleCommand(ctx, "/last"), "No screen has completed yet.")
	assert.Equal(t, "", h.sched.HandleCommand(ctx, "/screen@ema_bot"))
	assert.Contains(t, h.sched.HandleCommand(ctx, "/LAST"), "Qualifying: 1")
	assert.Contains(t, h.sched.HandleCommand(ctx, "/history"), "1/2 qualifying")
	assert.Contains(t, h.sched.HandleCommand(ctx, "hello"), "/screen")
	assert.Contains(t, h.sched.HandleCommand(ctx, "  "), "/screen")

	// forced from chat even though today is done
	assert.Equal(t, "", h.sched.HandleCommand(ctx, "/screen"))
	assert.Len(t, h.mailer.sent, 2)
}

func TestRegister(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sched.Register("0 0 17 * * 1-5", time.UTC))
	assert.Len(t, h.sched.Cron.Entries(), 1)
	assert.Error(t, h.sched.Register("not a cron", nil))
}

func TestDailyTask_ReportsFailure(t *testing.T) {
	h := newHarness(t)
	h.sched.Source = universe.Source{}
	h.sched.dailyTask()
	require.Len(t, h.notifier.messages, 1)
	assert.Contains(t, h.notifier.messages[0], "Daily screen failed")
}
