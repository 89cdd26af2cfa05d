package screener

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EMAScreener/internal/collector"
	"EMAScreener/internal/model"
	"EMAScreener/internal/report"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func flatHistory(symbol string, n int, close float64) model.PriceHistory {
	h := make(model.PriceHistory, n)
	for i := range h {
		h[i] = model.PriceBar{Symbol: symbol, Date: base.AddDate(0, 0, i), Open: close, High: close, Low: close, Close: close, Volume: 100}
	}
	return h
}

func latest(symbol string, low, close float64) *model.PriceBar {
	return &model.PriceBar{
		Symbol: symbol, Name: symbol + " Corp", Exchange: "XNAS",
		Date: base.AddDate(0, 0, 100), Open: close, High: close + 1, Low: low, Close: close, Volume: 5000,
	}
}

func testOptions() Options {
	return Options{EMAPeriod: 50, MinHistory: 50, LookbackDays: 120, Workers: 1, Retries: 1}
}

func newTestScreener(f collector.Fetcher, opts Options) *Screener {
	s := New(f, opts, nil)
	s.NewID = func() string { return "run-test" }
	s.Now = func() time.Time { return base.AddDate(0, 0, 101) }
	return s
}

func assertInvariants(t *testing.T, rep *model.AnalysisReport) {
	t.Helper()
	assert.GreaterOrEqual(t, rep.TotalStocks, rep.QualifyingStocks)
	assert.Equal(t, rep.QualifyingStocks, len(rep.Records))
	for _, r := range rep.Records {
		assert.True(t, r.Qualifies)
	}
}

func TestAnalyze_EndToEndScenario(t *testing.T) {
	m := &collector.MockFetcher{
		Latest: map[string]*model.PriceBar{
			"A": latest("A", 9, 11),
			"B": latest("B", 10, 11),
		},
		History: map[string]model.PriceHistory{
			"A": flatHistory("A", 60, 10),
			"B": flatHistory("B", 60, 10),
		},
	}

	rep, err := newTestScreener(m, testOptions()).Analyze(context.Background(), []string{"A", "B"})
	require.NoError(t, err)

	assert.Equal(t, 2, rep.TotalStocks)
	assert.Equal(t, 1, rep.QualifyingStocks)
	require.Len(t, rep.Records, 1)
	assert.Equal(t, "A", rep.Records[0].Bar.Symbol)
	assert.Equal(t, 10.0, rep.Records[0].EMA50)
	assert.Equal(t, "run-test", rep.RunID)
	assertInvariants(t, rep)
}

func TestAnalyze_SkipsInsufficientHistory(t *testing.T) {
	m := &collector.MockFetcher{
		Latest:  map[string]*model.PriceBar{"SHORT": latest("SHORT", 9, 11)},
		History: map[string]model.PriceHistory{"SHORT": flatHistory("SHORT", 30, 10)},
	}

	rep, err := newTestScreener(m, testOptions()).Analyze(context.Background(), []string{"SHORT"})
	require.NoError(t, err)

	assert.Zero(t, rep.TotalStocks)
	assert.Empty(t, rep.Records)
	require.Len(t, rep.Skipped, 1)
	assert.Equal(t, model.SkipInsufficientHistory, rep.Skipped[0].Reason)
}

func TestAnalyze_DataUnavailableDoesNotAbort(t *testing.T) {
	m := &collector.MockFetcher{
		Latest: map[string]*model.PriceBar{
			"OK":     latest("OK", 9, 11),
			"NOHIST": latest("NOHIST", 9, 11),
		},
		History: map[string]model.PriceHistory{"OK": flatHistory("OK", 60, 10)},
		Errors:  map[string]error{"DOWN": errors.New("connection refused")},
	}

	rep, err := newTestScreener(m, testOptions()).Analyze(context.Background(),
		[]string{"DOWN", "MISSING", "NOHIST", "OK"})
	require.NoError(t, err)

	assert.Equal(t, 1, rep.TotalStocks)
	assert.Equal(t, 1, rep.QualifyingStocks)
	require.Len(t, rep.Skipped, 3)
	for i, sym := range []string{"DOWN", "MISSING", "NOHIST"} {
		assert.Equal(t, sym, rep.Skipped[i].Symbol)
		assert.Equal(t, model.SkipDataUnavailable, rep.Skipped[i].Reason)
	}
}

func TestAnalyze_DeduplicatesSymbols(t *testing.T) {
	m := &collector.MockFetcher{
		Latest:  map[string]*model.PriceBar{"A": latest("A", 9, 11)},
		History: map[string]model.PriceHistory{"A": flatHistory("A", 60, 10)},
	}
	rep, err := newTestScreener(m, testOptions()).Analyze(context.Background(), []string{"A", " A ", "", "A"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.TotalStocks)
	assert.Equal(t, 2, m.Calls("A"))
}

func TestAnalyze_GapPolicy(t *testing.T) {
	h := flatHistory("GAP", 60, 10)
	for i := 30; i < len(h); i++ {
		h[i].Date = h[i].Date.AddDate(0, 0, 9)
	}
	newMock := func() *collector.MockFetcher {
		return &collector.MockFetcher{
			Latest:  map[string]*model.PriceBar{"GAP": latest("GAP", 9, 11)},
			History: map[string]model.PriceHistory{"GAP": h},
		}
	}
	assert.Equal(t, 10, LargestGapDays(h))

	rep, err := newTestScreener(newMock(), testOptions()).Analyze(context.Background(), []string{"GAP"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.TotalStocks, "gaps tolerated by default")

	opts := testOptions()
	opts.Gap = GapPolicy{MaxCalendarGapDays: 5}
	rep, err = newTestScreener(newMock(), opts).Analyze(context.Background(), []string{"GAP"})
	require.NoError(t, err)
	assert.Zero(t, rep.TotalStocks)
	require.Len(t, rep.Skipped, 1)
	assert.Equal(t, model.SkipGapTooLarge, rep.Skipped[0].Reason)
}

// flakyFetcher fails the first n latest-bar calls.
type flakyFetcher struct {
	*collector.MockFetcher
	failures atomic.Int32
}

func (f *flakyFetcher) FetchLatestBar(ctx context.Context, symbol string) (*model.PriceBar, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("HTTP 503")
	}
	return f.MockFetcher.FetchLatestBar(ctx, symbol)
}

func TestAnalyze_RetriesTransientErrors(t *testing.T) {
	f := &flakyFetcher{MockFetcher: &collector.MockFetcher{
		Latest:  map[string]*model.PriceBar{"A": latest("A", 9, 11)},
		History: map[string]model.PriceHistory{"A": flatHistory("A", 60, 10)},
	}}
	f.failures.Store(1)

	opts := testOptions()
	opts.Retries = 2
	rep, err := newTestScreener(f, opts).Analyze(context.Background(), []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.QualifyingStocks)

	f.failures.Store(5)
	rep, err = newTestScreener(f, opts).Analyze(context.Background(), []string{"A"})
	require.NoError(t, err)
	assert.Zero(t, rep.TotalStocks)
	assert.Equal(t, model.SkipDataUnavailable, rep.Skipped[0].Reason)
}

func randomUniverse(n int) (*collector.MockFetcher, []string) {
	r := rand.New(rand.NewSource(7))
	m := &collector.MockFetcher{
		Latest:  map[string]*model.PriceBar{},
		History: map[string]model.PriceHistory{},
	}
	symbols := make([]string, n)
	for i := range symbols {
		sym := fmt.Sprintf("S%03d", i)
		symbols[i] = sym
		bars := 40 + r.Intn(40)
		h := make(model.PriceHistory, bars)
		p := 50 + r.Float64()*50
		for j := range h {
			p += r.Float64()*2 - 1
			h[j] = model.PriceBar{Symbol: sym, Date: base.AddDate(0, 0, j), Close: p}
		}
		last := h[len(h)-1].Close
		m.Latest[sym] = &model.PriceBar{
			Symbol: sym, Name: sym + ", Inc.", Exchange: "XNYS", Date: base.AddDate(0, 0, bars),
			Open: last, High: last + 2, Low: last - 1 - r.Float64()*3, Close: last + r.Float64()*2 - 0.5,
			Volume: int64(r.Intn(1e7)),
		}
		m.History[sym] = h
	}
	return m, symbols
}

func TestAnalyze_ParallelMatchesSequential(t *testing.T) {
	m, symbols := randomUniverse(120)

	seq, err := newTestScreener(m, testOptions()).Analyze(context.Background(), symbols)
	require.NoError(t, err)

	opts := testOptions()
	opts.Workers = 16
	par, err := newTestScreener(m, opts).Analyze(context.Background(), symbols)
	require.NoError(t, err)

	seqCSV, err := report.ToTable(seq)
	require.NoError(t, err)
	parCSV, err := report.ToTable(par)
	require.NoError(t, err)

	assert.Equal(t, string(seqCSV), string(parCSV))
	assert.Equal(t, seq.TotalStocks, par.TotalStocks)
	assert.Equal(t, seq.Skipped, par.Skipped)
	assertInvariants(t, par)

	// records keep input order
	for i := 1; i < len(par.Records); i++ {
		assert.Less(t, par.Records[i-1].Bar.Symbol, par.Records[i].Bar.Symbol)
	}
}

func TestAnalyze_PacesProviderCalls(t *testing.T) {
	m := &collector.MockFetcher{
		Latest: map[string]*model.PriceBar{
			"A": latest("A", 9, 11), "B": latest("B", 9, 11), "C": latest("C", 9, 11),
		},
		History: map[string]model.PriceHistory{
			"A": flatHistory("A", 60, 10), "B": flatHistory("B", 60, 10), "C": flatHistory("C", 60, 10),
		},
	}
	opts := testOptions()
	opts.Delay = 20 * time.Millisecond
	opts.Workers = 3

	s := New(m, opts, nil)
	start := time.Now()
	_, err := s.Analyze(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)

	// six calls, first one immediate
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestAnalyze_Cancelled(t *testing.T) {
	m, symbols := randomUniverse(5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestScreener(m, testOptions()).Analyze(ctx, symbols)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, 50, o.EMAPeriod)
	assert.Equal(t, 50, o.MinHistory)
	assert.Equal(t, 1, o.Workers)
	assert.Equal(t, 1, o.Retries)

	d := DefaultOptions()
	assert.Equal(t, time.Second, d.Delay)
}
