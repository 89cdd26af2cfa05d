package collector

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"EMAScreener/internal/logging"
	"EMAScreener/internal/model"
)

// Snapshot is the normalized provider output for one symbol.
type Snapshot struct {
	Latest  model.PriceBar
	History model.PriceHistory
}

// Collector fetches and normalizes per-symbol data from a Fetcher.
type Collector struct {
	Fetcher Fetcher
	Logger  *zap.Logger
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, logger *zap.Logger) *Collector {
	return &Collector{Fetcher: fetcher, Logger: logging.OrNop(logger)}
}

// Collect fetches the latest bar and the lookback history for symbol.
func (c *Collector) Collect(ctx context.Context, symbol string, lookbackDays int) (*Snapshot, error) {
	latest, err := c.Fetcher.FetchLatestBar(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch latest bar: %w", err)
	}
	if latest == nil || !validBar(*latest) {
		return nil, fmt.Errorf("fetch latest bar: %w", ErrNoData)
	}
	bar := *latest
	if bar.Symbol == "" {
		bar.Symbol = symbol
	}

	raw, err := c.Fetcher.FetchHistory(ctx, symbol, lookbackDays)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	history := Normalize(raw)
	if len(history) == 0 {
		return nil, fmt.Errorf("fetch history: %w", ErrNoData)
	}
	if dropped := len(raw) - len(history); dropped > 0 {
		c.Logger.Debug("dropped unusable history bars",
			zap.String("symbol", symbol), zap.Int("dropped", dropped))
	}

	return &Snapshot{Latest: bar, History: history}, nil
}

// Normalize drops bars without a usable close, sorts ascending by date and
// removes duplicate dates, keeping the later entry.
func Normalize(bars model.PriceHistory) model.PriceHistory {
	out := make(model.PriceHistory, 0, len(bars))
	for _, b := range bars {
		if b.Date.IsZero() || !finitePositive(b.Close) {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	dedup := out[:0]
	for _, b := range out {
		if n := len(dedup); n > 0 && model.SameDay(dedup[n-1].Date, b.Date) {
			dedup[n-1] = b
			continue
		}
		dedup = append(dedup, b)
	}
	return dedup
}

// validBar requires a date, a positive low and close, and finite open/high
// so the bar can always be written to a report.
func validBar(b model.PriceBar) bool {
	return !b.Date.IsZero() && finitePositive(b.Close) && finitePositive(b.Low) &&
		finite(b.Open) && finite(b.High)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finitePositive(v float64) bool {
	return finite(v) && v > 0
}
