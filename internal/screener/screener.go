package screener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"EMAScreener/internal/calculator"
	"EMAScreener/internal/collector"
	"EMAScreener/internal/logging"
	"EMAScreener/internal/model"
	"EMAScreener/internal/strategy"
)

// Screener runs the fetch -> EMA -> qualify pipeline over a symbol universe.
type Screener struct {
	collector *collector.Collector
	opts      Options
	logger    *zap.Logger

	Now   func() time.Time
	NewID func() string
}

// New creates a Screener. All provider calls made through fetcher are paced
// by opts.Delay.
func New(fetcher collector.Fetcher, opts Options, logger *zap.Logger) *Screener {
	logger = logging.OrNop(logger)
	opts = opts.withDefaults()
	return &Screener{
		collector: collector.NewCollector(newPacedFetcher(fetcher, opts.Delay), logger),
		opts:      opts,
		logger:    logger,
		Now:       time.Now,
		NewID:     uuid.NewString,
	}
}

// Options returns the effective options.
func (s *Screener) Options() Options { return s.opts }

// outcome is the per-symbol result; exactly one field is set.
type outcome struct {
	record *model.QualificationRecord
	skip   *model.SkippedSymbol
}

// Analyze screens symbols and returns the finalized report. A failing symbol
// is recorded as skipped and never aborts the batch; only context
// cancellation returns an error.
func (s *Screener) Analyze(ctx context.Context, symbols []string) (*model.AnalysisReport, error) {
	start := s.Now()
	runID := s.NewID()
	symbols = uniqueSymbols(symbols)

	s.logger.Info("screen started",
		zap.String("run_id", runID),
		zap.Int("symbols", len(symbols)),
		zap.Int("workers", s.opts.Workers),
		zap.Duration("delay", s.opts.Delay))

	results := make([]outcome, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.analyzeSymbol(gctx, symbol)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("screen aborted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("screen aborted: %w", err)
	}

	analyzed := make([]model.QualificationRecord, 0, len(symbols))
	var skipped []model.SkippedSymbol
	for _, r := range results {
		switch {
		case r.record != nil:
			analyzed = append(analyzed, *r.record)
		case r.skip != nil:
			skipped = append(skipped, *r.skip)
		}
	}

	rep := model.NewAnalysisReport(runID, start, analyzed, skipped)
	s.logger.Info("screen complete",
		zap.String("run_id", runID),
		zap.Int("total", rep.TotalStocks),
		zap.Int("qualifying", rep.QualifyingStocks),
		zap.Int("skipped", len(rep.Skipped)),
		zap.Duration("elapsed", s.Now().Sub(start)))
	return rep, nil
}

func (s *Screener) analyzeSymbol(ctx context.Context, symbol string) outcome {
	log := s.logger.With(zap.String("symbol", symbol))

	snap, err := s.collect(ctx, symbol)
	if err != nil {
		log.Warn("skipping symbol: data unavailable", zap.Error(err))
		return skip(symbol, model.SkipDataUnavailable, err.Error())
	}

	if n := len(snap.History); n < s.opts.MinHistory {
		log.Info("skipping symbol: insufficient history",
			zap.Int("bars", n), zap.Int("required", s.opts.MinHistory))
		return skip(symbol, model.SkipInsufficientHistory,
			fmt.Sprintf("%d bars, need %d", n, s.opts.MinHistory))
	}

	if limit := s.opts.Gap.MaxCalendarGapDays; limit > 0 {
		if gap := LargestGapDays(snap.History); gap > limit {
			log.Info("skipping symbol: history gap", zap.Int("gap_days", gap), zap.Int("limit", limit))
			return skip(symbol, model.SkipGapTooLarge,
				fmt.Sprintf("%d-day gap exceeds %d", gap, limit))
		}
	}

	ema, err := calculator.LatestEMA(snap.History.Closes(), s.opts.EMAPeriod)
	if err != nil {
		log.Info("skipping symbol: ema unavailable", zap.Error(err))
		return skip(symbol, model.SkipInsufficientHistory, err.Error())
	}

	rec := strategy.Qualify(snap.Latest, ema)
	log.Debug("symbol analyzed",
		zap.Float64("ema", ema),
		zap.Float64("low", rec.Bar.Low),
		zap.Float64("close", rec.Bar.Close),
		zap.Bool("qualifies", rec.Qualifies))
	return outcome{record: &rec}
}

// collect fetches with up to Retries attempts. Empty data is not retried.
func (s *Screener) collect(ctx context.Context, symbol string) (*collector.Snapshot, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.Retries; attempt++ {
		snap, err := s.collector.Collect(ctx, symbol, s.opts.LookbackDays)
		if err == nil {
			return snap, nil
		}
		lastErr = err
		if errors.Is(err, collector.ErrNoData) || ctx.Err() != nil || attempt == s.opts.Retries {
			break
		}
		s.logger.Debug("fetch failed, retrying",
			zap.String("symbol", symbol), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.opts.RetryDelay):
		}
	}
	return nil, lastErr
}

func skip(symbol string, reason model.SkipReason, detail string) outcome {
	return outcome{skip: &model.SkippedSymbol{Symbol: symbol, Reason: reason, Detail: detail}}
}

// LargestGapDays returns the widest calendar-day distance between consecutive bars.
func LargestGapDays(h model.PriceHistory) int {
	largest := 0
	for i := 1; i < len(h); i++ {
		d := int(h[i].Date.Sub(h[i-1].Date).Hours() / 24)
		if d > largest {
			largest = d
		}
	}
	return largest
}

// uniqueSymbols trims, drops blanks and keeps the first occurrence of each symbol.
func uniqueSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
