package screener

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"EMAScreener/internal/collector"
	"EMAScreener/internal/model"
)

// pacedFetcher makes every provider call wait on a shared limiter so the
// configured spacing holds across all workers.
type pacedFetcher struct {
	collector.Fetcher
	limiter *rate.Limiter
}

func newPacedFetcher(f collector.Fetcher, delay time.Duration) *pacedFetcher {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &pacedFetcher{Fetcher: f, limiter: rate.NewLimiter(limit, 1)}
}

func (p *pacedFetcher) FetchLatestBar(ctx context.Context, symbol string) (*model.PriceBar, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.Fetcher.FetchLatestBar(ctx, symbol)
}

func (p *pacedFetcher) FetchHistory(ctx context.Context, symbol string, lookbackDays int) (model.PriceHistory, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.Fetcher.FetchHistory(ctx, symbol, lookbackDays)
}
