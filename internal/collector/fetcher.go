package collector

import (
	"context"
	"errors"

	"EMAScreener/internal/model"
)

// ErrNoData is returned when a provider answers successfully but has no usable bars.
var ErrNoData = errors.New("no data returned")

// Fetcher defines the interface for fetching daily market data.
type Fetcher interface {
	// FetchLatestBar returns the most recent completed daily bar.
	FetchLatestBar(ctx context.Context, symbol string) (*model.PriceBar, error)
	// FetchHistory returns daily bars covering roughly the last lookbackDays calendar days.
	FetchHistory(ctx context.Context, symbol string, lookbackDays int) (model.PriceHistory, error)
	Name() string
}
