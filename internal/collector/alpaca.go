package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"go.uber.org/zap"

	"EMAScreener/internal/logging"
	"EMAScreener/internal/model"
)

// alpacaBars is the subset of the market data client used here.
type alpacaBars interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetLatestBar(symbol string, req marketdata.GetLatestBarRequest) (*marketdata.Bar, error)
}

// alpacaAssets resolves a symbol's name and listing exchange.
type alpacaAssets interface {
	GetAsset(symbol string) (*alpaca.Asset, error)
}

// AlpacaFetcher implements Fetcher using the Alpaca market data API.
// Bars are requested unadjusted.
type AlpacaFetcher struct {
	bars   alpacaBars
	assets alpacaAssets
	logger *zap.Logger
	now    func() time.Time
}

// NewAlpacaFetcher creates a fetcher from API credentials. baseURL is the
// trading API used for asset lookups (paper or live).
func NewAlpacaFetcher(apiKey, apiSecret, baseURL string, logger *zap.Logger) *AlpacaFetcher {
	return &AlpacaFetcher{
		bars: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
		assets: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
		logger: logging.OrNop(logger),
		now:    time.Now,
	}
}

func (f *AlpacaFetcher) Name() string { return "alpaca" }

func (f *AlpacaFetcher) describe(symbol string) (name, exchange string) {
	asset, err := f.assets.GetAsset(symbol)
	if err != nil || asset == nil {
		f.logger.Debug("asset lookup failed", zap.String("symbol", symbol), zap.Error(err))
		return "", ""
	}
	return asset.Name, string(asset.Exchange)
}

func (f *AlpacaFetcher) FetchLatestBar(ctx context.Context, symbol string) (*model.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bar, err := f.bars.GetLatestBar(symbol, marketdata.GetLatestBarRequest{})
	if err != nil {
		return nil, fmt.Errorf("alpaca latest bar: %w", err)
	}
	if bar == nil {
		return nil, fmt.Errorf("alpaca: %s: %w", symbol, ErrNoData)
	}
	name, exchange := f.describe(symbol)
	pb := toPriceBar(symbol, name, exchange, *bar)
	return &pb, nil
}

func (f *AlpacaFetcher) FetchHistory(ctx context.Context, symbol string, lookbackDays int) (model.PriceHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	end := f.now().UTC()
	bars, err := f.bars.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: marketdata.Raw,
		Start:      end.AddDate(0, 0, -lookbackDays),
		End:        end,
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca bars: %w", err)
	}
	history := make(model.PriceHistory, len(bars))
	for i, b := range bars {
		history[i] = toPriceBar(symbol, "", "", b)
	}
	return history, nil
}

func toPriceBar(symbol, name, exchange string, b marketdata.Bar) model.PriceBar {
	d := b.Timestamp.UTC()
	return model.PriceBar{
		Symbol:   symbol,
		Name:     name,
		Exchange: exchange,
		Date:     time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC),
		Open:     b.Open,
		High:     b.High,
		Low:      b.Low,
		Close:    b.Close,
		Volume:   int64(b.Volume),
	}
}
