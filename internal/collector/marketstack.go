package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"EMAScreener/internal/httputil"
	"EMAScreener/internal/logging"
	"EMAScreener/internal/model"
)

const DefaultMarketstackURL = "https://api.marketstack.com/v2"

// MarketstackFetcher implements Fetcher using the Marketstack end-of-day REST API.
type MarketstackFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	Retry   httputil.RetryConfig
	Logger  *zap.Logger
	Now     func() time.Time
}

// NewMarketstackFetcher creates a new fetcher with optional proxy support.
func NewMarketstackFetcher(baseURL, apiKey, proxyURL string, logger *zap.Logger) *MarketstackFetcher {
	if baseURL == "" {
		baseURL = DefaultMarketstackURL
	}
	retry := httputil.DefaultRetry
	retry.Logger = logging.OrNop(logger)
	return &MarketstackFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  newHTTPClient(proxyURL),
		Retry:   retry,
		Logger:  logging.OrNop(logger),
		Now:     time.Now,
	}
}

func (f *MarketstackFetcher) Name() string { return "marketstack" }

// msBar is the JSON shape of one Marketstack EOD row.
type msBar struct {
	Symbol   string   `json:"symbol"`
	Name     string   `json:"name"`
	Exchange string   `json:"exchange"`
	Date     string   `json:"date"`
	Open     *float64 `json:"open"`
	High     *float64 `json:"high"`
	Low      *float64 `json:"low"`
	Close    *float64 `json:"close"`
	Volume   *float64 `json:"volume"`
}

type msResponse struct {
	Data  []msBar `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (f *MarketstackFetcher) FetchLatestBar(ctx context.Context, symbol string) (*model.PriceBar, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	bars, err := f.fetch(ctx, "/eod/latest", params)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("marketstack: %s: %w", symbol, ErrNoData)
	}
	latest := bars[0]
	for _, b := range bars[1:] {
		if b.Date.After(latest.Date) {
			latest = b
		}
	}
	return &latest, nil
}

func (f *MarketstackFetcher) FetchHistory(ctx context.Context, symbol string, lookbackDays int) (model.PriceHistory, error) {
	now := f.Now().UTC()
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("date_from", now.AddDate(0, 0, -lookbackDays).Format("2006-01-02"))
	params.Set("date_to", now.Format("2006-01-02"))
	params.Set("sort", "ASC")
	params.Set("limit", "1000")
	return f.fetch(ctx, "/eod", params)
}

func (f *MarketstackFetcher) fetch(ctx context.Context, path string, params url.Values) (model.PriceHistory, error) {
	params.Set("access_key", f.APIKey)
	endpoint := f.BaseURL + path + "?" + params.Encode()

	resp, err := httputil.Do(ctx, f.Client, f.Retry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("marketstack fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("marketstack: status %d, body: %s", resp.StatusCode, string(body))
	}

	var result msResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("marketstack decode: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("marketstack api error: %s: %s", result.Error.Code, result.Error.Message)
	}

	bars := make(model.PriceHistory, 0, len(result.Data))
	for _, mb := range result.Data {
		if mb.Close == nil || len(mb.Date) < 10 {
			continue // partial row
		}
		date, err := time.Parse("2006-01-02", mb.Date[:10])
		if err != nil {
			f.Logger.Debug("skipping row with bad date", zap.String("date", mb.Date))
			continue
		}
		var volume int64
		if mb.Volume != nil {
			volume = int64(math.Round(*mb.Volume))
		}
		bars = append(bars, model.PriceBar{
			Symbol:   mb.Symbol,
			Name:     mb.Name,
			Exchange: mb.Exchange,
			Date:     date,
			Open:     deref(mb.Open),
			High:     deref(mb.High),
			Low:      deref(mb.Low),
			Close:    *mb.Close,
			Volume:   volume,
		})
	}
	return bars, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
