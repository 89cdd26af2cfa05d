package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"EMAScreener/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
// Symbols without explicit data get a generated series around Price.
type MockFetcher struct {
	Price   float64
	Latest  map[string]*model.PriceBar
	History map[string]model.PriceHistory
	Errors  map[string]error

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockFetcher) Name() string { return "mock" }

// Calls returns how many provider calls were made for symbol.
func (m *MockFetcher) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

func (m *MockFetcher) record(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[symbol]++
	return m.Errors[symbol]
}

func (m *MockFetcher) FetchLatestBar(_ context.Context, symbol string) (*model.PriceBar, error) {
	if err := m.record(symbol); err != nil {
		return nil, err
	}
	if m.Latest != nil {
		bar, ok := m.Latest[symbol]
		if !ok {
			return nil, fmt.Errorf("mock: %s: %w", symbol, ErrNoData)
		}
		return bar, nil
	}
	bars := generateMockBars(symbol, m.Price, 1)
	return &bars[0], nil
}

func (m *MockFetcher) FetchHistory(_ context.Context, symbol string, lookbackDays int) (model.PriceHistory, error) {
	if err := m.record(symbol); err != nil {
		return nil, err
	}
	if m.History != nil {
		h, ok := m.History[symbol]
		if !ok {
			return nil, fmt.Errorf("mock: %s: %w", symbol, ErrNoData)
		}
		return h, nil
	}
	return generateMockBars(symbol, m.Price, lookbackDays), nil
}

func generateMockBars(symbol string, basePrice float64, count int) model.PriceHistory {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	bars := make(model.PriceHistory, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.PriceBar{
			Symbol:   symbol,
			Name:     symbol + " Inc.",
			Exchange: "MOCK",
			Date:     today.AddDate(0, 0, -(count - 1 - i)),
			Open:     p * 0.999,
			High:     p * 1.005,
			Low:      p * 0.995,
			Close:    p,
			Volume:   1000000,
		}
	}
	return bars
}
