package calculator

import (
	"errors"
	"math"

	"EMAScreener/internal/model"
)

// CalculateEMA returns the exponential moving average of prices, aligned to
// the input. The value at period-1 is seeded with the SMA of the first period
// prices; earlier entries are absent (NaN). Inputs shorter than period return
// ErrInsufficientData.
func CalculateEMA(prices []float64, period int) (model.EMASeries, error) {
	if period <= 0 {
		return nil, errors.New("period must be positive")
	}
	if len(prices) < period {
		return nil, ErrInsufficientData
	}

	seed, err := CalculateSMA(prices[:period], period)
	if err != nil {
		return nil, err
	}

	series := make(model.EMASeries, len(prices))
	for i := 0; i < period-1; i++ {
		series[i] = math.NaN()
	}
	series[period-1] = seed

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(prices); i++ {
		series[i] = (prices[i]-series[i-1])*multiplier + series[i-1]
	}
	return series, nil
}

// LatestEMA returns the last value of the EMA over prices.
func LatestEMA(prices []float64, period int) (float64, error) {
	series, err := CalculateEMA(prices, period)
	if err != nil {
		return 0, err
	}
	v, _ := series.Latest()
	return v, nil
}
