package model

import "time"

// PriceBar is one trading day's record for one symbol.
type PriceBar struct {
	Symbol   string
	Name     string
	Exchange string
	Date     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64
}

// PriceHistory holds daily bars for a single symbol, ascending by date.
type PriceHistory []PriceBar

// Closes returns the closing prices in bar order.
func (h PriceHistory) Closes() []float64 {
	closes := make([]float64, len(h))
	for i, b := range h {
		closes[i] = b.Close
	}
	return closes
}

// Latest returns the most recent bar, or false if the history is empty.
func (h PriceHistory) Latest() (PriceBar, bool) {
	if len(h) == 0 {
		return PriceBar{}, false
	}
	return h[len(h)-1], true
}

// SameDay reports whether two timestamps fall on the same calendar date (UTC).
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
