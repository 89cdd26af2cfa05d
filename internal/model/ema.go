package model

import "math"

// EMASeries is aligned to its price input. Entries before the warm-up index are NaN.
type EMASeries []float64

// Defined reports whether the value at i is present.
func (s EMASeries) Defined(i int) bool {
	return i >= 0 && i < len(s) && !math.IsNaN(s[i])
}

// Latest returns the last value of the series.
func (s EMASeries) Latest() (float64, bool) {
	if len(s) == 0 || !s.Defined(len(s)-1) {
		return math.NaN(), false
	}
	return s[len(s)-1], true
}
