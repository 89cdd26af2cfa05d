package strategy

import "EMAScreener/internal/model"

// Qualify applies the EMA pullback rule to the latest bar: the day's low
// must trade strictly below the EMA and the close must finish strictly above it.
func Qualify(bar model.PriceBar, ema50 float64) model.QualificationRecord {
	return model.QualificationRecord{
		Bar:       bar,
		EMA50:     ema50,
		Qualifies: bar.Low < ema50 && bar.Close > ema50,
	}
}
