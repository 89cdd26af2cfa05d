package model

import "time"

// SkipReason explains why a symbol was not analyzed.
type SkipReason string

const (
	SkipDataUnavailable     SkipReason = "DATA_UNAVAILABLE"
	SkipInsufficientHistory SkipReason = "INSUFFICIENT_HISTORY"
	SkipGapTooLarge         SkipReason = "GAP_TOO_LARGE"
)

// Comparison labels used in reports.
const (
	LabelAbove = "Above"
	LabelBelow = "Below"
)

// QualificationRecord is the per-symbol result of the EMA pullback rule.
type QualificationRecord struct {
	Bar       PriceBar
	EMA50     float64
	Qualifies bool
}

// LowVsEMA is "Below" when the low is strictly under the EMA.
func (r QualificationRecord) LowVsEMA() string {
	if r.Bar.Low < r.EMA50 {
		return LabelBelow
	}
	return LabelAbove
}

// CloseVsEMA is "Above" when the close is strictly over the EMA.
func (r QualificationRecord) CloseVsEMA() string {
	if r.Bar.Close > r.EMA50 {
		return LabelAbove
	}
	return LabelBelow
}

// SkippedSymbol records a symbol that did not reach the qualifier.
type SkippedSymbol struct {
	Symbol string
	Reason SkipReason
	Detail string
}

// AnalysisReport is the immutable result of one batch run.
type AnalysisReport struct {
	RunID            string
	RunDate          time.Time
	TotalStocks      int
	QualifyingStocks int
	Records          []QualificationRecord // qualifying only, input order
	Skipped          []SkippedSymbol
}

// NewAnalysisReport builds a report from the finalized per-symbol results.
// analyzed holds every successfully analyzed symbol in input order; only
// qualifying records are kept, and both counts derive from the same slice.
func NewAnalysisReport(runID string, runDate time.Time, analyzed []QualificationRecord, skipped []SkippedSymbol) *AnalysisReport {
	records := make([]QualificationRecord, 0, len(analyzed))
	for _, r := range analyzed {
		if r.Qualifies {
			records = append(records, r)
		}
	}
	return &AnalysisReport{
		RunID:            runID,
		RunDate:          runDate,
		TotalStocks:      len(analyzed),
		QualifyingStocks: len(records),
		Records:          records,
		Skipped:          skipped,
	}
}
