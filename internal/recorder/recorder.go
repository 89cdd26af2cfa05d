package recorder

import (
	"context"
	"time"

	"EMAScreener/internal/model"
)

// RunRecord is one persisted batch run.
type RunRecord struct {
	RunID            string
	RunDate          time.Time
	Provider         string
	TotalStocks      int
	QualifyingStocks int
	SkippedStocks    int
	Artifact         string
	Qualifying       []string
	RecordedAt       time.Time
}

// StatusQualifies marks a qualifying symbol; skipped symbols store their skip reason.
const StatusQualifies = "QUALIFIES"

// Recorder persists run history for later inspection.
type Recorder interface {
	RecordRun(ctx context.Context, rep *model.AnalysisReport, provider, artifact string) error
	LastRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}

// symbolRow is the flattened per-symbol row written by both SQL backends.
// Only qualifying records and skips are kept by the report, so analyzed
// non-qualifying symbols are not stored.
type symbolRow struct {
	symbol string
	status string
	low    float64
	close  float64
	ema50  float64
	detail string
}

func symbolRows(rep *model.AnalysisReport) []symbolRow {
	rows := make([]symbolRow, 0, len(rep.Records)+len(rep.Skipped))
	for _, r := range rep.Records {
		rows = append(rows, symbolRow{
			symbol: r.Bar.Symbol,
			status: StatusQualifies,
			low:    r.Bar.Low,
			close:  r.Bar.Close,
			ema50:  r.EMA50,
		})
	}
	for _, s := range rep.Skipped {
		rows = append(rows, symbolRow{symbol: s.Symbol, status: string(s.Reason), detail: s.Detail})
	}
	return rows
}
