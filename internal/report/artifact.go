package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"EMAScreener/internal/model"
)

// Filename returns the artifact name for a run: <base>_<YYYY-MM-DD>.csv.
func Filename(base string, runDate time.Time) string {
	return fmt.Sprintf("%s_%s.csv", base, runDate.Format(dateLayout))
}

// Save serializes rep into dir and returns the written path and bytes. The
// file is written to a temporary name first so a failed run never leaves a
// partial artifact behind.
func Save(dir, base string, rep *model.AnalysisReport) (string, []byte, error) {
	data, err := ToTable(rep)
	if err != nil {
		return "", nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, Filename(base, rep.RunDate))
	tmp, err := os.CreateTemp(dir, ".report-*.csv")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", nil, fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", nil, fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", nil, fmt.Errorf("rename report: %w", err)
	}
	return path, data, nil
}

// Summary carries the numbers handed to delivery collaborators.
type Summary struct {
	RunID            string
	RunDate          time.Time
	TotalStocks      int
	QualifyingStocks int
	SkippedStocks    int
	Qualifying       []string
	Filename         string
}

// NewSummary extracts delivery values from a finalized report.
func NewSummary(rep *model.AnalysisReport, filename string) Summary {
	symbols := make([]string, len(rep.Records))
	for i, r := range rep.Records {
		symbols[i] = r.Bar.Symbol
	}
	return Summary{
		RunID:            rep.RunID,
		RunDate:          rep.RunDate,
		TotalStocks:      rep.TotalStocks,
		QualifyingStocks: rep.QualifyingStocks,
		SkippedStocks:    len(rep.Skipped),
		Qualifying:       symbols,
		Filename:         filename,
	}
}
