package recorder

import (
	"context"

	"EMAScreener/internal/model"
)

// NoopRecorder is a no-op implementation used when no database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(context.Context, *model.AnalysisReport, string, string) error {
	return nil
}
func (n *NoopRecorder) LastRuns(context.Context, int) ([]RunRecord, error) { return nil, nil }
func (n *NoopRecorder) Close() error                                       { return nil }
