package model

import "time"

// RunState is the persisted summary of the last completed batch.
type RunState struct {
	LastRunID        string    `json:"last_run_id"`
	LastRunDate      string    `json:"last_run_date"` // YYYY-MM-DD
	TotalStocks      int       `json:"total_stocks"`
	QualifyingStocks int       `json:"qualifying_stocks"`
	SkippedStocks    int       `json:"skipped_stocks"`
	Artifact         string    `json:"artifact"`
	Running          bool      `json:"running"`
	StartedAt        time.Time `json:"started_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
