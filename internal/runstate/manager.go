package runstate

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"EMAScreener/internal/logging"
	"EMAScreener/internal/model"
	"EMAScreener/internal/report"
)

var (
	// ErrRunning is returned by Begin while another batch holds the run.
	ErrRunning = errors.New("a screen is already running")
	// ErrAlreadyDone is returned by Begin when the date was already screened.
	ErrAlreadyDone = errors.New("screen already completed for this date")
)

// StaleAfter is how long a running flag survives before it is treated as
// left over from a crashed process.
const StaleAfter = 6 * time.Hour

const dateLayout = "2006-01-02"

// Manager guards batch runs and persists the last completed run.
type Manager struct {
	mu       sync.Mutex
	state    *model.RunState
	filePath string
	logger   *zap.Logger

	Now func() time.Time
}

// NewManager creates a Manager, loading state from disk.
func NewManager(filePath string, logger *zap.Logger) (*Manager, error) {
	state, err := LoadState(filePath)
	if err != nil {
		return nil, err
	}
	return &Manager{state: state, filePath: filePath, logger: logging.OrNop(logger), Now: time.Now}, nil
}

// GetState returns a copy of the current run state.
func (m *Manager) GetState() model.RunState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.state
}

// Begin marks a run for runDate as started. Unless force is set, a date that
// already completed is refused with ErrAlreadyDone. A live run is always
// refused with ErrRunning.
func (m *Manager) Begin(runDate time.Time, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	if m.state.Running {
		if now.Sub(m.state.StartedAt) < StaleAfter {
			return fmt.Errorf("%w since %s", ErrRunning, m.state.StartedAt.Format(time.RFC3339))
		}
		m.logger.Warn("clearing stale running flag", zap.Time("started_at", m.state.StartedAt))
	}
	if !force && m.state.LastRunDate == runDate.Format(dateLayout) {
		return fmt.Errorf("%w: %s", ErrAlreadyDone, m.state.LastRunDate)
	}

	m.state.Running = true
	m.state.StartedAt = now
	return m.save()
}

// Finish records a completed run and releases the run flag.
func (m *Manager) Finish(sum report.Summary, artifact string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Running = false
	m.state.LastRunID = sum.RunID
	m.state.LastRunDate = sum.RunDate.Format(dateLayout)
	m.state.TotalStocks = sum.TotalStocks
	m.state.QualifyingStocks = sum.QualifyingStocks
	m.state.SkippedStocks = sum.SkippedStocks
	m.state.Artifact = artifact
	return m.save()
}

// Abort releases the run flag without touching the last completed run.
func (m *Manager) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Running = false
	if err := m.save(); err != nil {
		m.logger.Error("failed to save run state after abort", zap.Error(err))
	}
}

func (m *Manager) save() error {
	if err := SaveState(m.filePath, m.state); err != nil {
		return fmt.Errorf("save run state: %w", err)
	}
	return nil
}
