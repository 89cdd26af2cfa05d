package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"EMAScreener/internal/logging"
	"EMAScreener/internal/model"
)

const dateLayout = "2006-01-02"

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	logger = logging.OrNop(logger)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the history command read while a run is writing.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id            TEXT NOT NULL UNIQUE,
			run_date          TEXT NOT NULL,
			recorded_at       INTEGER NOT NULL,
			provider          TEXT,
			total_stocks      INTEGER,
			qualifying_stocks INTEGER,
			skipped_stocks    INTEGER,
			artifact          TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_date ON runs(run_date)`,

		`CREATE TABLE IF NOT EXISTS run_symbols (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id  TEXT NOT NULL,
			symbol  TEXT NOT NULL,
			status  TEXT NOT NULL,
			low     REAL,
			close   REAL,
			ema50   REAL,
			detail  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_symbols_run ON run_symbols(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordRun(ctx context.Context, rep *model.AnalysisReport, provider, artifact string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(run_id, run_date, recorded_at, provider, total_stocks, qualifying_stocks, skipped_stocks, artifact)
		VALUES (?,?,?,?,?,?,?,?)`,
		rep.RunID, rep.RunDate.Format(dateLayout), time.Now().Unix(), provider,
		rep.TotalStocks, rep.QualifyingStocks, len(rep.Skipped), artifact,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, row := range symbolRows(rep) {
		_, err := tx.ExecContext(ctx, `INSERT INTO run_symbols
			(run_id, symbol, status, low, close, ema50, detail)
			VALUES (?,?,?,?,?,?,?)`,
			rep.RunID, row.symbol, row.status, row.low, row.close, row.ema50, row.detail,
		)
		if err != nil {
			return fmt.Errorf("insert symbol %s: %w", row.symbol, err)
		}
	}
	return tx.Commit()
}

// LastRuns returns up to limit runs, newest first.
func (r *SQLiteRecorder) LastRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `SELECT run_id, run_date, recorded_at, provider,
		total_stocks, qualifying_stocks, skipped_stocks, artifact
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	var runs []RunRecord
	for rows.Next() {
		var (
			rec        RunRecord
			runDate    string
			recordedAt int64
		)
		if err := rows.Scan(&rec.RunID, &runDate, &recordedAt, &rec.Provider,
			&rec.TotalStocks, &rec.QualifyingStocks, &rec.SkippedStocks, &rec.Artifact); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.RunDate, _ = time.Parse(dateLayout, runDate)
		rec.RecordedAt = time.Unix(recordedAt, 0)
		runs = append(runs, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		syms, err := r.qualifying(ctx, runs[i].RunID)
		if err != nil {
			return nil, err
		}
		runs[i].Qualifying = syms
	}
	return runs, nil
}

func (r *SQLiteRecorder) qualifying(ctx context.Context, runID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT symbol FROM run_symbols WHERE run_id = ? AND status = ? ORDER BY id`,
		runID, StatusQualifies)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}
