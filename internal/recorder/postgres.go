package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"EMAScreener/internal/logging"
	"EMAScreener/internal/model"
)

// PostgresRecorder persists run history to PostgreSQL.
type PostgresRecorder struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRecorder connects to dsn and creates the tables if needed.
func NewPostgresRecorder(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresRecorder, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 30 * time.Second

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	r := &PostgresRecorder{pool: pool, logger: logging.OrNop(logger)}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r.logger.Info("postgres recorder connected")
	return r, nil
}

func (r *PostgresRecorder) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS screen_runs (
			id                BIGSERIAL PRIMARY KEY,
			run_id            TEXT NOT NULL UNIQUE,
			run_date          DATE NOT NULL,
			recorded_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			provider          TEXT NOT NULL DEFAULT '',
			total_stocks      INTEGER NOT NULL,
			qualifying_stocks INTEGER NOT NULL,
			skipped_stocks    INTEGER NOT NULL,
			artifact          TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS screen_run_symbols (
			id      BIGSERIAL PRIMARY KEY,
			run_id  TEXT NOT NULL REFERENCES screen_runs(run_id) ON DELETE CASCADE,
			symbol  TEXT NOT NULL,
			status  TEXT NOT NULL,
			low     DOUBLE PRECISION,
			close   DOUBLE PRECISION,
			ema50   DOUBLE PRECISION,
			detail  TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_screen_run_symbols_run ON screen_run_symbols(run_id)`,
	}
	for _, s := range stmts {
		if _, err := r.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *PostgresRecorder) RecordRun(ctx context.Context, rep *model.AnalysisReport, provider, artifact string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO screen_runs
			(run_id, run_date, provider, total_stocks, qualifying_stocks, skipped_stocks, artifact)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			rep.RunID, rep.RunDate.Format(dateLayout), provider,
			rep.TotalStocks, rep.QualifyingStocks, len(rep.Skipped), artifact,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		batch := &pgx.Batch{}
		for _, row := range symbolRows(rep) {
			batch.Queue(`INSERT INTO screen_run_symbols
				(run_id, symbol, status, low, close, ema50, detail)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				rep.RunID, row.symbol, row.status, row.low, row.close, row.ema50, row.detail)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// LastRuns returns up to limit runs, newest first.
func (r *PostgresRecorder) LastRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.run_id, r.run_date, r.recorded_at, r.provider,
			r.total_stocks, r.qualifying_stocks, r.skipped_stocks, r.artifact,
			COALESCE(ARRAY(
				SELECT s.symbol FROM screen_run_symbols s
				WHERE s.run_id = r.run_id AND s.status = $2 ORDER BY s.id
			), '{}')
		FROM screen_runs r ORDER BY r.id DESC LIMIT $1`, limit, StatusQualifies)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.RunID, &rec.RunDate, &rec.RecordedAt, &rec.Provider,
			&rec.TotalStocks, &rec.QualifyingStocks, &rec.SkippedStocks, &rec.Artifact,
			&rec.Qualifying); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

func (r *PostgresRecorder) Close() error {
	r.pool.Close()
	return nil
}
