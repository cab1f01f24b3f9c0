package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/strobe-loadgen/pkg/postgres"
)

// Store persists run summaries in PostgreSQL. EnsureSchema creates:
//
//	CREATE TABLE ingest_runs (
//	    run_id      TEXT PRIMARY KEY,
//	    schema      TEXT NOT NULL,
//	    target      TEXT NOT NULL,
//	    data        JSONB NOT NULL,
//	    finished_at TIMESTAMPTZ NOT NULL
//	);
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: logger.WithComponent("run-store"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS ingest_runs (
			run_id      TEXT PRIMARY KEY,
			schema      TEXT NOT NULL,
			target      TEXT NOT NULL,
			data        JSONB NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL
		)`); err != nil {
			return fmt.Errorf("creating ingest_runs: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`CREATE INDEX IF NOT EXISTS ingest_runs_finished_at ON ingest_runs (finished_at DESC)`,
		); err != nil {
			return fmt.Errorf("creating ingest_runs index: %w", err)
		}
		return nil
	})
}

func (*Store) Name() string { return "postgres" }

// Record upserts the summary for its run id.
func (s *Store) Record(ctx context.Context, sum Summary) error {
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO ingest_runs (run_id, schema, target, data, finished_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (run_id) DO UPDATE SET data = EXCLUDED.data, finished_at = EXCLUDED.finished_at`,
		sum.RunID, sum.Schema, sum.Target, data, sum.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", sum.RunID, err)
	}
	s.logger.Debug("run summary saved", "run_id", sum.RunID)
	return nil
}

// LatestRun returns the most recently finished run, or nil if there is none.
func (s *Store) LatestRun(ctx context.Context) (*Summary, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM ingest_runs ORDER BY finished_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest run: %w", err)
	}
	var sum Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, fmt.Errorf("unmarshaling run: %w", err)
	}
	return &sum, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM ingest_runs ORDER BY finished_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		var sum Summary
		if err := json.Unmarshal(data, &sum); err != nil {
			return nil, fmt.Errorf("unmarshaling run: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
