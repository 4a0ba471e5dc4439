package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nkassim/perpmm/internal/domain"
)

// RunStore implements domain.RunStore using PostgreSQL. It is the
// supplemental persistence path for backtest/simulate results; the JSON and
// CSV file export the CLI always performs does not depend on it.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a new RunStore backed by the given connection pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// SaveRun inserts or replaces a completed run record.
func (s *RunStore) SaveRun(ctx context.Context, run domain.BacktestRun) error {
	payload, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("postgres: marshal run result: %w", err)
	}

	const query = `
		INSERT INTO backtest_runs (id, kind, started_at, ended_at, num_bars, result)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at,
			num_bars = EXCLUDED.num_bars,
			result = EXCLUDED.result`

	if _, err := s.pool.Exec(ctx, query,
		run.ID, run.Kind, run.StartedAt, run.EndedAt, run.NumBars, payload,
	); err != nil {
		return fmt.Errorf("postgres: save run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns the most recent runs of the given kind, newest first.
// An empty kind matches every kind.
func (s *RunStore) ListRuns(ctx context.Context, kind string, limit int) ([]domain.BacktestRun, error) {
	query := `SELECT id, kind, started_at, ended_at, num_bars, result FROM backtest_runs`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = $1`
		args = append(args, kind)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.BacktestRun
	for rows.Next() {
		var run domain.BacktestRun
		var payload []byte
		if err := rows.Scan(&run.ID, &run.Kind, &run.StartedAt, &run.EndedAt, &run.NumBars, &payload); err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		if err := json.Unmarshal(payload, &run.Result); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal run %s result: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

var _ domain.RunStore = (*RunStore)(nil)
