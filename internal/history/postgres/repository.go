package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dbxbench/dbxbench/internal/history"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) RecordRun(ctx context.Context, run history.Run) error {
	if strings.TrimSpace(run.RunID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(run.Scenario) == "" {
		return fmt.Errorf("scenario is required")
	}

	query := `
INSERT INTO benchmark_run (run_id, scenario, status, seconds, started_at, result_file, error_text)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
ON CONFLICT (run_id, scenario) DO UPDATE
SET status = EXCLUDED.status,
    seconds = EXCLUDED.seconds,
    result_file = EXCLUDED.result_file,
    error_text = EXCLUDED.error_text,
    recorded_at = NOW()`
	if _, err := r.db.ExecContext(ctx, query,
		run.RunID,
		run.Scenario,
		run.Status,
		run.Seconds,
		run.StartedAt.UTC(),
		run.ResultFile,
		run.Error,
	); err != nil {
		return fmt.Errorf("record run %s/%s: %w", run.RunID, run.Scenario, err)
	}
	return nil
}

func (r *Repository) ListRuns(ctx context.Context, filter history.ListFilter) ([]history.Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = history.DefaultListLimit
	}

	query := `
SELECT run_id, scenario, status, seconds, started_at, result_file, COALESCE(error_text, ''), recorded_at
FROM benchmark_run
WHERE ($1 = '' OR scenario = $1)
ORDER BY started_at DESC, scenario ASC
LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, filter.Scenario, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []history.Run
	for rows.Next() {
		var run history.Run
		if err := rows.Scan(
			&run.RunID,
			&run.Scenario,
			&run.Status,
			&run.Seconds,
			&run.StartedAt,
			&run.ResultFile,
			&run.Error,
			&run.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
