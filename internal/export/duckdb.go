package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"
)

type FileSummary struct {
	Rows                int64
	DistinctExperiments int64
	Columns             []string
}

// InspectParquet reads a local parquet file with an in-memory DuckDB and
// reports its row count and shape.
func InspectParquet(ctx context.Context, path string) (FileSummary, error) {
	if strings.TrimSpace(path) == "" {
		return FileSummary{}, fmt.Errorf("parquet path is required")
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return FileSummary{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	source := "read_parquet(" + quoteString(path) + ")"
	viewSQL := "CREATE OR REPLACE VIEW assignments AS SELECT * FROM " + source
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		return FileSummary{}, fmt.Errorf("open parquet %q: %w", path, err)
	}

	columns, err := viewColumns(ctx, db)
	if err != nil {
		return FileSummary{}, err
	}

	summary := FileSummary{Columns: columns}
	countSQL := "SELECT count(*) FROM assignments"
	if containsString(columns, "experiment_id") {
		countSQL = "SELECT count(*), count(DISTINCT experiment_id) FROM assignments"
		err = db.QueryRowContext(ctx, countSQL).Scan(&summary.Rows, &summary.DistinctExperiments)
	} else {
		err = db.QueryRowContext(ctx, countSQL).Scan(&summary.Rows)
	}
	if err != nil {
		return FileSummary{}, fmt.Errorf("count parquet rows: %w", err)
	}
	return summary, nil
}

func CountParquetRows(ctx context.Context, path string) (int64, error) {
	summary, err := InspectParquet(ctx, path)
	if err != nil {
		return 0, err
	}
	return summary.Rows, nil
}

func viewColumns(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT * FROM assignments LIMIT 0")
	if err != nil {
		return nil, fmt.Errorf("describe parquet: %w", err)
	}
	defer func() { _ = rows.Close() }()
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("parquet columns: %w", err)
	}
	return columns, nil
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
