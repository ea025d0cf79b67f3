package scenarios

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dbxbench/dbxbench/internal/export"
	"github.com/dbxbench/dbxbench/internal/observability"
	"github.com/dbxbench/dbxbench/internal/query"
	"github.com/dbxbench/dbxbench/internal/sqlconn"
	"github.com/dbxbench/dbxbench/internal/storage"
	"github.com/dbxbench/dbxbench/internal/workspace"
)

const downloadFileName = "assignments.parquet"

func init() {
	register(Scenario{
		Name:        "warehouse_sql_materialize",
		Description: "Warehouse + SQL connector: CREATE OR REPLACE TABLE AS",
		Target:      TargetWarehouse,
		run:         runWarehouseMaterialize,
	})
	register(Scenario{
		Name:        "warehouse_sql_download",
		Description: "Warehouse + SQL connector: download the result to local parquet",
		Target:      TargetWarehouse,
		run:         runWarehouseDownload,
	})
}

func runWarehouseMaterialize(ctx context.Context, env *Env, measure Measure) error {
	statement, err := query.CreateTableAs(env.Databricks.Catalog, "swolness_warehouse_sql", query.FormatDefault)
	if err != nil {
		return err
	}
	db, err := env.openWarehouse(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	_, err = measure(func(ctx context.Context) error {
		return sqlconn.Exec(ctx, db, statement)
	})
	return err
}

// runWarehouseDownload times the fetch and the local parquet write, then
// checks the file with DuckDB and mirrors it when a store is configured. A
// failed check turns the run into a crash.
func runWarehouseDownload(ctx context.Context, env *Env, measure Measure) error {
	if strings.TrimSpace(env.DataDir) == "" {
		return fmt.Errorf("data dir is required")
	}
	target := filepath.Join(env.DataDir, downloadFileName)

	db, err := env.openWarehouse(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var encoded export.EncodeResult
	report, err := measure(func(ctx context.Context) error {
		rows, err := db.QueryContext(ctx, query.Query)
		if err != nil {
			return fmt.Errorf("run query: %w", err)
		}
		assignments, err := export.ScanAssignments(rows)
		if err != nil {
			return err
		}
		encoded, err = export.WriteParquetFile(target, assignments)
		if err != nil {
			return err
		}
		observability.AddExportedRows(encoded.RecordCount)
		fmt.Fprintf(env.Out, "Saved %d rows to %s\n", encoded.RecordCount, target)
		return nil
	})
	if err != nil {
		return err
	}

	count, err := export.CountParquetRows(ctx, target)
	if err != nil {
		return fmt.Errorf("verify %s: %w", target, err)
	}
	if count != encoded.RecordCount {
		return fmt.Errorf("verify %s: file has %d rows, wrote %d", target, count, encoded.RecordCount)
	}
	attrs := []any{slog.String("path", target), slog.Int64("rows", count)}
	if encoded.MinExposureTime != nil && encoded.MaxExposureTime != nil {
		attrs = append(attrs,
			slog.Time("min_exposure_time", *encoded.MinExposureTime),
			slog.Time("max_exposure_time", *encoded.MaxExposureTime),
		)
	}
	env.Logger.InfoContext(ctx, "verified parquet file", attrs...)

	if env.Artifacts != nil && env.RunID != "" {
		info, err := env.mirror(ctx, report.StartedAt, report.Scenario, target, storage.ContentTypeParquet)
		if err != nil {
			env.Logger.WarnContext(ctx, "mirror parquet file failed", slog.String("path", target), slog.Any("error", err))
			return nil
		}
		env.Logger.InfoContext(ctx, "mirrored parquet file", slog.String("key", info.Key), slog.Int64("bytes", info.Size))
	}
	return nil
}

func (e *Env) openWarehouse(ctx context.Context) (*sql.DB, error) {
	warehouseID := strings.TrimSpace(e.Databricks.WarehouseID)
	if warehouseID == "" {
		return nil, fmt.Errorf("warehouse id is required")
	}
	return e.openSQL(ctx, workspace.WarehouseHTTPPath(warehouseID))
}
