package scenarios

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dbxbench/dbxbench/internal/bench"
	"github.com/dbxbench/dbxbench/internal/query"
	"github.com/dbxbench/dbxbench/internal/spark"
	"github.com/dbxbench/dbxbench/internal/sqlconn"
)

func init() {
	register(Scenario{
		Name:        "cluster_dbx_parquet",
		Description: "Cluster + Spark Connect: write the query result as parquet to the workspace",
		Target:      TargetCluster,
		run:         runClusterParquet,
	})
	register(Scenario{
		Name:        "cluster_dbx_unity_catalog",
		Description: "Cluster + Spark Connect: materialize a Unity Catalog table",
		Target:      TargetCluster,
		run:         runClusterUnityCatalog,
	})
	register(Scenario{
		Name:        "cluster_sql_new_table",
		Description: "Cluster + SQL connector: CREATE OR REPLACE TABLE AS",
		Target:      TargetCluster,
		run:         clusterCTAS("swolness_cluster_sql_new", query.FormatDefault),
	})
	register(Scenario{
		Name:        "cluster_sql_delta_table",
		Description: "Cluster + SQL connector: CREATE OR REPLACE TABLE USING DELTA AS",
		Target:      TargetCluster,
		run:         clusterCTAS("swolness_cluster_sql_delta", query.FormatDelta),
	})
	register(Scenario{
		Name:        "cluster_sql_custom",
		Description: "Cluster + SQL connector: CTAS into TABLE_NAME, timing connection setup too",
		Target:      TargetCluster,
		run:         runClusterCustom,
	})
}

func runClusterParquet(ctx context.Context, env *Env, measure Measure) error {
	outputPath := strings.TrimSpace(env.Databricks.WorkspaceOutputPath)
	if outputPath == "" {
		return fmt.Errorf("workspace output path is required")
	}
	session, err := env.openSpark(ctx)
	if err != nil {
		return err
	}
	defer env.stopSession(ctx, session)

	_, err = measure(func(ctx context.Context) error {
		df, err := session.SQL(ctx, query.Query)
		if err != nil {
			return fmt.Errorf("run query: %w", err)
		}
		if err := df.Save(ctx, "overwrite", spark.ParquetV2Format, outputPath); err != nil {
			return fmt.Errorf("write parquet to %s: %w", outputPath, err)
		}
		return nil
	})
	return err
}

func runClusterUnityCatalog(ctx context.Context, env *Env, measure Measure) error {
	statement, err := query.CreateTableAs(env.Databricks.Catalog, "swolness_cluster_dbx_uc", query.FormatDefault)
	if err != nil {
		return err
	}
	session, err := env.openSpark(ctx)
	if err != nil {
		return err
	}
	defer env.stopSession(ctx, session)

	_, err = measure(func(ctx context.Context) error {
		if _, err := session.SQL(ctx, statement); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
		return nil
	})
	return err
}

func clusterCTAS(table string, format query.TableFormat) func(context.Context, *Env, Measure) error {
	return func(ctx context.Context, env *Env, measure Measure) error {
		statement, err := query.CreateTableAs(env.Databricks.Catalog, table, format)
		if err != nil {
			return err
		}
		httpPath, err := env.clusterHTTPPath(ctx)
		if err != nil {
			return err
		}
		db, err := env.openSQL(ctx, httpPath)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		_, err = measure(func(ctx context.Context) error {
			return sqlconn.Exec(ctx, db, statement)
		})
		return err
	}
}

// runClusterCustom times the workspace lookup and connection as well as the
// statement. The cluster is brought up before the timer starts so a cold
// start is not counted.
func runClusterCustom(ctx context.Context, env *Env, measure Measure) error {
	table := strings.TrimSpace(env.Databricks.CustomTableName)
	if table == "" {
		return fmt.Errorf("TABLE_NAME is required")
	}
	statement, err := query.CreateTableAs(env.Databricks.Catalog, table, query.FormatDefault)
	if err != nil {
		return err
	}
	target := query.FullTableName(env.Databricks.Catalog, table)
	if err := env.waitForCluster(ctx); err != nil {
		return err
	}

	var db *sql.DB
	fmt.Fprintln(env.Out, "Starting benchmark (including connection setup)...")
	report, err := measure(func(ctx context.Context) error {
		httpPath, err := env.clusterHTTPPath(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "Connecting to cluster at %s...\n", env.Databricks.ServerHostname())
		fmt.Fprintf(env.Out, "Using cluster ID: %s\n", env.Databricks.ClusterID)
		fmt.Fprintf(env.Out, "Cluster HTTP path: %s\n", httpPath)
		fmt.Fprintf(env.Out, "Target table: %s\n", target)

		db, err = env.connectSQL(ctx, httpPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "Executing: CREATE OR REPLACE TABLE %s AS ...\n", target)
		return sqlconn.Exec(ctx, db, statement)
	})
	if err != nil {
		fmt.Fprintf(env.Out, "\nERROR after %.2fs:\n   %v\n", report.Seconds(), err)
	} else {
		fmt.Fprintf(env.Out, "\nSUCCESS - Total time (connection + query): %.1fs\n", report.Seconds())
		fmt.Fprintf(env.Out, "   Table location: %s\n", target)
		env.printBaseline(report)
	}
	if db != nil {
		_ = db.Close()
		fmt.Fprintln(env.Out, "\nConnection closed.")
	}
	return err
}

// customBaselines are the scenarios the custom cluster run is compared with.
var customBaselines = []string{"cluster_sql_new_table", "cluster_sql_delta_table"}

// printBaseline compares a custom run with the latest recorded results of the
// SQL connector cluster scenarios.
func (e *Env) printBaseline(report bench.Report) {
	fmt.Fprintln(e.Out, "\nCompare to baseline:")
	width := len(scriptLabel(report.Scenario))
	for _, name := range customBaselines {
		width = max(width, len(scriptLabel(name)))
	}
	for _, name := range customBaselines {
		fmt.Fprintf(e.Out, "   %-*s %s\n", width, scriptLabel(name), e.recordedTime(name))
	}
	fmt.Fprintf(e.Out, "   %-*s %.1fs (custom cluster)\n", width, scriptLabel(report.Scenario), report.Seconds())
}

func (e *Env) recordedTime(name string) string {
	body, err := os.ReadFile(filepath.Join(e.ResultsDir, name+".txt"))
	if err != nil {
		return "no result"
	}
	outcome, ok := bench.ParseResult(string(body))
	switch {
	case !ok:
		return "no result"
	case !outcome.OK:
		return "crashed after " + outcome.Seconds + "s"
	default:
		return outcome.Seconds + "s"
	}
}

func scriptLabel(name string) string {
	return "bench_" + name + ".py:"
}

func (e *Env) stopSession(ctx context.Context, session spark.Session) {
	if err := session.Stop(); err != nil {
		e.Logger.WarnContext(ctx, "stop spark session failed", slog.Any("error", err))
	}
}
