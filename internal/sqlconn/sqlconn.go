// Package sqlconn opens database/sql handles on Databricks warehouses and
// clusters through the SQL connector, after the target is known to be healthy.
package sqlconn

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	dbsql "github.com/databricks/databricks-sql-go"
	dbsqlctx "github.com/databricks/databricks-sql-go/driverctx"
)

const userAgentEntry = "dbxbench"

// HealthChecker waits until the resource behind an http path is usable.
type HealthChecker interface {
	WaitForSQLResource(ctx context.Context, httpPath string) error
}

type Config struct {
	ServerHostname string
	AccessToken    string
	Catalog        string
	Schema         string
}

type Opener struct {
	Config Config
	Health HealthChecker
	Logger *slog.Logger
	// OpenDB builds the handle for an http path. Defaults to the Databricks
	// SQL driver.
	OpenDB func(cfg Config, httpPath string) (*sql.DB, error)
}

// Open checks the target resource, then connects. The caller closes the
// returned handle.
func (o *Opener) Open(ctx context.Context, httpPath string) (*sql.DB, error) {
	if strings.TrimSpace(httpPath) == "" {
		return nil, fmt.Errorf("http path is required")
	}
	if o.Health != nil {
		if err := o.Health.WaitForSQLResource(ctx, httpPath); err != nil {
			return nil, fmt.Errorf("check sql resource health: %w", err)
		}
	}
	return o.Connect(ctx, httpPath)
}

// Connect opens and pings a handle without checking the resource first.
func (o *Opener) Connect(ctx context.Context, httpPath string) (*sql.DB, error) {
	if strings.TrimSpace(httpPath) == "" {
		return nil, fmt.Errorf("http path is required")
	}
	openDB := o.OpenDB
	if openDB == nil {
		openDB = openDatabricks
	}
	db, err := openDB(o.Config, httpPath)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to %s%s: %w", o.Config.ServerHostname, httpPath, err)
	}
	if o.Logger != nil {
		o.Logger.InfoContext(ctx, "sql connection established",
			slog.String("host", o.Config.ServerHostname),
			slog.String("http_path", httpPath),
			slog.String("catalog", o.Config.Catalog),
		)
	}
	return db, nil
}

func openDatabricks(cfg Config, httpPath string) (*sql.DB, error) {
	if strings.TrimSpace(cfg.ServerHostname) == "" {
		return nil, fmt.Errorf("server hostname is required")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, fmt.Errorf("access token is required")
	}
	schema := cfg.Schema
	if schema == "" {
		schema = "default"
	}
	connector, err := dbsql.NewConnector(
		dbsql.WithServerHostname(cfg.ServerHostname),
		dbsql.WithPort(443),
		dbsql.WithHTTPPath(httpPath),
		dbsql.WithAccessToken(cfg.AccessToken),
		dbsql.WithInitialNamespace(cfg.Catalog, schema),
		dbsql.WithUserAgentEntry(userAgentEntry),
	)
	if err != nil {
		return nil, fmt.Errorf("create sql connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

// WithCorrelationID tags driver requests made under ctx so server-side query
// history can be matched to a benchmark run.
func WithCorrelationID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return dbsqlctx.NewContextWithCorrelationId(ctx, runID)
}

// Exec runs a statement that returns no rows, such as CREATE TABLE AS.
func Exec(ctx context.Context, db *sql.DB, statement string) error {
	if _, err := db.ExecContext(ctx, statement); err != nil {
		return fmt.Errorf("execute statement: %w", err)
	}
	return nil
}
