// Package spark opens Spark Connect sessions on a Databricks cluster.
package spark

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	sparksql "github.com/apache/spark-connect-go/v35/spark/sql"
)

// ParquetV2Format names the parquet data source by its V2 class. Some runtime
// versions cannot resolve the short "parquet" name from a Connect session.
const ParquetV2Format = "org.apache.spark.sql.execution.datasources.v2.parquet.ParquetDataSourceV2"

type Session interface {
	SQL(ctx context.Context, query string) (DataFrame, error)
	Stop() error
}

type DataFrame interface {
	Save(ctx context.Context, mode, format, path string) error
}

type ClusterChecker interface {
	WaitForCluster(ctx context.Context, clusterID string) error
}

type Config struct {
	ServerHostname string
	AccessToken    string
	ClusterID      string
}

type Opener struct {
	Config  Config
	Cluster ClusterChecker
	Logger  *slog.Logger
	// Connect builds a session from a remote connection string. Defaults to
	// the Spark Connect Go client.
	Connect func(ctx context.Context, remote string) (Session, error)
}

func (o *Opener) Open(ctx context.Context) (Session, error) {
	if strings.TrimSpace(o.Config.ClusterID) == "" {
		return nil, fmt.Errorf("cluster id is required")
	}
	if o.Cluster != nil {
		if err := o.Cluster.WaitForCluster(ctx, o.Config.ClusterID); err != nil {
			return nil, fmt.Errorf("check cluster health: %w", err)
		}
	}
	remote, err := RemoteURL(o.Config)
	if err != nil {
		return nil, err
	}
	connect := o.Connect
	if connect == nil {
		connect = connectSparkConnect
	}
	session, err := connect(ctx, remote)
	if err != nil {
		return nil, fmt.Errorf("create spark session: %w", err)
	}
	if o.Logger != nil {
		o.Logger.InfoContext(ctx, "spark session established",
			slog.String("host", o.Config.ServerHostname),
			slog.String("cluster_id", o.Config.ClusterID),
		)
	}
	return session, nil
}

// RemoteURL renders the sc:// connection string for a Databricks cluster.
func RemoteURL(cfg Config) (string, error) {
	if strings.TrimSpace(cfg.ServerHostname) == "" {
		return "", fmt.Errorf("server hostname is required")
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return "", fmt.Errorf("access token is required")
	}
	if strings.TrimSpace(cfg.ClusterID) == "" {
		return "", fmt.Errorf("cluster id is required")
	}
	return fmt.Sprintf("sc://%s:443/;use_ssl=true;token=%s;x-databricks-cluster-id=%s",
		cfg.ServerHostname,
		url.QueryEscape(cfg.AccessToken),
		url.QueryEscape(cfg.ClusterID),
	), nil
}

func connectSparkConnect(ctx context.Context, remote string) (Session, error) {
	session, err := sparksql.NewSessionBuilder().Remote(remote).Build(ctx)
	if err != nil {
		return nil, err
	}
	return &connectSession{session: session}, nil
}

type connectSession struct {
	session sparksql.SparkSession
}

func (s *connectSession) SQL(ctx context.Context, query string) (DataFrame, error) {
	df, err := s.session.Sql(ctx, query)
	if err != nil {
		return nil, err
	}
	return &connectDataFrame{df: df}, nil
}

func (s *connectSession) Stop() error {
	return s.session.Stop()
}

type connectDataFrame struct {
	df sparksql.DataFrame
}

func (d *connectDataFrame) Save(ctx context.Context, mode, format, path string) error {
	return d.df.Writer().Mode(mode).Format(format).Save(ctx, path)
}
