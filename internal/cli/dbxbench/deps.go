package dbxbench

import (
	"context"
	"fmt"

	"github.com/dbxbench/dbxbench/internal/bench"
	"github.com/dbxbench/dbxbench/internal/history"
	"github.com/dbxbench/dbxbench/internal/history/postgres"
	"github.com/dbxbench/dbxbench/internal/scenarios"
	"github.com/dbxbench/dbxbench/internal/spark"
	"github.com/dbxbench/dbxbench/internal/sqlconn"
	"github.com/dbxbench/dbxbench/internal/storage"
	"github.com/dbxbench/dbxbench/internal/storage/s3"
	"github.com/dbxbench/dbxbench/internal/workspace"
)

type commander struct {
	opts    Options
	closers []func() error
}

func (c *commander) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
}

func (c *commander) workspaceAPI() (workspace.API, error) {
	if c.opts.Workspace != nil {
		return c.opts.Workspace, nil
	}
	if err := c.opts.Config.RequireWorkspace(); err != nil {
		return nil, err
	}
	client, err := workspace.NewSDKClient(c.opts.Config.Databricks.WorkspaceURL(), c.opts.Config.Databricks.Token)
	if err != nil {
		return nil, err
	}
	c.opts.Workspace = client
	return client, nil
}

func (c *commander) checker(api workspace.API) *workspace.Checker {
	return &workspace.Checker{
		API:          api,
		PollInterval: c.opts.Config.Health.PollInterval,
		Logger:       c.opts.Logger,
	}
}

func (c *commander) historyRecorder(ctx context.Context) (history.Recorder, error) {
	if c.opts.History != nil {
		return c.opts.History, nil
	}
	cfg := c.opts.Config.History
	if cfg.DSN == "" {
		return nil, nil
	}
	db, err := postgres.Open(ctx, postgres.DBConfig{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, db.Close)
	c.opts.History = postgres.NewRepository(db)
	return c.opts.History, nil
}

func (c *commander) artifactStore(ctx context.Context) (storage.ArtifactStore, error) {
	if c.opts.Artifacts != nil {
		return c.opts.Artifacts, nil
	}
	cfg := c.opts.Config.Artifacts
	if !cfg.Enabled() {
		return nil, nil
	}
	mirror, err := s3.New(ctx, s3.Config{
		Endpoint:         cfg.Endpoint,
		Region:           cfg.Region,
		Bucket:           cfg.Bucket,
		AccessKeyID:      cfg.AccessKeyID,
		SecretAccessKey:  cfg.SecretAccessKey,
		UseSSL:           cfg.UseSSL,
		Prefix:           cfg.Prefix,
		AutoCreateBucket: cfg.AutoCreateBucket,
	})
	if err != nil {
		return nil, err
	}
	c.opts.Artifacts = mirror
	return mirror, nil
}

// scenarioEnv wires every client a scenario may need. Optional sinks
// (history, artifacts) stay nil when unconfigured.
func (c *commander) scenarioEnv(ctx context.Context, runID string) (*scenarios.Env, error) {
	cfg := c.opts.Config
	api, err := c.workspaceAPI()
	if err != nil {
		return nil, fmt.Errorf("workspace client: %w", err)
	}
	checker := c.checker(api)

	sqlOpener := c.opts.SQL
	if sqlOpener == nil {
		sqlOpener = &sqlconn.Opener{
			Config: sqlconn.Config{
				ServerHostname: cfg.Databricks.ServerHostname(),
				AccessToken:    cfg.Databricks.Token,
				Catalog:        cfg.Databricks.Catalog,
			},
			Health: checker,
			Logger: c.opts.Logger,
		}
	}
	sparkOpener := c.opts.Spark
	if sparkOpener == nil {
		sparkOpener = &spark.Opener{
			Config: spark.Config{
				ServerHostname: cfg.Databricks.ServerHostname(),
				AccessToken:    cfg.Databricks.Token,
				ClusterID:      cfg.Databricks.ClusterID,
			},
			Cluster: checker,
			Logger:  c.opts.Logger,
		}
	}

	recorder, err := c.historyRecorder(ctx)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	artifacts, err := c.artifactStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("artifact mirror: %w", err)
	}

	return &scenarios.Env{
		Databricks: cfg.Databricks,
		ResultsDir: cfg.Paths.ResultsDir,
		DataDir:    cfg.Paths.DataDir,
		RunID:      runID,
		Workspace:  api,
		Health:     checker,
		SQL:        sqlOpener,
		Spark:      sparkOpener,
		Runner:     &bench.Runner{Logger: c.opts.Logger},
		Artifacts:  artifacts,
		History:    recorder,
		Out:        c.opts.Stdout,
		Logger:     c.opts.Logger,
	}, nil
}
