package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("dbxbench", mapLookup(map[string]string{"USER": "ada"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.Databricks.WarehouseID != DefaultWarehouseID {
		t.Fatalf("WarehouseID = %q", cfg.Databricks.WarehouseID)
	}
	if cfg.Databricks.Catalog != "us_mle_ada_gold" {
		t.Fatalf("Catalog = %q", cfg.Databricks.Catalog)
	}
	if cfg.Databricks.WorkspaceOutputPath != "/Workspace/Users/ada@forhims.com/swolness_pamphlet/assignments" {
		t.Fatalf("WorkspaceOutputPath = %q", cfg.Databricks.WorkspaceOutputPath)
	}
	if cfg.Health.PollInterval != 20*time.Second {
		t.Fatalf("PollInterval = %v", cfg.Health.PollInterval)
	}
	if cfg.Paths.ResultsDir != "results" {
		t.Fatalf("ResultsDir = %q", cfg.Paths.ResultsDir)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Artifacts.Enabled() {
		t.Fatal("artifact mirror should be disabled by default")
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("dbxbench", mapLookup(map[string]string{"DBXBENCH_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Observability.LogJSON {
		t.Fatal("LogJSON should default to true in prod")
	}
	if !cfg.Artifacts.UseSSL {
		t.Fatal("Artifacts.UseSSL should default to true in prod")
	}
	if cfg.Artifacts.AutoCreateBucket {
		t.Fatal("Artifacts.AutoCreateBucket should default to false in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"DBXBENCH_PROFILE":                   "test",
		"USER":                               "ada",
		"DATABRICKS_HOST":                    "https://dbc-123.cloud.databricks.com/",
		"DATABRICKS_TOKEN":                   "dapi-1",
		"DATABRICKS_CLUSTER_ID":              "0101-abc",
		"DATABRICKS_WAREHOUSE_ID":            "wh-9",
		"CATALOG":                            "custom_catalog",
		"TABLE_NAME":                         "my_table",
		"DBXBENCH_ROOT":                      "/srv/bench",
		"DBXBENCH_DATA_DIR":                  "/tmp/data",
		"DBXBENCH_POLL_INTERVAL":             "3s",
		"DBXBENCH_HISTORY_DSN":               "postgres://example",
		"DBXBENCH_HISTORY_MAX_OPEN_CONNS":    "4",
		"DBXBENCH_ARTIFACTS_ENDPOINT":        "s3.example.com",
		"DBXBENCH_ARTIFACTS_BUCKET":          "bench",
		"DBXBENCH_ARTIFACTS_USE_SSL":         "true",
		"DBXBENCH_PUSHGATEWAY_URL":           "http://push:9091",
		"DBXBENCH_LOG_LEVEL":                 "debug",
		"DBXBENCH_LOG_JSON":                  "true",
		"DBXBENCH_WORKSPACE_OUTPUT_PATH":     "/Workspace/tmp/out",
		"DBXBENCH_ARTIFACTS_PREFIX":          "runs",
		"DBXBENCH_HISTORY_CONN_MAX_LIFETIME": "5m",
	})
	cfg, err := Load("dbxbench", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Databricks.ServerHostname() != "dbc-123.cloud.databricks.com" {
		t.Fatalf("ServerHostname() = %q", cfg.Databricks.ServerHostname())
	}
	if cfg.Databricks.WorkspaceURL() != "https://dbc-123.cloud.databricks.com" {
		t.Fatalf("WorkspaceURL() = %q", cfg.Databricks.WorkspaceURL())
	}
	if cfg.Databricks.ClusterID != "0101-abc" || cfg.Databricks.WarehouseID != "wh-9" {
		t.Fatalf("ids = %q/%q", cfg.Databricks.ClusterID, cfg.Databricks.WarehouseID)
	}
	if cfg.Databricks.Catalog != "custom_catalog" {
		t.Fatalf("Catalog = %q", cfg.Databricks.Catalog)
	}
	if cfg.Databricks.CustomTableName != "my_table" {
		t.Fatalf("CustomTableName = %q", cfg.Databricks.CustomTableName)
	}
	if cfg.Databricks.WorkspaceOutputPath != "/Workspace/tmp/out" {
		t.Fatalf("WorkspaceOutputPath = %q", cfg.Databricks.WorkspaceOutputPath)
	}
	if cfg.Paths.ResultsDir != filepath.Join("/srv/bench", "results") {
		t.Fatalf("ResultsDir = %q", cfg.Paths.ResultsDir)
	}
	if cfg.Paths.DataDir != "/tmp/data" {
		t.Fatalf("DataDir = %q", cfg.Paths.DataDir)
	}
	if cfg.Health.PollInterval != 3*time.Second {
		t.Fatalf("PollInterval = %v", cfg.Health.PollInterval)
	}
	if cfg.History.DSN != "postgres://example" || cfg.History.MaxOpenConns != 4 {
		t.Fatalf("History = %+v", cfg.History)
	}
	if cfg.History.ConnMaxLifetime != 5*time.Minute {
		t.Fatalf("ConnMaxLifetime = %v", cfg.History.ConnMaxLifetime)
	}
	if !cfg.Artifacts.Enabled() || !cfg.Artifacts.UseSSL || cfg.Artifacts.Prefix != "runs" {
		t.Fatalf("Artifacts = %+v", cfg.Artifacts)
	}
	if cfg.Metrics.PushgatewayURL != "http://push:9091" {
		t.Fatalf("PushgatewayURL = %q", cfg.Metrics.PushgatewayURL)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug || !cfg.Observability.LogJSON {
		t.Fatalf("Observability = %+v", cfg.Observability)
	}
	if err := cfg.RequireCluster(); err != nil {
		t.Fatalf("RequireCluster() error = %v", err)
	}
}

func TestLoadFallsBackToLegacyClusterKey(t *testing.T) {
	cfg, err := Load("dbxbench", mapLookup(map[string]string{
		"CLUSTER_ID":            "legacy-1",
		"DATABRICKS_CLUSTER_ID": "  ",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Databricks.ClusterID != "legacy-1" {
		t.Fatalf("ClusterID = %q", cfg.Databricks.ClusterID)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"DBXBENCH_PROFILE":           "staging",
		"DBXBENCH_POLL_INTERVAL":     "soon",
		"DBXBENCH_LOG_LEVEL":         "verbose",
		"DBXBENCH_ARTIFACTS_USE_SSL": "maybe",
	}
	for key, value := range cases {
		if _, err := Load("dbxbench", mapLookup(map[string]string{key: value})); err == nil {
			t.Fatalf("expected error for %s=%q", key, value)
		}
	}
	if _, err := Load("dbxbench", mapLookup(map[string]string{"DBXBENCH_POLL_INTERVAL": "0s"})); err == nil {
		t.Fatal("expected error for zero poll interval")
	}
}

func TestRequireWorkspace(t *testing.T) {
	cfg, err := Load("dbxbench", mapLookup(map[string]string{"DATABRICKS_HOST": "h"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.RequireWorkspace(); err == nil {
		t.Fatal("expected missing token error")
	}
	if err := cfg.RequireCluster(); err == nil {
		t.Fatal("expected missing credentials error")
	}
}

func TestLoadDotEnvOverridesAndToleratesMissingFile(t *testing.T) {
	dir := t.TempDir()
	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv(missing) error = %v", err)
	}

	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DBXBENCH_DOTENV_CHECK=from-file\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("DBXBENCH_DOTENV_CHECK", "from-process")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("DBXBENCH_DOTENV_CHECK"); got != "from-file" {
		t.Fatalf("DBXBENCH_DOTENV_CHECK = %q", got)
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
