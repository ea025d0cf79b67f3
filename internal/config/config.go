package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const DefaultWarehouseID = "749a06d455c0aa5b"

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	Databricks    DatabricksConfig
	Paths         PathsConfig
	Health        HealthConfig
	History       HistoryConfig
	Artifacts     ArtifactsConfig
	Metrics       MetricsConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type DatabricksConfig struct {
	Host                string
	Token               string
	ClusterID           string
	WarehouseID         string
	Catalog             string
	User                string
	CustomTableName     string
	WorkspaceOutputPath string
}

// ServerHostname is the host without scheme or trailing slash, as the SQL
// connector and Spark Connect expect it.
func (d DatabricksConfig) ServerHostname() string {
	host := strings.TrimSpace(d.Host)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimRight(host, "/")
}

// WorkspaceURL is the host with an https scheme, as the workspace API expects it.
func (d DatabricksConfig) WorkspaceURL() string {
	hostname := d.ServerHostname()
	if hostname == "" {
		return ""
	}
	return "https://" + hostname
}

type PathsConfig struct {
	Root       string
	ResultsDir string
	DataDir    string
	README     string
}

type HealthConfig struct {
	PollInterval time.Duration
}

type HistoryConfig struct {
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type ArtifactsConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// Enabled reports whether an artifact mirror is configured.
func (a ArtifactsConfig) Enabled() bool {
	return a.Endpoint != "" && a.Bucket != ""
}

type MetricsConfig struct {
	PushgatewayURL string
	JobName        string
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

// LoadFromEnv loads <root>/.env into the process environment, overriding any
// existing values, and then reads the configuration from it.
func LoadFromEnv(serviceName string) (Config, error) {
	root := strings.TrimSpace(os.Getenv("DBXBENCH_ROOT"))
	if root == "" {
		root = "."
	}
	if err := LoadDotEnv(filepath.Join(root, ".env")); err != nil {
		return Config{}, err
	}
	return Load(serviceName, os.LookupEnv)
}

// LoadDotEnv applies a dotenv file with override semantics. A missing file is
// not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Overload(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("DBXBENCH_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid DBXBENCH_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	if err := applyString(lookup, "USER", &cfg.Databricks.User); err != nil {
		return Config{}, err
	}
	if cfg.Databricks.User != "" {
		cfg.Databricks.Catalog = fmt.Sprintf("us_mle_%s_gold", cfg.Databricks.User)
		cfg.Databricks.WorkspaceOutputPath = fmt.Sprintf("/Workspace/Users/%s@forhims.com/swolness_pamphlet/assignments", cfg.Databricks.User)
	}

	if err := applyString(lookup, "DATABRICKS_HOST", &cfg.Databricks.Host); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DATABRICKS_TOKEN", &cfg.Databricks.Token); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "CLUSTER_ID", &cfg.Databricks.ClusterID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DATABRICKS_CLUSTER_ID", &cfg.Databricks.ClusterID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DATABRICKS_WAREHOUSE_ID", &cfg.Databricks.WarehouseID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "CATALOG", &cfg.Databricks.Catalog); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TABLE_NAME", &cfg.Databricks.CustomTableName); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DBXBENCH_WORKSPACE_OUTPUT_PATH", &cfg.Databricks.WorkspaceOutputPath); err != nil {
		return Config{}, err
	}

	if err := applyString(lookup, "DBXBENCH_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DBXBENCH_ROOT", &cfg.Paths.Root); err != nil {
		return Config{}, err
	}
	cfg.Paths.ResultsDir = filepath.Join(cfg.Paths.Root, "results")
	cfg.Paths.DataDir = filepath.Join(cfg.Paths.Root, "data")
	cfg.Paths.README = filepath.Join(cfg.Paths.Root, "README.md")
	if err := applyString(lookup, "DBXBENCH_RESULTS_DIR", &cfg.Paths.ResultsDir); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DBXBENCH_DATA_DIR", &cfg.Paths.DataDir); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DBXBENCH_README", &cfg.Paths.README); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DBXBENCH_POLL_INTERVAL", &cfg.Health.PollInterval); err != nil {
		return Config{}, err
	}

	if err := applyString(lookup, "DBXBENCH_HISTORY_DSN", &cfg.History.DSN); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "DBXBENCH_HISTORY_MAX_OPEN_CONNS", &cfg.History.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if err := applyDuration(lookup, "DBXBENCH_HISTORY_CONN_MAX_LIFETIME", &cfg.History.ConnMaxLifetime); err != nil {
		return Config{}, err
	}

	if err := applyString(lookup, "DBXBENCH_ARTIFACTS_ENDPOINT", &cfg.Artifacts.Endpoint); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DBXBENCH_ARTIFACTS_REGION", &cfg.Artifacts.Region); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DBXBENCH_ARTIFACTS_BUCKET", &cfg.Artifacts.Bucket); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DBXBENCH_ARTIFACTS_ACCESS_KEY", &cfg.Artifacts.AccessKeyID); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DBXBENCH_ARTIFACTS_SECRET_KEY", &cfg.Artifacts.SecretAccessKey); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DBXBENCH_ARTIFACTS_USE_SSL", &cfg.Artifacts.UseSSL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DBXBENCH_ARTIFACTS_PREFIX", &cfg.Artifacts.Prefix); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "DBXBENCH_ARTIFACTS_AUTO_CREATE_BUCKET", &cfg.Artifacts.AutoCreateBucket); err != nil {
		return Config{}, err
	}

	if err := applyString(lookup, "DBXBENCH_PUSHGATEWAY_URL", &cfg.Metrics.PushgatewayURL); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "DBXBENCH_PUSHGATEWAY_JOB", &cfg.Metrics.JobName); err != nil {
		return Config{}, err
	}

	if err := applyBool(lookup, "DBXBENCH_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return Config{}, err
	}
	if err := applyLogLevel(lookup, "DBXBENCH_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return Config{}, err
	}

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.Health.PollInterval <= 0 {
		return Config{}, fmt.Errorf("invalid DBXBENCH_POLL_INTERVAL: must be positive")
	}
	return cfg, nil
}

// RequireWorkspace checks the credentials every remote path needs.
func (c Config) RequireWorkspace() error {
	if c.Databricks.ServerHostname() == "" {
		return fmt.Errorf("DATABRICKS_HOST is required")
	}
	if c.Databricks.Token == "" {
		return fmt.Errorf("DATABRICKS_TOKEN is required")
	}
	return nil
}

// RequireCluster additionally checks for a cluster id.
func (c Config) RequireCluster() error {
	if err := c.RequireWorkspace(); err != nil {
		return err
	}
	if c.Databricks.ClusterID == "" {
		return fmt.Errorf("DATABRICKS_CLUSTER_ID is required")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "dbxbench"},
		Databricks: DatabricksConfig{
			WarehouseID:     DefaultWarehouseID,
			CustomTableName: "swolness_cluster_sql_custom",
		},
		Paths: PathsConfig{
			Root: ".",
		},
		Health: HealthConfig{
			PollInterval: 20 * time.Second,
		},
		History: HistoryConfig{
			MaxOpenConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Artifacts: ArtifactsConfig{
			Region:           "us-east-1",
			Prefix:           "dbxbench",
			AutoCreateBucket: true,
		},
		Metrics: MetricsConfig{
			JobName: "dbxbench",
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelInfo,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.Health.PollInterval = 10 * time.Millisecond
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogJSON = true
		cfg.Artifacts.UseSSL = true
		cfg.Artifacts.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil
	}
	*dst = value
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
