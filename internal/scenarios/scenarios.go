// Package scenarios defines the benchmark scenarios and runs them through the
// timing wrapper. Each scenario opens its connection, then measures only the
// statement it benchmarks.
package scenarios

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dbxbench/dbxbench/internal/bench"
	"github.com/dbxbench/dbxbench/internal/config"
	"github.com/dbxbench/dbxbench/internal/history"
	"github.com/dbxbench/dbxbench/internal/observability"
	"github.com/dbxbench/dbxbench/internal/spark"
	"github.com/dbxbench/dbxbench/internal/sqlconn"
	"github.com/dbxbench/dbxbench/internal/storage"
	"github.com/dbxbench/dbxbench/internal/workspace"
)

var ErrUnknownScenario = errors.New("unknown scenario")

const (
	TargetCluster   = "cluster"
	TargetWarehouse = "warehouse"
)

// SQLOpener opens SQL connector handles. Open waits for the resource to be
// healthy first; Connect does not.
type SQLOpener interface {
	Open(ctx context.Context, httpPath string) (*sql.DB, error)
	Connect(ctx context.Context, httpPath string) (*sql.DB, error)
}

type SparkOpener interface {
	Open(ctx context.Context) (spark.Session, error)
}

type ClusterWaiter interface {
	WaitForCluster(ctx context.Context, id string) error
}

// Measure runs body under the timing wrapper and returns its report.
type Measure func(body func(ctx context.Context) error) (bench.Report, error)

type Scenario struct {
	Name        string
	Description string
	Target      string
	run         func(ctx context.Context, env *Env, measure Measure) error
}

// Env carries the clients and settings every scenario draws from.
type Env struct {
	Databricks config.DatabricksConfig
	ResultsDir string
	DataDir    string
	RunID      string

	Workspace workspace.API
	Health    ClusterWaiter
	SQL       SQLOpener
	Spark     SparkOpener
	Runner    *bench.Runner
	Artifacts storage.ArtifactStore
	History   history.Recorder

	Out    io.Writer
	Logger *slog.Logger
	Clock  func() time.Time
}

func (e *Env) ensureDefaults() {
	if e.Runner == nil {
		e.Runner = &bench.Runner{Logger: e.Logger}
	}
	if e.History == nil {
		e.History = history.Nop{}
	}
	if e.Out == nil {
		e.Out = io.Discard
	}
	if e.Logger == nil {
		e.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.Clock == nil {
		e.Clock = time.Now
	}
}

// Run executes one scenario. Setup failures return before any result file is
// written. Failures inside the measured block, or in a check that follows it,
// are recorded as a crash and returned.
func (e *Env) Run(ctx context.Context, sc Scenario) (bench.Report, error) {
	e.ensureDefaults()
	resultFile, err := bench.ResultPath(e.ResultsDir, sc.Name)
	if err != nil {
		return bench.Report{}, err
	}
	ctx = observability.ContextWithRunID(ctx, e.RunID)
	ctx = sqlconn.WithCorrelationID(ctx, e.RunID)

	var (
		report   bench.Report
		measured bool
	)
	measure := func(body func(ctx context.Context) error) (bench.Report, error) {
		measured = true
		var runErr error
		if e.Runner.Clock == nil {
			e.Runner.Clock = e.Clock
		}
		report, runErr = e.Runner.Run(ctx, sc.Name, resultFile, body)
		return report, runErr
	}

	e.Logger.InfoContext(ctx, "starting benchmark", slog.String("scenario", sc.Name), slog.String("target", sc.Target))
	runErr := sc.run(ctx, e, measure)
	if !measured {
		if runErr == nil {
			runErr = fmt.Errorf("scenario finished without a measured block")
		}
		return bench.Report{Scenario: sc.Name}, fmt.Errorf("%s: %w", sc.Name, runErr)
	}

	if runErr != nil && report.Status == bench.StatusOK {
		report, runErr = e.Runner.Fail(ctx, report, runErr)
	}
	e.record(ctx, report)
	if runErr != nil {
		return report, fmt.Errorf("%s: %w", sc.Name, runErr)
	}
	return report, nil
}

// RunAll executes scenarios in order and keeps going past failures. The
// returned error joins every failure.
func (e *Env) RunAll(ctx context.Context, list []Scenario) ([]bench.Report, error) {
	reports := make([]bench.Report, 0, len(list))
	var errs []error
	for _, sc := range list {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report, err := e.Run(ctx, sc)
		reports = append(reports, report)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

// record observes the final outcome, stores the run in history and mirrors
// its result file. History and mirroring are best effort: the local result
// file is the source of truth.
func (e *Env) record(ctx context.Context, report bench.Report) {
	observability.ObserveRun(report.Scenario, report.Status, report.Elapsed)
	run := history.Run{
		RunID:      e.RunID,
		Scenario:   report.Scenario,
		Status:     report.Status,
		Seconds:    report.Seconds(),
		StartedAt:  report.StartedAt,
		ResultFile: report.ResultFile,
	}
	if report.Err != nil {
		run.Error = report.Err.Error()
	}
	if err := e.History.RecordRun(ctx, run); err != nil {
		e.Logger.WarnContext(ctx, "record run history failed", slog.String("scenario", report.Scenario), slog.Any("error", err))
	}
	if e.Artifacts != nil && e.RunID != "" {
		if _, err := e.mirror(ctx, report.StartedAt, report.Scenario, report.ResultFile, storage.ContentTypeText); err != nil {
			e.Logger.WarnContext(ctx, "mirror result file failed", slog.String("scenario", report.Scenario), slog.Any("error", err))
		}
	}
}

func (e *Env) mirror(ctx context.Context, startedAt time.Time, scenario, localPath, contentType string) (storage.ArtifactInfo, error) {
	key, err := storage.ArtifactKey(startedAt, scenario, e.RunID, filepath.Base(localPath))
	if err != nil {
		return storage.ArtifactInfo{}, err
	}
	return storage.UploadFile(ctx, e.Artifacts, key, localPath, contentType)
}

func (e *Env) clusterHTTPPath(ctx context.Context) (string, error) {
	if e.Workspace == nil {
		return "", fmt.Errorf("workspace client is not configured")
	}
	return workspace.ClusterHTTPPath(ctx, e.Workspace, e.Databricks.ClusterID)
}

func (e *Env) openSQL(ctx context.Context, httpPath string) (*sql.DB, error) {
	if e.SQL == nil {
		return nil, fmt.Errorf("sql connector is not configured")
	}
	return e.SQL.Open(ctx, httpPath)
}

func (e *Env) connectSQL(ctx context.Context, httpPath string) (*sql.DB, error) {
	if e.SQL == nil {
		return nil, fmt.Errorf("sql connector is not configured")
	}
	return e.SQL.Connect(ctx, httpPath)
}

func (e *Env) waitForCluster(ctx context.Context) error {
	if e.Health == nil {
		return nil
	}
	return e.Health.WaitForCluster(ctx, e.Databricks.ClusterID)
}

func (e *Env) openSpark(ctx context.Context) (spark.Session, error) {
	if e.Spark == nil {
		return nil, fmt.Errorf("spark connect is not configured")
	}
	return e.Spark.Open(ctx)
}

var registry = map[string]Scenario{}

func register(sc Scenario) {
	if _, exists := registry[sc.Name]; exists {
		panic("duplicate scenario " + sc.Name)
	}
	registry[sc.Name] = sc
}

// All returns every scenario sorted by name.
func All() []Scenario {
	out := make([]Scenario, 0, len(registry))
	for _, sc := range registry {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func Lookup(name string) (Scenario, error) {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".py")
	name = strings.TrimPrefix(name, "bench_")
	sc, ok := registry[name]
	if !ok {
		return Scenario{}, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
	}
	return sc, nil
}

// Select resolves names to scenarios; "all" expands to every scenario.
func Select(names []string) ([]Scenario, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one scenario is required")
	}
	var out []Scenario
	seen := map[string]struct{}{}
	for _, name := range names {
		if name == "all" {
			return All(), nil
		}
		sc, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[sc.Name]; dup {
			continue
		}
		seen[sc.Name] = struct{}{}
		out = append(out, sc)
	}
	return out, nil
}
