package dbxbench

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/dbxbench/dbxbench/internal/export"
	"github.com/dbxbench/dbxbench/internal/history"
	"github.com/dbxbench/dbxbench/internal/observability"
	"github.com/dbxbench/dbxbench/internal/readme"
	"github.com/dbxbench/dbxbench/internal/scenarios"
	"github.com/dbxbench/dbxbench/internal/workspace"
)

func (c *commander) list() int {
	table := c.newTable([]string{"SCENARIO", "TARGET", "DESCRIPTION"})
	for _, sc := range scenarios.All() {
		table.Append([]string{sc.Name, sc.Target, sc.Description})
	}
	table.Render()
	return 0
}

func (c *commander) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		return c.usage("run: name at least one scenario, or all")
	}
	list, err := scenarios.Select(args)
	if err != nil {
		if errors.Is(err, scenarios.ErrUnknownScenario) {
			return c.usage("run: %v", err)
		}
		return c.fail("run: %v", err)
	}

	runID := c.opts.NewRunID()
	env, err := c.scenarioEnv(ctx, runID)
	if err != nil {
		return c.fail("run: %v", err)
	}
	c.opts.Logger.InfoContext(ctx, "starting benchmark run",
		slog.String("run_id", runID),
		slog.Int("scenarios", len(list)),
	)

	reports, runErr := env.RunAll(ctx, list)
	for _, report := range reports {
		if report.Message == "" {
			continue
		}
		firstLine, _, _ := strings.Cut(report.Message, "\n")
		_, _ = fmt.Fprintf(c.opts.Stdout, "%s: %s\n", report.Scenario, firstLine)
	}

	metrics := c.opts.Config.Metrics
	if err := observability.Push(ctx, metrics.PushgatewayURL, metrics.JobName); err != nil {
		c.opts.Logger.WarnContext(ctx, "push metrics failed", slog.Any("error", err))
	}
	if runErr != nil {
		return c.fail("run %s failed: %v", runID, runErr)
	}
	return 0
}

func (c *commander) inspect(ctx context.Context) int {
	lines, err := c.instanceTable(ctx)
	if err != nil {
		return c.fail("inspect: %v", err)
	}
	for _, line := range lines {
		_, _ = fmt.Fprintln(c.opts.Stdout, line)
	}
	return 0
}

func (c *commander) instanceTable(ctx context.Context) ([]string, error) {
	api, err := c.workspaceAPI()
	if err != nil {
		return nil, err
	}
	cfg := c.opts.Config.Databricks
	rows, err := workspace.Describe(ctx, api, cfg.WarehouseID, cfg.ClusterID)
	if errors.Is(err, workspace.ErrNotFound) {
		return nil, fmt.Errorf("%w (check DATABRICKS_WAREHOUSE_ID and DATABRICKS_CLUSTER_ID)", err)
	}
	if err != nil {
		return nil, err
	}
	cells := make([][]string, 0, len(rows)+1)
	header := workspace.ComparisonHeader
	cells = append(cells, []string{header.Label, header.Warehouse, header.Cluster})
	for _, row := range rows {
		cells = append(cells, []string{row.Label, row.Warehouse, row.Cluster})
	}
	return readme.RenderTable(cells), nil
}

func (c *commander) updateReadme(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("update-readme", flag.ContinueOnError)
	fs.SetOutput(c.opts.Stderr)
	resources := fs.Bool("resources", false, "also rebuild the instance details table")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	path := c.opts.Config.Paths.README

	times, err := readme.CollectTimes(c.opts.Config.Paths.ResultsDir)
	if err != nil {
		return c.fail("update-readme: %v", err)
	}
	if len(times) == 0 {
		_, _ = fmt.Fprintln(c.opts.Stdout, "No result files found.")
	} else {
		var updated int
		err := readme.RewriteFile(path, func(text string) (string, error) {
			var out string
			out, updated = readme.UpdateResultRows(text, times)
			return out, nil
		})
		if err != nil {
			return c.fail("update-readme: %v", err)
		}
		_, _ = fmt.Fprintf(c.opts.Stdout, "Updated %d rows in README.md\n", updated)
		names := make([]string, 0, len(times))
		for name := range times {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			_, _ = fmt.Fprintf(c.opts.Stdout, "  %s: %ss\n", name, times[name])
		}
	}

	if !*resources {
		return 0
	}
	table, err := c.instanceTable(ctx)
	if err != nil {
		return c.fail("update-readme: %v", err)
	}
	err = readme.RewriteFile(path, func(text string) (string, error) {
		return readme.ReplaceInstanceTable(text, table)
	})
	if err != nil {
		return c.fail("update-readme: %v", err)
	}
	_, _ = fmt.Fprintf(c.opts.Stdout, "Rebuilt instance-details table (%d lines)\n", len(table))
	return 0
}

func (c *commander) verifyParquet(ctx context.Context, args []string) int {
	if len(args) != 1 {
		return c.usage("verify-parquet: exactly one path is required")
	}
	summary, err := export.InspectParquet(ctx, args[0])
	if err != nil {
		return c.fail("verify-parquet: %v", err)
	}
	_, _ = fmt.Fprintf(c.opts.Stdout, "rows: %d\n", summary.Rows)
	_, _ = fmt.Fprintf(c.opts.Stdout, "experiments: %d\n", summary.DistinctExperiments)
	_, _ = fmt.Fprintf(c.opts.Stdout, "columns: %s\n", strings.Join(summary.Columns, ", "))
	return 0
}

func (c *commander) history(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(c.opts.Stderr)
	limit := fs.Int("limit", history.DefaultListLimit, "maximum runs to list")
	scenario := fs.String("scenario", "", "only list runs of this scenario")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *limit <= 0 {
		return c.usage("history: -limit must be positive")
	}

	recorder, err := c.historyRecorder(ctx)
	if err != nil {
		return c.fail("history: %v", err)
	}
	if recorder == nil {
		return c.fail("history: DBXBENCH_HISTORY_DSN is not set")
	}
	runs, err := recorder.ListRuns(ctx, history.ListFilter{Scenario: *scenario, Limit: *limit})
	if err != nil {
		return c.fail("history: %v", err)
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(c.opts.Stdout, "No runs recorded.")
		return 0
	}

	table := c.newTable([]string{"STARTED", "SCENARIO", "STATUS", "SECONDS", "RUN ID"})
	for _, run := range runs {
		table.Append([]string{
			run.StartedAt.UTC().Format(time.RFC3339),
			run.Scenario,
			strings.ToUpper(run.Status),
			strconv.FormatFloat(run.Seconds, 'f', 1, 64),
			run.RunID,
		})
	}
	table.Render()
	return 0
}

func (c *commander) newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(c.opts.Stdout)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetHeaderLine(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	return table
}
