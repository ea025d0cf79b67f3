package dbxbench

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dbxbench/dbxbench/internal/config"
	"github.com/dbxbench/dbxbench/internal/history"
	"github.com/dbxbench/dbxbench/internal/scenarios"
	"github.com/dbxbench/dbxbench/internal/storage"
	"github.com/dbxbench/dbxbench/internal/workspace"
)

// Options carries configuration and, for tests, prebuilt clients. Nil
// clients are built from Config on first use.
type Options struct {
	Config config.Config
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	Workspace workspace.API
	SQL       scenarios.SQLOpener
	Spark     scenarios.SparkOpener
	Artifacts storage.ArtifactStore
	History   history.Recorder
	NewRunID  func() string
}

// Run executes one command and returns the process exit code: 0 on success,
// 1 when the command failed, 2 on usage errors.
func Run(ctx context.Context, args []string, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}

	fs := flag.NewFlagSet("dbxbench", flag.ContinueOnError)
	fs.SetOutput(opts.Stderr)
	resultsDir := fs.String("results-dir", opts.Config.Paths.ResultsDir, "directory for result files")
	readmePath := fs.String("readme", opts.Config.Paths.README, "README to update")
	dataDir := fs.String("data-dir", opts.Config.Paths.DataDir, "directory for downloaded data")
	fs.Usage = func() { writeUsage(opts.Stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(opts.Stderr)
		return 2
	}
	opts.Config.Paths.ResultsDir = *resultsDir
	opts.Config.Paths.README = *readmePath
	opts.Config.Paths.DataDir = *dataDir

	c := &commander{opts: opts}
	defer c.close()

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]
	switch command {
	case "list":
		return c.list()
	case "run":
		return c.run(ctx, rest)
	case "inspect":
		return c.inspect(ctx)
	case "update-readme":
		return c.updateReadme(ctx, rest)
	case "verify-parquet":
		return c.verifyParquet(ctx, rest)
	case "history":
		return c.history(ctx, rest)
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "unknown command %q\n\n", command)
		writeUsage(opts.Stderr)
		return 2
	}
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: dbxbench [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  list                       list benchmark scenarios")
	_, _ = fmt.Fprintln(w, "  run <scenario...|all>      run scenarios and write result files")
	_, _ = fmt.Fprintln(w, "  inspect                    print warehouse and cluster details")
	_, _ = fmt.Fprintln(w, "  update-readme [-resources] copy result times into README.md")
	_, _ = fmt.Fprintln(w, "  verify-parquet <path>      summarize a downloaded parquet file")
	_, _ = fmt.Fprintln(w, "  history [-limit N] [-scenario s]  list recorded runs")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "flags:")
	_, _ = fmt.Fprintln(w, "  -results-dir, -data-dir, -readme override the configured paths")
}

func (c *commander) fail(format string, args ...any) int {
	_, _ = fmt.Fprintf(c.opts.Stderr, format+"\n", args...)
	return 1
}

func (c *commander) usage(format string, args ...any) int {
	_, _ = fmt.Fprintf(c.opts.Stderr, format+"\n", args...)
	return 2
}
