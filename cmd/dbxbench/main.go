package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dbxbench/dbxbench/internal/cli/dbxbench"
	"github.com/dbxbench/dbxbench/internal/config"
	"github.com/dbxbench/dbxbench/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("dbxbench")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(2)
	}
	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := dbxbench.Run(ctx, os.Args[1:], dbxbench.Options{
		Config: cfg,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Logger: logger,
	})
	stop()
	os.Exit(code)
}
