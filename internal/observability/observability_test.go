package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dbxbench/dbxbench/internal/config"
)

func TestNewLoggerAddsServiceAttributes(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{Profile: config.ProfileTest, Service: config.ServiceConfig{Name: "dbxbench"}}
	cfg.Observability.LogJSON = true

	NewLogger(cfg, &buf).Info("hello")

	out := buf.String()
	if !strings.Contains(out, `"service":"dbxbench"`) || !strings.Contains(out, `"profile":"test"`) {
		t.Fatalf("log line = %s", out)
	}
}

func TestRunIDRoundTrip(t *testing.T) {
	ctx := ContextWithRunID(context.Background(), "run-1")
	if got := RunIDFromContext(ctx); got != "run-1" {
		t.Fatalf("RunIDFromContext() = %q", got)
	}
	if got := RunIDFromContext(context.Background()); got != "" {
		t.Fatalf("RunIDFromContext(empty) = %q", got)
	}
}

func TestObserveRunCountsByStatus(t *testing.T) {
	before := testutil.ToFloat64(runsTotal.WithLabelValues("observe_check", "ok"))
	ObserveRun("observe_check", "ok", 1500*time.Millisecond)
	after := testutil.ToFloat64(runsTotal.WithLabelValues("observe_check", "ok"))
	if after-before != 1 {
		t.Fatalf("runs_total delta = %v", after-before)
	}
}

func TestPushSendsToGateway(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := Push(context.Background(), srv.URL, "bench-job"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/metrics/job/bench-job" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
}

func TestPushWithoutURLIsNoop(t *testing.T) {
	if err := Push(context.Background(), "", ""); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
}
