package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbxbench_runs_total",
			Help: "Total number of benchmark runs by scenario and status.",
		},
		[]string{"scenario", "status"},
	)

	runDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbxbench_run_duration_seconds",
			Help:    "End-to-end benchmark latency by scenario and status.",
			Buckets: []float64{5, 15, 30, 60, 120, 240, 480, 900, 1800, 3600},
		},
		[]string{"scenario", "status"},
	)

	healthPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbxbench_health_polls_total",
			Help: "Total number of resource state polls by kind and observed state.",
		},
		[]string{"kind", "state"},
	)

	healthWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbxbench_health_wait_seconds",
			Help:    "Time spent waiting for a resource to become healthy.",
			Buckets: []float64{0.5, 1, 5, 20, 60, 120, 300, 600, 1200},
		},
		[]string{"kind"},
	)

	exportedRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbxbench_exported_rows_total",
			Help: "Total number of rows written to local parquet files.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		runsTotal,
		runDurationSeconds,
		healthPollsTotal,
		healthWaitSeconds,
		exportedRowsTotal,
	)
}

func ObserveRun(scenario, status string, elapsed time.Duration) {
	runsTotal.WithLabelValues(scenario, status).Inc()
	runDurationSeconds.WithLabelValues(scenario, status).Observe(elapsed.Seconds())
}

func ObserveHealthPoll(kind, state string) {
	healthPollsTotal.WithLabelValues(kind, state).Inc()
}

func ObserveHealthWait(kind string, elapsed time.Duration) {
	healthWaitSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func AddExportedRows(rows int64) {
	if rows > 0 {
		exportedRowsTotal.Add(float64(rows))
	}
}

// Push sends the benchmark collectors to a Prometheus Pushgateway. Benchmarks
// are short-lived, so there is nothing to scrape.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if job == "" {
		job = "dbxbench"
	}
	pusher := push.New(url, job).
		Collector(runsTotal).
		Collector(runDurationSeconds).
		Collector(healthPollsTotal).
		Collector(healthWaitSeconds).
		Collector(exportedRowsTotal)
	if err := pusher.AddContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
