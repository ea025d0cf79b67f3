//go:build integration

package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestRunnerAppliesAndRollsBackHistorySchema(t *testing.T) {
	adminDSN := strings.TrimSpace(os.Getenv("DBXBENCH_TEST_HISTORY_DSN"))
	if adminDSN == "" {
		t.Skip("DBXBENCH_TEST_HISTORY_DSN is not set")
	}

	testDSN, cleanup := createTemporaryDatabase(t, adminDSN)
	defer cleanup()

	db, err := sql.Open("pgx", testDSN)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	runner := NewRunner()

	if _, err := runner.Up(ctx, db, 0); err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if !tableExists(t, db, "benchmark_run") {
		t.Fatal("benchmark_run missing after Up")
	}
	if _, err := runner.Down(ctx, db, 1); err != nil {
		t.Fatalf("Down() error = %v", err)
	}
	if tableExists(t, db, "benchmark_run") {
		t.Fatal("benchmark_run present after Down")
	}
}

func createTemporaryDatabase(t *testing.T, adminDSN string) (string, func()) {
	t.Helper()

	parsed, err := url.Parse(adminDSN)
	if err != nil {
		t.Fatalf("parse admin DSN: %v", err)
	}
	adminDB, err := sql.Open("pgx", adminDSN)
	if err != nil {
		t.Fatalf("open admin DSN: %v", err)
	}

	name := fmt.Sprintf("dbxbench_it_%d", time.Now().UnixNano())
	if _, err := adminDB.Exec(`CREATE DATABASE ` + name); err != nil {
		t.Fatalf("CREATE DATABASE failed: %v", err)
	}
	testURL := *parsed
	testURL.Path = "/" + name

	return testURL.String(), func() {
		defer func() { _ = adminDB.Close() }()
		_, _ = adminDB.Exec(`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1`, name)
		if _, err := adminDB.Exec(`DROP DATABASE ` + name); err != nil {
			t.Fatalf("DROP DATABASE failed: %v", err)
		}
	}
}

func tableExists(t *testing.T, db *sql.DB, table string) bool {
	t.Helper()
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pg_tables WHERE schemaname = 'public' AND tablename = $1`, table).Scan(&count); err != nil {
		t.Fatalf("query table %q: %v", table, err)
	}
	return count > 0
}
