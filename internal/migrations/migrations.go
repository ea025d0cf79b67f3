package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const versionTable = "dbxbench_schema_migrations"

var scriptNamePattern = regexp.MustCompile(`^([0-9]+)_.+\.(up|down)\.sql$`)

// Runner applies the embedded history schema in version order.
type Runner struct {
	fsys fs.FS
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

type script struct {
	Version int64
	Up      string
	Down    string
}

type Status struct {
	Applied []int64
	Pending []int64
}

// Up applies pending scripts; steps <= 0 applies all of them.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	scripts, err := loadScripts(r.fsys)
	if err != nil {
		return 0, err
	}
	applied, err := r.appliedSet(ctx, db)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, item := range scripts {
		if _, ok := applied[item.Version]; ok {
			continue
		}
		if steps > 0 && count >= steps {
			break
		}
		insert := `INSERT INTO ` + versionTable + ` (version) VALUES ($1)`
		if err := runInTx(ctx, db, item.Up, insert, item.Version); err != nil {
			return count, fmt.Errorf("apply migration %d: %w", item.Version, err)
		}
		count++
	}
	return count, nil
}

// Down rolls back the newest applied scripts; steps <= 0 rolls back one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}
	scripts, err := loadScripts(r.fsys)
	if err != nil {
		return 0, err
	}
	if err := ensureVersionTable(ctx, db); err != nil {
		return 0, err
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return 0, err
	}

	byVersion := make(map[int64]script, len(scripts))
	for _, item := range scripts {
		byVersion[item.Version] = item
	}

	count := 0
	for i := len(applied) - 1; i >= 0 && count < steps; i-- {
		item, ok := byVersion[applied[i]]
		if !ok {
			return count, fmt.Errorf("applied migration %d is missing from source", applied[i])
		}
		remove := `DELETE FROM ` + versionTable + ` WHERE version = $1`
		if err := runInTx(ctx, db, item.Down, remove, item.Version); err != nil {
			return count, fmt.Errorf("roll back migration %d: %w", item.Version, err)
		}
		count++
	}
	return count, nil
}

func (r *Runner) Status(ctx context.Context, db *sql.DB) (Status, error) {
	scripts, err := loadScripts(r.fsys)
	if err != nil {
		return Status{}, err
	}
	applied, err := r.appliedSet(ctx, db)
	if err != nil {
		return Status{}, err
	}

	var status Status
	for _, item := range scripts {
		if _, ok := applied[item.Version]; ok {
			status.Applied = append(status.Applied, item.Version)
			continue
		}
		status.Pending = append(status.Pending, item.Version)
	}
	return status, nil
}

func (r *Runner) appliedSet(ctx context.Context, db *sql.DB) (map[int64]struct{}, error) {
	if err := ensureVersionTable(ctx, db); err != nil {
		return nil, err
	}
	versions, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}
	set := make(map[int64]struct{}, len(versions))
	for _, version := range versions {
		set[version] = struct{}{}
	}
	return set, nil
}

func ensureVersionTable(ctx context.Context, db *sql.DB) error {
	query := `
CREATE TABLE IF NOT EXISTS ` + versionTable + ` (
	version BIGINT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return nil
}

// runInTx executes a schema script and its bookkeeping statement atomically.
func runInTx(ctx context.Context, db *sql.DB, body, bookkeeping string, version int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, version); err != nil {
		return fmt.Errorf("update %s: %w", versionTable, err)
	}
	return tx.Commit()
}

// appliedVersions returns applied versions in ascending order.
func appliedVersions(ctx context.Context, db *sql.DB) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM `+versionTable+` ORDER BY version ASC`)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied versions: %w", err)
	}
	return versions, nil
}

func loadScripts(fsys fs.FS) ([]script, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}

	byVersion := map[int64]*script{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := path.Base(entry.Name())
		matches := scriptNamePattern.FindStringSubmatch(name)
		if len(matches) != 3 {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version for %q: %w", name, err)
		}
		body, err := fs.ReadFile(fsys, path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", name, err)
		}

		item, ok := byVersion[version]
		if !ok {
			item = &script{Version: version}
			byVersion[version] = item
		}
		if matches[2] == "up" {
			item.Up = string(body)
		} else {
			item.Down = string(body)
		}
	}

	scripts := make([]script, 0, len(byVersion))
	for _, item := range byVersion {
		if strings.TrimSpace(item.Up) == "" {
			return nil, fmt.Errorf("migration %d missing up SQL", item.Version)
		}
		if strings.TrimSpace(item.Down) == "" {
			return nil, fmt.Errorf("migration %d missing down SQL", item.Version)
		}
		scripts = append(scripts, *item)
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Version < scripts[j].Version })
	return scripts, nil
}
