// Package migrations owns the query-history schema in Postgres. Scripts
// are embedded, named NNNNNN_label.up.sql / .down.sql, and every up script
// must ship with its down counterpart so retention archiving can always be
// rolled back to a known schema.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

// versionTable records which scripts have run. It lives next to the
// history tables it manages.
const versionTable = "sqlagent_schema_migrations"

type Runner struct {
	fsys fs.FS
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

type migration struct {
	Version int64
	UpSQL   string
	DownSQL string
}

// Up applies pending migrations in version order. steps <= 0 means all.
// Returns how many ran.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	pending, applied, err := r.plan(ctx, db)
	if err != nil {
		return 0, err
	}

	done := make(map[int64]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	ran := 0
	for _, m := range pending {
		if done[m.Version] {
			continue
		}
		if steps > 0 && ran >= steps {
			break
		}
		if err := execMigration(ctx, db, m, false); err != nil {
			return ran, err
		}
		ran++
	}
	return ran, nil
}

// Down rolls back the most recently applied migrations. steps <= 0 rolls
// back one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}

	known, applied, err := r.plan(ctx, db)
	if err != nil {
		return 0, err
	}

	byVersion := make(map[int64]migration, len(known))
	for _, m := range known {
		byVersion[m.Version] = m
	}

	ran := 0
	for i := len(applied) - 1; i >= 0 && ran < steps; i-- {
		version := applied[i]
		m, ok := byVersion[version]
		if !ok {
			return ran, fmt.Errorf("applied migration %d is missing from source", version)
		}
		if err := execMigration(ctx, db, m, true); err != nil {
			return ran, err
		}
		ran++
	}
	return ran, nil
}

// plan loads the embedded scripts, makes sure the version table exists and
// reads the applied versions in ascending order.
func (r *Runner) plan(ctx context.Context, db *sql.DB) ([]migration, []int64, error) {
	known, err := loadMigrations(r.fsys)
	if err != nil {
		return nil, nil, err
	}

	ddl := `
CREATE TABLE IF NOT EXISTS ` + versionTable + ` (
	version BIGINT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, nil, fmt.Errorf("ensure migration table: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT version FROM `+versionTable+` ORDER BY version ASC`)
	if err != nil {
		return nil, nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var applied []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, nil, fmt.Errorf("scan version: %w", err)
		}
		applied = append(applied, version)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("rows error: %w", err)
	}
	return known, applied, nil
}

// execMigration runs one script and its bookkeeping row in a single
// transaction, so a half-applied script never counts as done.
func execMigration(ctx context.Context, db *sql.DB, m migration, down bool) error {
	script, mark, label := m.UpSQL, `INSERT INTO `+versionTable+` (version) VALUES ($1)`, "apply"
	if down {
		script, mark, label = m.DownSQL, `DELETE FROM `+versionTable+` WHERE version = $1`, "rollback"
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("%s migration %d: %w", label, m.Version, err)
	}
	if _, err := tx.ExecContext(ctx, mark, m.Version); err != nil {
		return fmt.Errorf("record %s of migration %d: %w", label, m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s of migration %d: %w", label, m.Version, err)
	}
	return nil
}

// loadMigrations pairs up and down scripts by version and returns them in
// ascending version order. Files that do not match the naming scheme are
// ignored so the sql dir can hold notes alongside the scripts.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}

	byVersion := map[int64]migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, down, ok := parseScriptName(entry.Name())
		if !ok {
			continue
		}
		script, err := fs.ReadFile(fsys, path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", entry.Name(), err)
		}

		m := byVersion[version]
		m.Version = version
		if down {
			m.DownSQL = string(script)
		} else {
			m.UpSQL = string(script)
		}
		byVersion[version] = m
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if strings.TrimSpace(m.UpSQL) == "" {
			return nil, fmt.Errorf("migration %d missing up SQL", m.Version)
		}
		if strings.TrimSpace(m.DownSQL) == "" {
			return nil, fmt.Errorf("migration %d missing down SQL", m.Version)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseScriptName splits NNNNNN_label.up.sql / NNNNNN_label.down.sql into
// version and direction. Anything else is not a migration script.
func parseScriptName(name string) (version int64, down bool, ok bool) {
	base := path.Base(name)
	var suffix string
	switch {
	case strings.HasSuffix(base, ".up.sql"):
		suffix = ".up.sql"
	case strings.HasSuffix(base, ".down.sql"):
		suffix = ".down.sql"
		down = true
	default:
		return 0, false, false
	}
	stem := strings.TrimSuffix(base, suffix)
	digits, label, found := strings.Cut(stem, "_")
	if !found || digits == "" || label == "" {
		return 0, false, false
	}
	version, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false, false
	}
	return version, down, true
}
