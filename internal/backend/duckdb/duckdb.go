// Package duckdb implements the file backend: a local DuckDB database,
// either opened from a database file or built in memory from parquet
// datasets fetched out of object storage.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/backend"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/objectstore"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/schema"
)

type Dataset struct {
	View      string
	ObjectKey string
}

type Config struct {
	Path        string // empty opens an in-memory database
	Datasets    []Dataset
	PingTimeout time.Duration
}

type Connector struct {
	db          *sql.DB
	pingTimeout time.Duration
	workDir     string
}

// ParseDatasets parses the comma-separated view=objectkey list from
// configuration.
func ParseDatasets(raw string) ([]Dataset, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	seen := map[string]bool{}
	var datasets []Dataset
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		view, key, ok := strings.Cut(part, "=")
		view = strings.TrimSpace(view)
		key = strings.TrimSpace(key)
		if !ok || view == "" || key == "" {
			return nil, fmt.Errorf("invalid dataset entry %q, want view=objectkey", part)
		}
		if seen[view] {
			return nil, fmt.Errorf("duplicate dataset view %q", view)
		}
		seen[view] = true
		datasets = append(datasets, Dataset{View: view, ObjectKey: key})
	}
	return datasets, nil
}

// Open opens the database file (or an in-memory database) and materializes
// any configured parquet datasets as views. Fetched files live in a temp
// directory owned by the connector until Close.
func Open(ctx context.Context, cfg Config, store objectstore.Store) (*Connector, error) {
	if len(cfg.Datasets) > 0 && store == nil {
		return nil, fmt.Errorf("datasets are configured but no object store is available")
	}

	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, &backend.ConnectError{Backend: "duckdb", Err: err}
	}

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, &backend.ConnectError{Backend: "duckdb", Err: err}
	}

	conn := &Connector{db: db, pingTimeout: pingTimeout}
	if len(cfg.Datasets) > 0 {
		if err := conn.hydrateDatasets(ctx, store, cfg.Datasets); err != nil {
			_ = conn.Close()
			return nil, &backend.ConnectError{Backend: "duckdb", Err: err}
		}
	}
	return conn, nil
}

func (c *Connector) hydrateDatasets(ctx context.Context, store objectstore.Store, datasets []Dataset) error {
	workDir, err := os.MkdirTemp("", "sqlagent-datasets-")
	if err != nil {
		return fmt.Errorf("create dataset temp dir: %w", err)
	}
	c.workDir = workDir

	for index, dataset := range datasets {
		localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(dataset.View), index))
		if err := objectstore.FetchToFile(ctx, store, dataset.ObjectKey, localPath); err != nil {
			return fmt.Errorf("fetch dataset %q: %w", dataset.View, err)
		}
		viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`,
			backend.QuoteIdent(dataset.View), quoteStringLiteral(localPath))
		if _, err := c.db.ExecContext(ctx, viewSQL); err != nil {
			return fmt.Errorf("create view %q: %w", dataset.View, err)
		}
	}
	return nil
}

func (c *Connector) Kind() string { return "duckdb" }

func (c *Connector) DB() *sql.DB { return c.db }

func (c *Connector) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, c.pingTimeout)
	defer cancel()
	return c.db.PingContext(pingCtx)
}

func (c *Connector) Close() error {
	err := c.db.Close()
	if c.workDir != "" {
		_ = os.RemoveAll(c.workDir)
	}
	return err
}

const tablesQuery = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'main' AND table_type IN ('BASE TABLE', 'VIEW')
ORDER BY table_name`

// Introspect lists tables and dataset views in the main schema. Column
// details come from PRAGMA table_info, which also reports primary keys.
func (c *Connector) Introspect(ctx context.Context) (schema.Snapshot, error) {
	snap := schema.Snapshot{Backend: "duckdb", CapturedAt: time.Now().UTC()}

	rows, err := c.db.QueryContext(ctx, tablesQuery)
	if err != nil {
		return schema.Snapshot{}, fmt.Errorf("introspect tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return schema.Snapshot{}, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return schema.Snapshot{}, fmt.Errorf("iterate table names: %w", err)
	}
	_ = rows.Close()

	for _, name := range names {
		table, err := c.tableInfo(ctx, name)
		if err != nil {
			return schema.Snapshot{}, err
		}
		snap.Tables = append(snap.Tables, table)
	}
	return snap, nil
}

func (c *Connector) tableInfo(ctx context.Context, name string) (schema.Table, error) {
	query := fmt.Sprintf(`PRAGMA table_info(%s)`, quoteStringLiteral(name))
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return schema.Table{}, fmt.Errorf("table_info %q: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	table := schema.Table{Name: name}
	for rows.Next() {
		var (
			cid          int
			columnName   string
			dataType     string
			notNull      bool
			defaultValue sql.NullString
			primaryKey   bool
		)
		if err := rows.Scan(&cid, &columnName, &dataType, &notNull, &defaultValue, &primaryKey); err != nil {
			return schema.Table{}, fmt.Errorf("scan table_info row for %q: %w", name, err)
		}
		table.Columns = append(table.Columns, schema.Column{
			Name:       columnName,
			DataType:   dataType,
			Nullable:   !notNull,
			PrimaryKey: primaryKey,
		})
	}
	if err := rows.Err(); err != nil {
		return schema.Table{}, fmt.Errorf("iterate table_info rows for %q: %w", name, err)
	}
	return table, nil
}

func (c *Connector) SampleRows(ctx context.Context, table string, limit int) (backend.Rows, error) {
	if limit <= 0 {
		limit = 5
	}
	query := fmt.Sprintf(`SELECT * FROM %s LIMIT %d`, backend.QuoteIdent(table), limit)
	return backend.CollectRows(ctx, c.db, query)
}

func quoteStringLiteral(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "dataset"
	}
	return value
}
