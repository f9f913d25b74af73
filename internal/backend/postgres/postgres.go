// Package postgres implements the cloud backend: a network PostgreSQL
// server reached through database/sql with the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/backend"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/schema"
)

type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

type Connector struct {
	db          *sql.DB
	pingTimeout time.Duration
}

// Open connects eagerly and verifies the connection with a bounded ping.
// Credential rejections come back as a ConnectError with Auth set; those are
// fatal, retrying with the same configuration cannot succeed.
func Open(ctx context.Context, cfg Config) (*Connector, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, &backend.ConnectError{Backend: "postgres", Err: err}
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, &backend.ConnectError{Backend: "postgres", Auth: isAuthErr(err), Err: err}
	}

	return &Connector{db: db, pingTimeout: pingTimeout}, nil
}

// NewWithDB wraps an existing handle. Used by tests and by callers that
// manage their own pool.
func NewWithDB(db *sql.DB) *Connector {
	return &Connector{db: db, pingTimeout: 5 * time.Second}
}

func (c *Connector) Kind() string { return "postgres" }

func (c *Connector) DB() *sql.DB { return c.db }

func (c *Connector) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, c.pingTimeout)
	defer cancel()
	return c.db.PingContext(pingCtx)
}

func (c *Connector) Close() error { return c.db.Close() }

const columnsQuery = `
SELECT c.table_name, c.column_name, c.data_type, c.is_nullable
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = 'public' AND t.table_type = 'BASE TABLE'
ORDER BY c.table_name, c.ordinal_position`

const primaryKeysQuery = `
SELECT tc.table_name, kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = 'public'
ORDER BY kcu.table_name, kcu.ordinal_position`

// Introspect reads the public schema's base tables. An empty database yields
// an empty snapshot, not an error.
func (c *Connector) Introspect(ctx context.Context) (schema.Snapshot, error) {
	snap := schema.Snapshot{Backend: "postgres", CapturedAt: time.Now().UTC()}

	rows, err := c.db.QueryContext(ctx, columnsQuery)
	if err != nil {
		return schema.Snapshot{}, fmt.Errorf("introspect columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tableIndex := map[string]int{}
	for rows.Next() {
		var tableName, columnName, dataType, isNullable string
		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullable); err != nil {
			return schema.Snapshot{}, fmt.Errorf("scan column row: %w", err)
		}
		idx, ok := tableIndex[tableName]
		if !ok {
			idx = len(snap.Tables)
			tableIndex[tableName] = idx
			snap.Tables = append(snap.Tables, schema.Table{Name: tableName})
		}
		snap.Tables[idx].Columns = append(snap.Tables[idx].Columns, schema.Column{
			Name:     columnName,
			DataType: dataType,
			Nullable: isNullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return schema.Snapshot{}, fmt.Errorf("iterate column rows: %w", err)
	}

	pkRows, err := c.db.QueryContext(ctx, primaryKeysQuery)
	if err != nil {
		return schema.Snapshot{}, fmt.Errorf("introspect primary keys: %w", err)
	}
	defer func() { _ = pkRows.Close() }()

	for pkRows.Next() {
		var tableName, columnName string
		if err := pkRows.Scan(&tableName, &columnName); err != nil {
			return schema.Snapshot{}, fmt.Errorf("scan primary key row: %w", err)
		}
		idx, ok := tableIndex[tableName]
		if !ok {
			continue
		}
		for i := range snap.Tables[idx].Columns {
			if snap.Tables[idx].Columns[i].Name == columnName {
				snap.Tables[idx].Columns[i].PrimaryKey = true
				break
			}
		}
	}
	if err := pkRows.Err(); err != nil {
		return schema.Snapshot{}, fmt.Errorf("iterate primary key rows: %w", err)
	}

	return snap, nil
}

func (c *Connector) SampleRows(ctx context.Context, table string, limit int) (backend.Rows, error) {
	if limit <= 0 {
		limit = 5
	}
	query := fmt.Sprintf(`SELECT * FROM %s LIMIT %d`, backend.QuoteIdent(table), limit)
	return backend.CollectRows(ctx, c.db, query)
}

// SQLSTATE class 28 covers invalid_authorization_specification and
// invalid_password.
func isAuthErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "28000", "28P01":
			return true
		}
	}
	return false
}
