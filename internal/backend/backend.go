// Package backend defines the agent's view of one relational database. A
// Connector wraps an open *sql.DB together with introspection and sampling,
// so sessions never care whether they talk to a network server or a local
// file engine.
package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/schema"
)

type Connector interface {
	Kind() string
	DB() *sql.DB
	Ping(ctx context.Context) error
	Introspect(ctx context.Context) (schema.Snapshot, error)
	SampleRows(ctx context.Context, table string, limit int) (Rows, error)
	Close() error
}

// Rows is the generic shape for small result sets such as table samples.
type Rows struct {
	Columns []string `json:"columns"`
	Values  [][]any  `json:"values"`
}

// ConnectError reports a failed connection attempt. Auth marks credential
// rejections, which will not succeed on retry with the same configuration.
type ConnectError struct {
	Backend string
	Auth    bool
	Err     error
}

func (e *ConnectError) Error() string {
	if e.Auth {
		return fmt.Sprintf("connect %s: authentication failed: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("connect %s: %v", e.Backend, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// QuoteIdent quotes an identifier for interpolation into DDL and sampling
// statements. Both supported engines accept double-quoted identifiers.
func QuoteIdent(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// CollectRows runs a query and scans every row into the generic Rows shape,
// converting driver byte slices to strings.
func CollectRows(ctx context.Context, db *sql.DB, query string, args ...any) (Rows, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return Rows{}, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Rows{}, fmt.Errorf("query columns: %w", err)
	}

	out := Rows{Columns: columns, Values: make([][]any, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Rows{}, fmt.Errorf("scan row: %w", err)
		}
		for i, value := range values {
			if raw, ok := value.([]byte); ok {
				values[i] = string(raw)
			}
		}
		out.Values = append(out.Values, values)
	}
	if err := rows.Err(); err != nil {
		return Rows{}, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}
