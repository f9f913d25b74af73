// Package executor runs validated SQL against a backend connection with a
// per-query timeout and a hard row cap. A result that does not fit inside
// the cap is an error, never a silently truncated table.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/observability"
)

type Kind string

const (
	KindTimeout          Kind = "timeout"
	KindBackendError     Kind = "backend-error"
	KindRowLimitExceeded Kind = "row-limit-exceeded"
)

type Error struct {
	Kind    Kind
	Limit   int
	Timeout time.Duration
	Err     error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("query timed out after %s", e.Timeout)
	case KindRowLimitExceeded:
		return fmt.Sprintf("result exceeded %d rows", e.Limit)
	default:
		return fmt.Sprintf("query failed: %v", e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

type Options struct {
	MaxRows int
	Timeout time.Duration
}

const (
	defaultMaxRows = 500
	defaultTimeout = 30 * time.Second
)

type Executor struct {
	db   *sql.DB
	opts Options
}

func New(db *sql.DB, opts Options) *Executor {
	if opts.MaxRows <= 0 {
		opts.MaxRows = defaultMaxRows
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Executor{db: db, opts: opts}
}

func (e *Executor) MaxRows() int { return e.opts.MaxRows }

type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

type ExecResult struct {
	RowsAffected int64
	Duration     time.Duration
}

// Run executes a read query. It scans at most MaxRows+1 rows; seeing the
// extra row proves the result is too large and fails the query.
func (e *Executor) Run(ctx context.Context, sqlText string) (Result, error) {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	rows, err := e.db.QueryContext(runCtx, sqlText)
	if err != nil {
		return Result{}, e.fail(start, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, e.fail(start, err)
	}

	out := Result{
		Columns: cols,
		Rows:    make([][]any, 0, e.opts.MaxRows),
	}
	for rows.Next() {
		if len(out.Rows) == e.opts.MaxRows {
			observability.ObserveExecution("row_limit", 0, time.Since(start))
			return Result{}, &Error{Kind: KindRowLimitExceeded, Limit: e.opts.MaxRows}
		}
		values := make([]any, len(cols))
		targets := make([]any, len(cols))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return Result{}, e.fail(start, err)
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		out.Rows = append(out.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return Result{}, e.fail(start, err)
	}

	out.Duration = time.Since(start)
	observability.ObserveExecution("ok", len(out.Rows), out.Duration)
	return out, nil
}

// RunExec executes a data-modifying statement and reports affected rows.
func (e *Executor) RunExec(ctx context.Context, sqlText string) (ExecResult, error) {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	res, err := e.db.ExecContext(runCtx, sqlText)
	if err != nil {
		return ExecResult{}, e.fail(start, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ExecResult{}, e.fail(start, err)
	}

	out := ExecResult{RowsAffected: affected, Duration: time.Since(start)}
	observability.ObserveExecution("ok", int(affected), out.Duration)
	return out, nil
}

func (e *Executor) fail(start time.Time, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		observability.ObserveExecution("timeout", 0, time.Since(start))
		return &Error{Kind: KindTimeout, Timeout: e.opts.Timeout, Err: err}
	}
	observability.ObserveExecution("error", 0, time.Since(start))
	return &Error{Kind: KindBackendError, Err: err}
}

// normalizeValue flattens driver types so results marshal cleanly: byte
// slices become strings and timestamps become RFC 3339 UTC strings.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
