// Package postgres persists query history in the relational store that
// backs the service.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/history"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history db: %w", err)
	}
	return nil
}

func (r *Repository) Insert(ctx context.Context, entry history.Entry) (int64, error) {
	askedAt := entry.AskedAt
	if askedAt.IsZero() {
		askedAt = time.Now()
	}

	query := `
INSERT INTO query_history (asked_at, question, sql_text, stage, error_code, ok, rounds, row_count, duration_ms, principal)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`
	var id int64
	if err := r.db.QueryRowContext(ctx, query,
		askedAt.UTC(),
		entry.Question,
		entry.SQL,
		entry.Stage,
		entry.ErrorCode,
		entry.OK,
		entry.Rounds,
		entry.RowCount,
		entry.DurationMS,
		entry.Principal,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert history entry: %w", err)
	}
	return id, nil
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
SELECT id, asked_at, question, sql_text, stage, error_code, ok, rounds, row_count, duration_ms, principal
FROM query_history
ORDER BY id DESC
LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEntries(rows)
}

func (r *Repository) ListPrunable(ctx context.Context, cutoff time.Time, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
SELECT id, asked_at, question, sql_text, stage, error_code, ok, rounds, row_count, duration_ms, principal
FROM query_history
WHERE asked_at < $1
ORDER BY id ASC
LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list prunable history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEntries(rows)
}

func (r *Repository) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM query_history WHERE id IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete history entries: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete history entries rows affected: %w", err)
	}
	return deleted, nil
}

func (r *Repository) Stats(ctx context.Context) (history.Stats, error) {
	query := `
SELECT
    COUNT(*) AS total_entries,
    COALESCE(SUM(CASE WHEN ok THEN 0 ELSE 1 END), 0) AS failed_entries,
    MIN(asked_at) AS oldest_asked_at
FROM query_history`

	var stats history.Stats
	var oldest sql.NullTime
	if err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalEntries,
		&stats.FailedEntries,
		&oldest,
	); err != nil {
		return history.Stats{}, fmt.Errorf("query history stats: %w", err)
	}
	if oldest.Valid {
		t := oldest.Time
		stats.OldestAskedAt = &t
	}
	return stats, nil
}

func scanEntries(rows *sql.Rows) ([]history.Entry, error) {
	entries := make([]history.Entry, 0)
	for rows.Next() {
		var entry history.Entry
		if err := rows.Scan(
			&entry.ID,
			&entry.AskedAt,
			&entry.Question,
			&entry.SQL,
			&entry.Stage,
			&entry.ErrorCode,
			&entry.OK,
			&entry.Rounds,
			&entry.RowCount,
			&entry.DurationMS,
			&entry.Principal,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}
