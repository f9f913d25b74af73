// Package history records every answered question so operators can audit
// what was asked, what SQL ran and how it went.
package history

import (
	"context"
	"time"
)

type Entry struct {
	ID         int64     `json:"id"`
	AskedAt    time.Time `json:"asked_at"`
	Question   string    `json:"question"`
	SQL        string    `json:"sql,omitempty"`
	Stage      string    `json:"stage"`
	ErrorCode  string    `json:"error_code,omitempty"`
	OK         bool      `json:"ok"`
	Rounds     int       `json:"rounds"`
	RowCount   int       `json:"row_count"`
	DurationMS int64     `json:"duration_ms"`
	Principal  string    `json:"principal,omitempty"`
}

type Stats struct {
	TotalEntries  int64      `json:"total_entries"`
	FailedEntries int64      `json:"failed_entries"`
	OldestAskedAt *time.Time `json:"oldest_asked_at,omitempty"`
}

type Repository interface {
	Insert(ctx context.Context, entry Entry) (int64, error)
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
	ListPrunable(ctx context.Context, cutoff time.Time, limit int) ([]Entry, error)
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
	Stats(ctx context.Context) (Stats, error)
}
