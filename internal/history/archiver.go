package history

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/objectstore"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/observability"
)

type ArchiverConfig struct {
	Retention     time.Duration
	PruneInterval time.Duration
	PruneLimit    int
	ArchivePrefix string
}

// Archiver moves history entries past their retention window into parquet
// objects and deletes them from the live table. Without a store it prunes
// without archiving.
type Archiver struct {
	Repo   Repository
	Store  objectstore.Store
	Config ArchiverConfig
	Logger *slog.Logger
	Clock  func() time.Time
}

type PruneSummary struct {
	Scanned    int    `json:"scanned"`
	Archived   int    `json:"archived"`
	Deleted    int64  `json:"deleted"`
	ArchiveKey string `json:"archive_key,omitempty"`
}

func (a *Archiver) Run(ctx context.Context) error {
	a.ensureDefaults()

	ticker := time.NewTicker(a.Config.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			summary, err := a.PruneOnce(ctx)
			if err != nil {
				if a.Logger != nil {
					a.Logger.ErrorContext(ctx, "history prune cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			if a.Logger != nil && summary.Scanned > 0 {
				a.Logger.InfoContext(ctx, "history prune cycle completed", slog.Any("summary", summary))
			}
		}
	}
}

// PruneOnce archives then deletes one batch of expired entries. The delete
// only happens after the archive object is stored; an archive failure
// leaves the table untouched.
func (a *Archiver) PruneOnce(ctx context.Context) (PruneSummary, error) {
	a.ensureDefaults()
	if a.Repo == nil {
		return PruneSummary{}, fmt.Errorf("history repository is required")
	}

	cutoff := a.Clock().Add(-a.Config.Retention)
	entries, err := a.Repo.ListPrunable(ctx, cutoff, a.Config.PruneLimit)
	if err != nil {
		return PruneSummary{}, fmt.Errorf("list prunable entries: %w", err)
	}
	summary := PruneSummary{Scanned: len(entries)}
	if len(entries) == 0 {
		return summary, nil
	}

	if a.Store != nil {
		result, err := EncodeEntriesToParquet(entries)
		if err != nil {
			return summary, fmt.Errorf("encode archive batch: %w", err)
		}
		key := a.archiveKey(entries)
		if _, err := a.Store.Put(ctx, key, bytes.NewReader(result.Data), int64(len(result.Data)), objectstore.PutOptions{ContentType: "application/octet-stream"}); err != nil {
			return summary, fmt.Errorf("upload archive %s: %w", key, err)
		}
		summary.Archived = len(entries)
		summary.ArchiveKey = key
	}

	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID)
	}
	deleted, err := a.Repo.DeleteByIDs(ctx, ids)
	if err != nil {
		return summary, fmt.Errorf("delete archived entries: %w", err)
	}
	summary.Deleted = deleted

	observability.ObserveHistoryPrune(summary.Archived, int(deleted))
	return summary, nil
}

func (a *Archiver) archiveKey(entries []Entry) string {
	stamp := a.Clock().UTC().Format("20060102T150405Z")
	return fmt.Sprintf("%s/%s_%d-%d.parquet", a.Config.ArchivePrefix, stamp, entries[0].ID, entries[len(entries)-1].ID)
}

func (a *Archiver) ensureDefaults() {
	if a.Clock == nil {
		a.Clock = time.Now
	}
	if a.Config.Retention <= 0 {
		a.Config.Retention = 30 * 24 * time.Hour
	}
	if a.Config.PruneInterval <= 0 {
		a.Config.PruneInterval = time.Hour
	}
	if a.Config.PruneLimit <= 0 {
		a.Config.PruneLimit = 1000
	}
	if a.Config.ArchivePrefix == "" {
		a.Config.ArchivePrefix = "history-archive"
	}
}
