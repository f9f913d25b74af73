package migrations

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsSortsAndPairsUpDown(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000002_history_indexes.up.sql":   {Data: []byte("SELECT 2;")},
		"sql/000002_history_indexes.down.sql": {Data: []byte("SELECT -2;")},
		"sql/000001_query_history.up.sql":     {Data: []byte("SELECT 1;")},
		"sql/000001_query_history.down.sql":   {Data: []byte("SELECT -1;")},
	}

	items, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d", len(items))
	}
	if items[0].Version != 1 || items[1].Version != 2 {
		t.Fatalf("unexpected migration order: %+v", items)
	}
}

func TestLoadMigrationsErrorsWhenDownMissing(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000001_query_history.up.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := loadMigrations(fsys)
	if err == nil {
		t.Fatal("expected error for missing down migration")
	}
	if !strings.Contains(err.Error(), "missing down SQL") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadMigrationsIgnoresUnrelatedFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000001_query_history.up.sql":   {Data: []byte("SELECT 1;")},
		"sql/000001_query_history.down.sql": {Data: []byte("SELECT -1;")},
		"sql/README.md":                     {Data: []byte("notes")},
		"sql/backup.sql.bak":                {Data: []byte("SELECT 0;")},
	}

	items, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
}

func TestLoadEmbeddedMigrations(t *testing.T) {
	items, err := loadMigrations(embeddedFS)
	if err != nil {
		t.Fatalf("loadMigrations(embeddedFS) error = %v", err)
	}
	if len(items) == 0 {
		t.Fatal("expected at least one embedded migration")
	}
	if items[0].Version != 1 {
		t.Fatalf("first embedded version = %d", items[0].Version)
	}
}
