package migrations

import (
	"strings"
	"testing"
)

func TestHistoryMigrationContainsRequiredObjects(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000001_query_history.up.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	sql := string(body)
	requiredSnippets := []string{
		"CREATE TABLE query_history",
		"asked_at",
		"sql_text",
		"error_code",
		"duration_ms",
		"CREATE INDEX idx_query_history_asked_at",
		"CREATE INDEX idx_query_history_principal_id_desc",
	}

	for _, snippet := range requiredSnippets {
		if !strings.Contains(sql, snippet) {
			t.Fatalf("migration missing required snippet: %s", snippet)
		}
	}
}

func TestHistoryMigrationDownDropsTable(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000001_query_history.down.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(body), "DROP TABLE IF EXISTS query_history") {
		t.Fatalf("down migration does not drop query_history: %s", body)
	}
}
