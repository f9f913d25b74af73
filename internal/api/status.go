package api

import (
	"net/http"
	"time"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/auth"
)

// handleStatus aggregates operational state for dashboards: backend
// reachability, schema snapshot age, and history depth.
func handleStatus(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Session == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSION_NOT_CONFIGURED", "query session is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQuery); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	connector := deps.Session.Connector()
	backendKind := ""
	pingOK := false
	if connector != nil {
		backendKind = connector.Kind()
		pingOK = connector.Ping(r.Context()) == nil
	}

	response := map[string]any{
		"backend":  backendKind,
		"ping_ok":  pingOK,
		"max_rows": deps.Session.MaxRows(),
		"version":  deps.Version,
	}

	if snap, err := deps.Session.Schema(r.Context()); err == nil {
		snapshotAgeMs := time.Since(snap.CapturedAt).Milliseconds()
		if snapshotAgeMs < 0 {
			snapshotAgeMs = 0
		}
		response["schema"] = map[string]any{
			"captured_at": snap.CapturedAt,
			"age_ms":      snapshotAgeMs,
			"tables":      len(snap.Tables),
			"truncated":   snap.Truncated,
		}
	}

	if deps.History != nil {
		stats, err := deps.History.Stats(r.Context())
		if err != nil {
			writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_ERROR", "failed to read history statistics", true, map[string]any{"details": err.Error()})
			return
		}
		historyStats := map[string]any{
			"total_entries":  stats.TotalEntries,
			"failed_entries": stats.FailedEntries,
		}
		if stats.OldestAskedAt != nil {
			historyStats["oldest_asked_at"] = stats.OldestAskedAt.UTC()
		}
		response["history"] = historyStats
	}

	writeJSON(w, http.StatusOK, response)
}
