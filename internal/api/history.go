package api

import (
	"net/http"
	"strconv"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/auth"
)

func handleHistoryList(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.History == nil {
		writeError(r.Context(), w, http.StatusNotFound, "HISTORY_DISABLED", "query history is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQuery); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, nil)
			return
		}
		limit = parsed
	}

	entries, err := deps.History.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_ERROR", "failed to list history", true, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func handleHistoryPrune(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pruner == nil {
		writeError(r.Context(), w, http.StatusNotFound, "HISTORY_DISABLED", "history pruning is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	summary, err := deps.Pruner.PruneOnce(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "PRUNE_FAILED", "history prune failed", true, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"scanned":     summary.Scanned,
		"archived":    summary.Archived,
		"deleted":     summary.Deleted,
		"archive_key": summary.ArchiveKey,
	})
}
