package api

import (
	"encoding/json"
	"net/http"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/auth"
)

type askRequest struct {
	Question string `json:"question"`
}

type runSQLRequest struct {
	SQL string `json:"sql"`
}

// handleAsk runs the full question-to-result pipeline. The presenter
// envelope is the response contract: pipeline failures still answer 200.
func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Session == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSION_NOT_CONFIGURED", "query session is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQuery); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}

	// Empty questions flow through the session so the caller gets the same
	// envelope shape as every other pipeline outcome.
	writeJSON(w, http.StatusOK, deps.Session.Ask(r.Context(), request.Question))
}

// handleRunSQL validates and executes caller-authored SQL. The same
// statement gate applies as for translated statements.
func handleRunSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Session == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSION_NOT_CONFIGURED", "query session is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQuery); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request runSQLRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, deps.Session.RunSQL(r.Context(), request.SQL))
}
