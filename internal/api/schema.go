package api

import (
	"context"
	"net/http"
	"time"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/auth"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/backend"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/schema"
)

type schemaTable struct {
	Name    string          `json:"name"`
	Columns []schema.Column `json:"columns"`
	Sample  *backend.Rows   `json:"sample,omitempty"`
}

type schemaResponse struct {
	Backend    string        `json:"backend"`
	CapturedAt time.Time     `json:"captured_at"`
	Truncated  bool          `json:"truncated"`
	Tables     []schemaTable `json:"tables"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Session == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSION_NOT_CONFIGURED", "query session is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQuery); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	snap, err := deps.Session.Schema(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", "failed to load schema", true, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, buildSchemaResponse(r.Context(), deps, snap))
}

func handleSchemaRefresh(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Session == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSION_NOT_CONFIGURED", "query session is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQuery); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	snap, err := deps.Session.RefreshSchema(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_REFRESH_FAILED", "failed to refresh schema", true, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"backend":     snap.Backend,
		"captured_at": snap.CapturedAt,
		"tables":      len(snap.Tables),
		"truncated":   snap.Truncated,
	})
}

// buildSchemaResponse attaches a few live sample rows to each table. A
// failed sample fetch leaves the table listed without samples rather than
// failing the whole response.
func buildSchemaResponse(ctx context.Context, deps Dependencies, snap schema.Snapshot) schemaResponse {
	response := schemaResponse{
		Backend:    snap.Backend,
		CapturedAt: snap.CapturedAt.UTC(),
		Truncated:  snap.Truncated,
		Tables:     make([]schemaTable, 0, len(snap.Tables)),
	}

	sampleRows := deps.SchemaSampleRows
	if sampleRows <= 0 {
		sampleRows = 5
	}

	connector := deps.Session.Connector()
	for _, table := range snap.Tables {
		entry := schemaTable{Name: table.Name, Columns: table.Columns}
		if connector != nil {
			if rows, err := connector.SampleRows(ctx, table.Name, sampleRows); err == nil {
				entry.Sample = &rows
			}
		}
		response.Tables = append(response.Tables, entry)
	}
	return response
}

type exampleQuestion struct {
	Question string `json:"question"`
	Hint     string `json:"hint,omitempty"`
}

// exampleQuestions is a curated starter list for client UIs. The questions
// assume nothing about the connected schema beyond common retail naming.
var exampleQuestions = []exampleQuestion{
	{Question: "How many rows does each table have?"},
	{Question: "Show the five most recent orders", Hint: "works on any table with a timestamp column"},
	{Question: "What are the top 10 customers by total order value?"},
	{Question: "How many orders were placed per month this year?"},
	{Question: "Which products have never been ordered?"},
	{Question: "What is the average order value by country?"},
}

func handleExamples(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleQuery); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"examples": exampleQuestions})
}
