// Package prompt assembles translator messages from a question and a schema
// snapshot. Building is pure: no I/O, no clock, no randomness, so identical
// requests always produce identical bytes.
package prompt

import (
	"fmt"
	"strings"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/schema"
)

type Request struct {
	Question string
	Snapshot schema.Snapshot
	Dialect  string
	RowLimit int

	// PriorSQL and PriorReason describe a rejected earlier attempt; when set,
	// the user message asks the model to correct it.
	PriorSQL    string
	PriorReason string
}

type Messages struct {
	System string
	User   string
}

func Build(req Request) Messages {
	return Messages{
		System: systemMessage(req.Dialect),
		User:   userMessage(req),
	}
}

func systemMessage(dialect string) string {
	var hint string
	switch dialect {
	case "duckdb":
		hint = "The target engine is DuckDB, which uses PostgreSQL-like SQL syntax. "
	case "postgres":
		hint = "The target engine is PostgreSQL. "
	default:
		hint = "The target engine accepts standard SQL. "
	}
	return "You convert natural language questions into a single read-only SQL statement. " +
		hint +
		"Return ONLY SQL. No markdown, no explanation."
}

func userMessage(req Request) string {
	var b strings.Builder
	b.WriteString("Schema:\n")
	b.WriteString(req.Snapshot.Describe())
	b.WriteString("\n\nQuestion:\n")
	b.WriteString(strings.TrimSpace(req.Question))

	if req.PriorSQL != "" {
		b.WriteString("\n\nA previous attempt produced this statement:\n")
		b.WriteString(strings.TrimSpace(req.PriorSQL))
		b.WriteString("\nIt was rejected: ")
		b.WriteString(strings.TrimSpace(req.PriorReason))
		b.WriteString("\nProduce a corrected statement that uses only the listed tables and columns.")
	}

	b.WriteString("\n\nRules:\n")
	b.WriteString("- Use only listed tables and columns.\n")
	b.WriteString("- Prefer explicit columns over SELECT *.\n")
	if req.RowLimit > 0 {
		fmt.Fprintf(&b, "- Add LIMIT %d unless the question asks for a single row or aggregate.\n", req.RowLimit)
	}
	b.WriteString("- Output a single SQL statement only.")
	return b.String()
}
