// Package schema models the introspected shape of a backend database. A
// Snapshot is a plain value: it carries no connection handles and can be
// cached, compared, and serialized without touching the backend again.
package schema

import (
	"strings"
	"time"
)

type Column struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

type Snapshot struct {
	Backend    string    `json:"backend"`
	CapturedAt time.Time `json:"captured_at"`
	Tables     []Table   `json:"tables"`
	Truncated  bool      `json:"truncated"`
}

func (t Table) Column(name string) (Column, bool) {
	for _, col := range t.Columns {
		if strings.EqualFold(col.Name, name) {
			return col, true
		}
	}
	return Column{}, false
}

func (s Snapshot) Lookup(table string) (Table, bool) {
	for _, t := range s.Tables {
		if strings.EqualFold(t.Name, table) {
			return t, true
		}
	}
	return Table{}, false
}

func (s Snapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.Name)
	}
	return names
}

// Describe renders the snapshot as compact text for prompts, one line per
// table in introspection order. The output depends only on the snapshot
// contents, so identical snapshots produce identical prompt bytes.
func (s Snapshot) Describe() string {
	var b strings.Builder
	for i, table := range s.Tables {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(table.Name)
		b.WriteByte('(')
		for j, col := range table.Columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(col.Name)
			b.WriteByte(' ')
			b.WriteString(col.DataType)
			if col.PrimaryKey {
				b.WriteString(" pk")
			}
			if col.Nullable {
				b.WriteString(" null")
			}
		}
		b.WriteByte(')')
	}
	if s.Truncated {
		if len(s.Tables) > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("[schema listing truncated]")
	}
	return b.String()
}

// Truncate caps the snapshot at maxTables tables and maxColumns columns per
// table, marking the result truncated if anything was dropped. The input is
// never mutated.
func Truncate(s Snapshot, maxTables, maxColumns int) Snapshot {
	out := Snapshot{
		Backend:    s.Backend,
		CapturedAt: s.CapturedAt,
		Truncated:  s.Truncated,
	}
	tables := s.Tables
	if maxTables > 0 && len(tables) > maxTables {
		tables = tables[:maxTables]
		out.Truncated = true
	}
	out.Tables = make([]Table, 0, len(tables))
	for _, t := range tables {
		cols := t.Columns
		if maxColumns > 0 && len(cols) > maxColumns {
			cols = cols[:maxColumns]
			out.Truncated = true
		}
		copied := make([]Column, len(cols))
		copy(copied, cols)
		out.Tables = append(out.Tables, Table{Name: t.Name, Columns: copied})
	}
	return out
}
