package sqlcheck

import (
	"strings"
	"testing"
	"time"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/schema"
)

func testSnapshot() schema.Snapshot {
	return schema.Snapshot{
		Backend:    "duckdb",
		CapturedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Tables: []schema.Table{
			{Name: "customers", Columns: []schema.Column{
				{Name: "id", DataType: "BIGINT", PrimaryKey: true},
				{Name: "name", DataType: "VARCHAR"},
			}},
			{Name: "orders", Columns: []schema.Column{
				{Name: "id", DataType: "BIGINT", PrimaryKey: true},
				{Name: "customer_id", DataType: "BIGINT"},
				{Name: "total", DataType: "DOUBLE"},
				{Name: "order_date", DataType: "DATE"},
			}},
			{Name: "order_items", Columns: []schema.Column{
				{Name: "order_id", DataType: "BIGINT"},
				{Name: "product_id", DataType: "BIGINT"},
			}},
		},
	}
}

func TestCheckAllowsReads(t *testing.T) {
	snap := testSnapshot()
	cases := []struct {
		name string
		stmt string
	}{
		{name: "simple select", stmt: "SELECT * FROM orders"},
		{name: "join with aliases", stmt: "SELECT c.name, o.total FROM orders o JOIN customers c ON o.customer_id = c.id"},
		{name: "comma separated from list", stmt: "SELECT * FROM orders, order_items oi WHERE orders.id = oi.order_id"},
		{name: "qualified table name", stmt: "SELECT id FROM public.orders"},
		{name: "quoted identifier", stmt: `SELECT id FROM "Orders"`},
		{name: "cte reference", stmt: "WITH recent AS (SELECT * FROM orders) SELECT * FROM recent"},
		{name: "subquery", stmt: "SELECT * FROM (SELECT id FROM orders) t"},
		{name: "in subquery", stmt: "SELECT name FROM customers WHERE id IN (SELECT customer_id FROM orders)"},
		{name: "extract is not a table position", stmt: "SELECT EXTRACT(YEAR FROM order_date) FROM orders"},
		{name: "table function", stmt: "SELECT * FROM read_parquet('orders.parquet')"},
		{name: "semicolon inside literal", stmt: "SELECT * FROM customers WHERE id = 1 OR name = 'a;b'"},
		{name: "comment token inside literal", stmt: "SELECT * FROM customers WHERE name = 'a--b'"},
		{name: "alias and function columns", stmt: "SELECT upper(c.name) AS label FROM customers c WHERE c.id > 1 ORDER BY label"},
		{name: "aggregate with group by", stmt: "SELECT count(*) AS n FROM orders GROUP BY customer_id"},
		{name: "cast and date part", stmt: "SELECT CAST(total AS DOUBLE) FROM orders WHERE EXTRACT(year FROM order_date) = 2025"},
		{name: "qualified column", stmt: "SELECT orders.total FROM orders WHERE orders.id = 3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Check(tc.stmt, snap, Options{})
			if !v.Allowed {
				t.Fatalf("Check(%q) rejected: reason=%s detail=%s", tc.stmt, v.Reason, v.Detail)
			}
			if v.Mutation {
				t.Fatalf("Check(%q) marked as mutation", tc.stmt)
			}
		})
	}
}

func TestCheckRejects(t *testing.T) {
	snap := testSnapshot()
	cases := []struct {
		name   string
		stmt   string
		reason Reason
		detail string
	}{
		{name: "drop table", stmt: "DROP TABLE orders", reason: ReasonNonRead},
		{name: "create table", stmt: "CREATE TABLE t (id INT)", reason: ReasonNonRead},
		{name: "delete", stmt: "DELETE FROM orders", reason: ReasonNonRead},
		{name: "pragma", stmt: "PRAGMA database_list", reason: ReasonNonRead},
		{name: "attach", stmt: "ATTACH 'other.db' AS other", reason: ReasonNonRead},
		{name: "copy", stmt: "COPY orders TO 'out.csv'", reason: ReasonNonRead},
		{name: "empty", stmt: "   ;", reason: ReasonNonRead, detail: "empty statement"},
		{name: "stacked statements", stmt: "SELECT 1; DROP TABLE orders", reason: ReasonInjectionRisk, detail: "multiple statements are not allowed"},
		{name: "line comment", stmt: "SELECT * FROM orders -- hidden", reason: ReasonInjectionRisk, detail: "comment tokens are not allowed"},
		{name: "block comment", stmt: "SELECT /* sneaky */ * FROM orders", reason: ReasonInjectionRisk, detail: "comment tokens are not allowed"},
		{name: "numeric tautology", stmt: "SELECT * FROM orders WHERE id = 1 OR 1=1", reason: ReasonInjectionRisk, detail: "always-true filter pattern"},
		{name: "literal tautology", stmt: "SELECT * FROM orders WHERE name = '' OR 'a'='a'", reason: ReasonInjectionRisk, detail: "always-true filter pattern"},
		{name: "unterminated literal", stmt: "SELECT * FROM orders WHERE name = 'oops", reason: ReasonInjectionRisk, detail: "unterminated string literal"},
		{name: "unterminated comment", stmt: "SELECT * FROM orders /* oops", reason: ReasonInjectionRisk, detail: "unterminated comment"},
		{name: "unknown table", stmt: "SELECT * FROM shipments", reason: ReasonUnknownIdentifier, detail: `unknown table "shipments"`},
		{name: "unknown join target", stmt: "SELECT * FROM orders JOIN ghosts ON orders.id = ghosts.id", reason: ReasonUnknownIdentifier, detail: `unknown table "ghosts"`},
		{name: "unknown table in subquery", stmt: "SELECT * FROM customers WHERE id IN (SELECT customer_id FROM ghost_orders)", reason: ReasonUnknownIdentifier, detail: `unknown table "ghost_orders"`},
		{name: "unknown column", stmt: "SELECT shoe_size FROM customers", reason: ReasonUnknownIdentifier, detail: `unknown column "shoe_size"`},
		{name: "unknown column in where", stmt: "SELECT name FROM customers WHERE shoe_size > 10", reason: ReasonUnknownIdentifier, detail: `unknown column "shoe_size"`},
		{name: "unknown qualified column", stmt: "SELECT c.shoe_size FROM customers c", reason: ReasonUnknownIdentifier, detail: `unknown column "shoe_size"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Check(tc.stmt, snap, Options{})
			if v.Allowed {
				t.Fatalf("Check(%q) allowed, want reason %s", tc.stmt, tc.reason)
			}
			if v.Reason != tc.reason {
				t.Fatalf("Check(%q) reason = %s, want %s", tc.stmt, v.Reason, tc.reason)
			}
			if tc.detail != "" && v.Detail != tc.detail {
				t.Fatalf("Check(%q) detail = %q, want %q", tc.stmt, v.Detail, tc.detail)
			}
		})
	}
}

func TestCheckAllowMutation(t *testing.T) {
	snap := testSnapshot()
	opts := Options{AllowMutation: true}

	cases := []struct {
		name     string
		stmt     string
		allowed  bool
		mutation bool
	}{
		{name: "update", stmt: "UPDATE orders SET total = 0 WHERE id = 7", allowed: true, mutation: true},
		{name: "insert", stmt: "INSERT INTO orders (id, total) VALUES (1, 2.0)", allowed: true, mutation: true},
		{name: "delete", stmt: "DELETE FROM order_items WHERE order_id = 9", allowed: true, mutation: true},
		{name: "data modifying cte", stmt: "WITH gone AS (DELETE FROM order_items WHERE order_id = 9 RETURNING order_id) SELECT * FROM gone", allowed: true, mutation: true},
		{name: "select stays read", stmt: "SELECT * FROM orders", allowed: true, mutation: false},
		{name: "ddl still rejected", stmt: "DROP TABLE orders", allowed: false},
		{name: "truncate still rejected", stmt: "TRUNCATE orders", allowed: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := Check(tc.stmt, snap, opts)
			if v.Allowed != tc.allowed {
				t.Fatalf("Check(%q) allowed = %t, want %t (reason=%s detail=%s)", tc.stmt, v.Allowed, tc.allowed, v.Reason, v.Detail)
			}
			if v.Allowed && v.Mutation != tc.mutation {
				t.Fatalf("Check(%q) mutation = %t, want %t", tc.stmt, v.Mutation, tc.mutation)
			}
		})
	}

	v := Check("UPDATE orders SET total = 0", snap, Options{})
	if v.Allowed || v.Reason != ReasonNonRead {
		t.Fatalf("Check() without AllowMutation = %+v, want non-read rejection", v)
	}
}

func TestCheckNormalizesTrailingSemicolons(t *testing.T) {
	v := Check("SELECT * FROM orders;;  ", testSnapshot(), Options{})
	if !v.Allowed {
		t.Fatalf("Check() rejected: %s %s", v.Reason, v.Detail)
	}
	if v.Normalized != "SELECT * FROM orders" {
		t.Fatalf("Normalized = %q, want %q", v.Normalized, "SELECT * FROM orders")
	}
}

func TestCheckTruncatedSnapshotSkipsIdentifiers(t *testing.T) {
	snap := testSnapshot()
	snap.Truncated = true

	v := Check("SELECT * FROM shipments", snap, Options{})
	if !v.Allowed {
		t.Fatalf("Check() rejected on truncated snapshot: %s %s", v.Reason, v.Detail)
	}
	if len(v.Warnings) != 1 || !strings.Contains(v.Warnings[0], "truncated") {
		t.Fatalf("Warnings = %v, want truncation warning", v.Warnings)
	}
}

func TestCheckMergeUsingSource(t *testing.T) {
	snap := testSnapshot()
	opts := Options{AllowMutation: true}

	v := Check("MERGE INTO orders USING order_items ON orders.id = order_items.order_id WHEN MATCHED THEN UPDATE SET total = 0", snap, opts)
	if !v.Allowed || !v.Mutation {
		t.Fatalf("Check(merge) = %+v, want allowed mutation", v)
	}

	v = Check("MERGE INTO orders USING ghosts ON orders.id = ghosts.id WHEN MATCHED THEN UPDATE SET total = 0", snap, opts)
	if v.Allowed || v.Reason != ReasonUnknownIdentifier {
		t.Fatalf("Check(merge unknown source) = %+v, want unknown-identifier", v)
	}
}

func TestVerdictMetricLabel(t *testing.T) {
	cases := []struct {
		verdict Verdict
		want    string
	}{
		{Verdict{Allowed: true}, "allowed"},
		{Verdict{Reason: ReasonNonRead}, "non_read"},
		{Verdict{Reason: ReasonUnknownIdentifier}, "unknown_identifier"},
		{Verdict{Reason: ReasonInjectionRisk}, "injection_risk"},
	}
	for _, tc := range cases {
		if got := tc.verdict.MetricLabel(); got != tc.want {
			t.Fatalf("MetricLabel() = %q, want %q", got, tc.want)
		}
	}
}
