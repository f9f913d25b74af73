package schema

import (
	"strings"
	"testing"
	"time"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Backend:    "duckdb",
		CapturedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Tables: []Table{
			{
				Name: "customers",
				Columns: []Column{
					{Name: "id", DataType: "BIGINT", PrimaryKey: true},
					{Name: "name", DataType: "VARCHAR"},
					{Name: "country", DataType: "VARCHAR", Nullable: true},
				},
			},
			{
				Name: "orders",
				Columns: []Column{
					{Name: "id", DataType: "BIGINT", PrimaryKey: true},
					{Name: "customer_id", DataType: "BIGINT"},
					{Name: "total", DataType: "DECIMAL(10,2)", Nullable: true},
				},
			},
		},
	}
}

func TestDescribeFormat(t *testing.T) {
	got := sampleSnapshot().Describe()
	want := "customers(id BIGINT pk, name VARCHAR, country VARCHAR null)\n" +
		"orders(id BIGINT pk, customer_id BIGINT, total DECIMAL(10,2) null)"
	if got != want {
		t.Fatalf("Describe() = %q, want %q", got, want)
	}
}

func TestDescribeIsDeterministic(t *testing.T) {
	snap := sampleSnapshot()
	first := snap.Describe()
	for i := 0; i < 10; i++ {
		if again := snap.Describe(); again != first {
			t.Fatalf("Describe() produced differing output on iteration %d", i)
		}
	}
}

func TestDescribeMarksTruncation(t *testing.T) {
	snap := sampleSnapshot()
	snap.Truncated = true
	got := snap.Describe()
	if !strings.HasSuffix(got, "[schema listing truncated]") {
		t.Fatalf("Describe() = %q, want truncation marker suffix", got)
	}
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	snap := sampleSnapshot()
	table, ok := snap.Lookup("ORDERS")
	if !ok {
		t.Fatal("Lookup(ORDERS) not found")
	}
	if table.Name != "orders" {
		t.Fatalf("Lookup(ORDERS).Name = %q", table.Name)
	}
	col, ok := table.Column("Customer_ID")
	if !ok {
		t.Fatal("Column(Customer_ID) not found")
	}
	if col.DataType != "BIGINT" {
		t.Fatalf("Column DataType = %q", col.DataType)
	}
	if _, ok := snap.Lookup("missing"); ok {
		t.Fatal("Lookup(missing) should not resolve")
	}
}

func TestTruncateCapsTablesAndColumns(t *testing.T) {
	snap := sampleSnapshot()

	capped := Truncate(snap, 1, 2)
	if !capped.Truncated {
		t.Fatal("Truncate() should mark the snapshot truncated")
	}
	if len(capped.Tables) != 1 {
		t.Fatalf("len(Tables) = %d, want 1", len(capped.Tables))
	}
	if len(capped.Tables[0].Columns) != 2 {
		t.Fatalf("len(Columns) = %d, want 2", len(capped.Tables[0].Columns))
	}
	if len(snap.Tables) != 2 || len(snap.Tables[0].Columns) != 3 {
		t.Fatal("Truncate() mutated its input")
	}
}

func TestTruncateWithinLimitsKeepsSnapshotComplete(t *testing.T) {
	snap := sampleSnapshot()
	same := Truncate(snap, 40, 64)
	if same.Truncated {
		t.Fatal("Truncate() within limits should not set Truncated")
	}
	if len(same.Tables) != len(snap.Tables) {
		t.Fatalf("len(Tables) = %d, want %d", len(same.Tables), len(snap.Tables))
	}
}
