package demo

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

func seedTestDB(t *testing.T, opts Options) (Summary, *sql.DB) {
	t.Helper()
	summary, err := Seed(context.Background(), opts)
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	db, err := sql.Open("duckdb", opts.Path)
	if err != nil {
		t.Fatalf("open seeded db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return summary, db
}

func queryInt(t *testing.T, db *sql.DB, query string) int64 {
	t.Helper()
	var value int64
	if err := db.QueryRow(query).Scan(&value); err != nil {
		t.Fatalf("query %q: %v", query, err)
	}
	return value
}

func TestSeedCreatesRetailTables(t *testing.T) {
	opts := Options{
		Path:      filepath.Join(t.TempDir(), "demo.duckdb"),
		Customers: 20,
		Orders:    50,
		Seed:      42,
	}
	summary, db := seedTestDB(t, opts)

	if summary.Customers != 20 || summary.Orders != 50 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Products != len(productCatalog) {
		t.Fatalf("products = %d, want %d", summary.Products, len(productCatalog))
	}

	if got := queryInt(t, db, `SELECT COUNT(*) FROM customers`); got != 20 {
		t.Fatalf("customers = %d", got)
	}
	if got := queryInt(t, db, `SELECT COUNT(*) FROM orders`); got != 50 {
		t.Fatalf("orders = %d", got)
	}
	if got := queryInt(t, db, `SELECT COUNT(*) FROM order_items`); got != int64(summary.OrderItems) {
		t.Fatalf("order_items = %d, want %d", got, summary.OrderItems)
	}

	// every order references an existing customer
	orphans := queryInt(t, db, `
SELECT COUNT(*) FROM orders o LEFT JOIN customers c ON o.customer_id = c.id WHERE c.id IS NULL`)
	if orphans != 0 {
		t.Fatalf("orders with missing customers = %d", orphans)
	}

	// order totals match their items
	mismatched := queryInt(t, db, `
SELECT COUNT(*) FROM orders o
WHERE ABS(o.total - (SELECT SUM(i.quantity * i.unit_price) FROM order_items i WHERE i.order_id = o.id)) > 0.01`)
	if mismatched != 0 {
		t.Fatalf("orders with mismatched totals = %d", mismatched)
	}
}

func TestSeedIsDeterministic(t *testing.T) {
	optsA := Options{Path: filepath.Join(t.TempDir(), "a.duckdb"), Customers: 10, Orders: 25, Seed: 7}
	optsB := Options{Path: filepath.Join(t.TempDir(), "b.duckdb"), Customers: 10, Orders: 25, Seed: 7}

	_, dbA := seedTestDB(t, optsA)
	_, dbB := seedTestDB(t, optsB)

	var nameA, nameB string
	if err := dbA.QueryRow(`SELECT name FROM customers WHERE id = 1`).Scan(&nameA); err != nil {
		t.Fatalf("query a: %v", err)
	}
	if err := dbB.QueryRow(`SELECT name FROM customers WHERE id = 1`).Scan(&nameB); err != nil {
		t.Fatalf("query b: %v", err)
	}
	if nameA != nameB {
		t.Fatalf("customer names differ: %q vs %q", nameA, nameB)
	}

	var totalA, totalB float64
	if err := dbA.QueryRow(`SELECT SUM(total) FROM orders`).Scan(&totalA); err != nil {
		t.Fatalf("sum a: %v", err)
	}
	if err := dbB.QueryRow(`SELECT SUM(total) FROM orders`).Scan(&totalB); err != nil {
		t.Fatalf("sum b: %v", err)
	}
	if totalA != totalB {
		t.Fatalf("order totals differ: %v vs %v", totalA, totalB)
	}
}

func TestSeedDifferentSeedsDiffer(t *testing.T) {
	optsA := Options{Path: filepath.Join(t.TempDir(), "a.duckdb"), Customers: 10, Orders: 25, Seed: 1}
	optsB := Options{Path: filepath.Join(t.TempDir(), "b.duckdb"), Customers: 10, Orders: 25, Seed: 2}

	_, dbA := seedTestDB(t, optsA)
	_, dbB := seedTestDB(t, optsB)

	var totalA, totalB float64
	if err := dbA.QueryRow(`SELECT SUM(total) FROM orders`).Scan(&totalA); err != nil {
		t.Fatalf("sum a: %v", err)
	}
	if err := dbB.QueryRow(`SELECT SUM(total) FROM orders`).Scan(&totalB); err != nil {
		t.Fatalf("sum b: %v", err)
	}
	if totalA == totalB {
		t.Fatalf("different seeds produced identical totals: %v", totalA)
	}
}

func TestSeedRequiresPath(t *testing.T) {
	if _, err := Seed(context.Background(), Options{}); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestSeedPrimaryKeysIntrospectable(t *testing.T) {
	opts := Options{Path: filepath.Join(t.TempDir(), "demo.duckdb"), Customers: 5, Orders: 5, Seed: 3}
	_, db := seedTestDB(t, opts)

	rows, err := db.Query(`PRAGMA table_info('customers')`)
	if err != nil {
		t.Fatalf("table_info: %v", err)
	}
	defer func() { _ = rows.Close() }()

	foundPK := false
	for rows.Next() {
		var (
			cid          int
			name         string
			dataType     string
			notNull      bool
			defaultValue sql.NullString
			primaryKey   bool
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &primaryKey); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if name == "id" && primaryKey {
			foundPK = true
		}
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	if !foundPK {
		t.Fatal("customers.id not reported as primary key")
	}
}
