package duckdb

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/objectstore"
)

func TestOpenInMemoryAndIntrospect(t *testing.T) {
	conn, err := Open(context.Background(), Config{}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = conn.Close() }()

	ddl := []string{
		`CREATE TABLE customers (id BIGINT PRIMARY KEY, name VARCHAR NOT NULL, country VARCHAR)`,
		`CREATE TABLE orders (id BIGINT PRIMARY KEY, customer_id BIGINT NOT NULL, total DOUBLE)`,
	}
	for _, stmt := range ddl {
		if _, err := conn.DB().ExecContext(context.Background(), stmt); err != nil {
			t.Fatalf("exec %q error = %v", stmt, err)
		}
	}

	snap, err := conn.Introspect(context.Background())
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	if snap.Backend != "duckdb" {
		t.Fatalf("Backend = %q", snap.Backend)
	}
	if len(snap.Tables) != 2 {
		t.Fatalf("len(Tables) = %d", len(snap.Tables))
	}
	customers, ok := snap.Lookup("customers")
	if !ok {
		t.Fatal("customers table missing from snapshot")
	}
	id, ok := customers.Column("id")
	if !ok || !id.PrimaryKey {
		t.Fatalf("customers.id = %+v, want primary key", id)
	}
	country, ok := customers.Column("country")
	if !ok || !country.Nullable {
		t.Fatalf("customers.country = %+v, want nullable", country)
	}
	name, ok := customers.Column("name")
	if !ok || name.Nullable {
		t.Fatalf("customers.name = %+v, want not nullable", name)
	}
}

func TestSampleRowsReturnsData(t *testing.T) {
	conn, err := Open(context.Background(), Config{}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = conn.Close() }()

	stmts := []string{
		`CREATE TABLE products (id BIGINT PRIMARY KEY, name VARCHAR)`,
		`INSERT INTO products VALUES (1, 'widget'), (2, 'sprocket'), (3, 'gear')`,
	}
	for _, stmt := range stmts {
		if _, err := conn.DB().ExecContext(context.Background(), stmt); err != nil {
			t.Fatalf("exec error = %v", err)
		}
	}

	rows, err := conn.SampleRows(context.Background(), "products", 2)
	if err != nil {
		t.Fatalf("SampleRows() error = %v", err)
	}
	if len(rows.Columns) != 2 {
		t.Fatalf("Columns = %#v", rows.Columns)
	}
	if len(rows.Values) != 2 {
		t.Fatalf("len(Values) = %d, want 2", len(rows.Values))
	}
}

func TestOpenHydratesParquetDatasets(t *testing.T) {
	parquetBytes, err := buildParquet([]datasetRow{
		{ID: 1, Value: "a"},
		{ID: 2, Value: "b"},
	})
	if err != nil {
		t.Fatalf("buildParquet() error = %v", err)
	}

	store := &memoryStore{objects: map[string][]byte{"warehouse/events.parquet": parquetBytes}}
	conn, err := Open(context.Background(), Config{
		Datasets: []Dataset{{View: "events", ObjectKey: "warehouse/events.parquet"}},
	}, store)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.SampleRows(context.Background(), "events", 10)
	if err != nil {
		t.Fatalf("SampleRows() error = %v", err)
	}
	if len(rows.Values) != 2 {
		t.Fatalf("len(Values) = %d, want 2", len(rows.Values))
	}

	snap, err := conn.Introspect(context.Background())
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	if _, ok := snap.Lookup("events"); !ok {
		t.Fatal("dataset view missing from snapshot")
	}
}

func TestOpenRequiresStoreForDatasets(t *testing.T) {
	_, err := Open(context.Background(), Config{
		Datasets: []Dataset{{View: "events", ObjectKey: "warehouse/events.parquet"}},
	}, nil)
	if err == nil {
		t.Fatal("expected error when datasets configured without object store")
	}
}

func TestParseDatasets(t *testing.T) {
	datasets, err := ParseDatasets(" orders = warehouse/orders.parquet , events=warehouse/events.parquet ")
	if err != nil {
		t.Fatalf("ParseDatasets() error = %v", err)
	}
	if len(datasets) != 2 {
		t.Fatalf("len(datasets) = %d", len(datasets))
	}
	if datasets[0].View != "orders" || datasets[0].ObjectKey != "warehouse/orders.parquet" {
		t.Fatalf("datasets[0] = %+v", datasets[0])
	}

	if _, err := ParseDatasets("orders"); err == nil {
		t.Fatal("expected error for entry without =")
	}
	if _, err := ParseDatasets("orders=a.parquet,orders=b.parquet"); err == nil {
		t.Fatal("expected error for duplicate view")
	}
	empty, err := ParseDatasets("  ")
	if err != nil || empty != nil {
		t.Fatalf("ParseDatasets(blank) = %v, %v", empty, err)
	}
}

type datasetRow struct {
	ID    int64  `parquet:"id"`
	Value string `parquet:"value"`
}

func buildParquet(rows []datasetRow) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[datasetRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) Put(context.Context, string, io.Reader, int64, objectstore.PutOptions) (objectstore.ObjectInfo, error) {
	return objectstore.ObjectInfo{}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, objectstore.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Stat(context.Context, string) (objectstore.ObjectInfo, error) {
	return objectstore.ObjectInfo{}, nil
}

func (m *memoryStore) Delete(context.Context, string) error {
	return nil
}
