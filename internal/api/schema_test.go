package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/backend"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/schema"
)

func sampleSnapshot() schema.Snapshot {
	return schema.Snapshot{
		Backend:    "duckdb",
		CapturedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Tables: []schema.Table{
			{Name: "customers", Columns: []schema.Column{
				{Name: "id", DataType: "BIGINT", PrimaryKey: true},
				{Name: "name", DataType: "VARCHAR", Nullable: true},
			}},
			{Name: "orders", Columns: []schema.Column{
				{Name: "id", DataType: "BIGINT", PrimaryKey: true},
			}},
		},
	}
}

func TestSchemaEndpointIncludesSamples(t *testing.T) {
	conn := &fakeConn{samples: map[string]backend.Rows{
		"customers": {Columns: []string{"id", "name"}, Values: [][]any{{int64(1), "Ada"}}},
	}}
	session := &fakeSession{snap: sampleSnapshot(), conn: conn}
	h := NewHandler(testConfig(t, nil), Dependencies{Session: session, SchemaSampleRows: 3})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	var body schemaResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body.Backend != "duckdb" || len(body.Tables) != 2 {
		t.Fatalf("body = %+v", body)
	}
	if conn.gotLimit != 3 {
		t.Fatalf("sample limit = %d, want 3", conn.gotLimit)
	}

	customers := body.Tables[0]
	if customers.Name != "customers" || customers.Sample == nil {
		t.Fatalf("customers table = %+v", customers)
	}
	if len(customers.Sample.Values) != 1 {
		t.Fatalf("sample values = %+v", customers.Sample.Values)
	}

	// sample fetch failed for orders; the table is still listed
	if body.Tables[1].Sample != nil {
		t.Fatalf("orders sample = %+v, want none", body.Tables[1].Sample)
	}
}

func TestSchemaEndpointFetchFailure(t *testing.T) {
	session := &fakeSession{schemaErr: errors.New("introspection failed")}
	h := NewHandler(testConfig(t, nil), Dependencies{Session: session})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestSchemaRefresh(t *testing.T) {
	session := &fakeSession{snap: sampleSnapshot(), conn: &fakeConn{}}
	h := NewHandler(testConfig(t, nil), Dependencies{Session: session})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/schema/refresh", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if session.refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", session.refreshes)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["tables"] != float64(2) {
		t.Fatalf("tables = %v", body["tables"])
	}
}

func TestExamplesEndpoint(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/examples", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Examples []exampleQuestion `json:"examples"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(body.Examples) == 0 {
		t.Fatal("expected at least one example question")
	}
	for _, example := range body.Examples {
		if example.Question == "" {
			t.Fatalf("empty question in %+v", body.Examples)
		}
	}
}
