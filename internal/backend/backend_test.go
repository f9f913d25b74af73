package backend

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestQuoteIdent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"orders", `"orders"`},
		{`weird"name`, `"weird""name"`},
		{"", `""`},
	}
	for _, tc := range tests {
		if got := QuoteIdent(tc.in); got != tc.want {
			t.Fatalf("QuoteIdent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestConnectErrorMessages(t *testing.T) {
	cause := errors.New("password authentication failed")
	err := &ConnectError{Backend: "postgres", Auth: true, Err: cause}
	if got := err.Error(); got != "connect postgres: authentication failed: password authentication failed" {
		t.Fatalf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected Unwrap to expose the cause")
	}

	plain := &ConnectError{Backend: "duckdb", Err: errors.New("no such file")}
	if got := plain.Error(); got != "connect duckdb: no such file" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestCollectRowsNormalizesBytes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "orders" LIMIT 2`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).
			AddRow(int64(1), []byte("shipped")).
			AddRow(int64(2), []byte("pending")))

	rows, err := CollectRows(context.Background(), db, `SELECT * FROM "orders" LIMIT 2`)
	if err != nil {
		t.Fatalf("CollectRows() error = %v", err)
	}
	if len(rows.Columns) != 2 || rows.Columns[0] != "id" {
		t.Fatalf("Columns = %#v", rows.Columns)
	}
	if len(rows.Values) != 2 {
		t.Fatalf("len(Values) = %d", len(rows.Values))
	}
	if rows.Values[0][1] != "shipped" {
		t.Fatalf("Values[0][1] = %#v, want string", rows.Values[0][1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
