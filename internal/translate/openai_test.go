package translate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/prompt"
)

func chatResponse(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
}

func newTestClient(t *testing.T, baseURL string) *OpenAIClient {
	t.Helper()
	client, err := NewOpenAIClient(OpenAIConfig{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		Model:      "openai/gpt-4o-mini",
		Timeout:    2 * time.Second,
		RetryDelay: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	return client
}

func testRequest() Request {
	return Request{Messages: prompt.Messages{System: "sys", User: "user"}}
}

func TestTranslateSuccessStripsFence(t *testing.T) {
	var sawAuth, sawPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		sawPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(chatResponse("```sql\nSELECT COUNT(*) FROM orders\n```"))
	}))
	defer srv.Close()

	result, err := newTestClient(t, srv.URL).Translate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != "SELECT COUNT(*) FROM orders" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if result.Provider != "openai-compatible" {
		t.Fatalf("Provider = %q", result.Provider)
	}
	if sawAuth != "Bearer test-key" {
		t.Fatalf("Authorization = %q", sawAuth)
	}
	if sawPath != "/chat/completions" {
		t.Fatalf("path = %q", sawPath)
	}
}

func TestTranslateRetriesTransientServiceError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse("SELECT 1"))
	}))
	defer srv.Close()

	result, err := newTestClient(t, srv.URL).Translate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if result.SQL != "SELECT 1" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestTranslateRetriesAtMostOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Translate(context.Background(), testRequest())
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("Translate() error = %v, want *Error", err)
	}
	if terr.Kind != KindServiceError || !terr.Retryable() {
		t.Fatalf("error = %+v, want transient service error", terr)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want exactly 2", calls.Load())
	}
}

func TestTranslateDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Translate(context.Background(), testRequest())
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("Translate() error = %v, want *Error", err)
	}
	if terr.Kind != KindServiceError || terr.Retryable() {
		t.Fatalf("error = %+v, want non-retryable service error", terr)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestTranslateDoesNotRetryMalformedResponse(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Translate(context.Background(), testRequest())
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("Translate() error = %v, want *Error", err)
	}
	if terr.Kind != KindServiceError || terr.Retryable() {
		t.Fatalf("error = %+v, want non-retryable service error", terr)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestTranslateReportsNoStatementFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(chatResponse("I cannot answer that question."))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Translate(context.Background(), testRequest())
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("Translate() error = %v, want *Error", err)
	}
	if terr.Kind != KindNoStatementFound {
		t.Fatalf("Kind = %q, want %q", terr.Kind, KindNoStatementFound)
	}
	if terr.Retryable() {
		t.Fatal("no-statement-found must not be retryable")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestTranslateTimesOutWithSingleRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(500 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(chatResponse("SELECT 1"))
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{
		BaseURL:    srv.URL,
		APIKey:     "test-key",
		Timeout:    50 * time.Millisecond,
		RetryDelay: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}

	_, err = client.Translate(context.Background(), testRequest())
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("Translate() error = %v, want *Error", err)
	}
	if terr.Kind != KindTimeout {
		t.Fatalf("Kind = %q, want %q", terr.Kind, KindTimeout)
	}
	if !terr.Retryable() {
		t.Fatal("timeout should report retryable")
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2 (one retry)", calls.Load())
	}
}

func TestNewOpenAIClientValidatesConfig(t *testing.T) {
	if _, err := NewOpenAIClient(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
	if _, err := NewOpenAIClient(OpenAIConfig{BaseURL: "https://example.com/v1"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		ok      bool
	}{
		{"bare statement", "SELECT 1", "SELECT 1", true},
		{"fenced sql", "```sql\nSELECT 1\n```", "SELECT 1", true},
		{"fenced plain", "```\nWITH x AS (SELECT 1) SELECT * FROM x\n```", "WITH x AS (SELECT 1) SELECT * FROM x", true},
		{"leading prose", "Here is the query:\nSELECT id FROM t", "SELECT id FROM t", true},
		{"prose then fence", "Here is the query:\n```sql\nSELECT 1\n```", "SELECT 1", true},
		{"trailing semicolon kept", "SELECT 1;", "SELECT 1;", true},
		{"refusal", "I cannot answer that.", "", false},
		{"keyword inside word", "selecting the right rows is key", "", false},
		{"empty", "", "", false},
		{"whitespace", "   \n\t ", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractSQL(tc.content)
			if ok != tc.ok {
				t.Fatalf("ExtractSQL(%q) ok = %v, want %v", tc.content, ok, tc.ok)
			}
			if got != tc.want {
				t.Fatalf("ExtractSQL(%q) = %q, want %q", tc.content, got, tc.want)
			}
		})
	}
}
