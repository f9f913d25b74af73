// Package translate turns prompt messages into SQL through an LLM chat
// completion API. Extraction of the statement from the model's reply is
// deterministic: the reply is either accepted as-is or refused, never
// rewritten or completed.
package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/prompt"
)

type Kind string

const (
	KindTimeout          Kind = "timeout"
	KindServiceError     Kind = "service-error"
	KindNoStatementFound Kind = "no-statement-found"
)

type Request struct {
	Messages prompt.Messages
}

type Result struct {
	SQL      string
	Provider string
	Model    string
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

// Error is the translator failure taxonomy. Transient marks service errors
// that may clear on their own (rate limits, 5xx); malformed responses are
// never transient.
type Error struct {
	Kind      Kind
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("translate: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("translate: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the user retrying the whole ask could plausibly
// succeed without changing anything.
func (e *Error) Retryable() bool {
	return e.Kind == KindTimeout || e.Transient
}

var statementKeywords = []string{
	"select", "with", "insert", "update", "delete",
	"create", "drop", "alter", "merge", "pragma",
	"explain", "show", "describe",
}

// ExtractSQL pulls a SQL statement out of a model reply. It strips a single
// markdown fence, accepts text that starts with a statement keyword, and
// otherwise scans for the first line that does. It never invents or repairs
// SQL; when nothing statement-shaped is present it reports false.
func ExtractSQL(content string) (string, bool) {
	trimmed := stripFence(strings.TrimSpace(content))
	if trimmed == "" {
		return "", false
	}
	if startsWithStatementKeyword(trimmed) {
		return trimmed, true
	}
	lines := strings.Split(trimmed, "\n")
	for i, line := range lines {
		if startsWithStatementKeyword(strings.TrimSpace(line)) {
			rest := strings.TrimSpace(strings.Join(lines[i:], "\n"))
			rest = strings.TrimSpace(strings.TrimSuffix(rest, "```"))
			if rest == "" {
				return "", false
			}
			return rest, true
		}
	}
	return "", false
}

func stripFence(value string) string {
	if !strings.HasPrefix(value, "```") {
		return value
	}
	value = strings.TrimPrefix(value, "```sql")
	value = strings.TrimPrefix(value, "```")
	value = strings.TrimSuffix(strings.TrimSpace(value), "```")
	return strings.TrimSpace(value)
}

func startsWithStatementKeyword(value string) bool {
	lower := strings.ToLower(value)
	for _, keyword := range statementKeywords {
		if !strings.HasPrefix(lower, keyword) {
			continue
		}
		rest := lower[len(keyword):]
		if rest == "" || !isIdentChar(rest[0]) {
			return true
		}
	}
	return false
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
