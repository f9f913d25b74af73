// Package present shapes pipeline outcomes into a single response form.
// Every response names the stage it reached and carries the SQL that was
// attempted, successful or not, so callers can always see what ran.
package present

import (
	"errors"
	"fmt"
	"strings"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/backend"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/executor"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/sqlcheck"
	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/translate"
)

const (
	StageIntrospect = "introspect"
	StageTranslate  = "translate"
	StageValidate   = "validate"
	StageExecute    = "execute"
	StageComplete   = "complete"
)

const (
	CodeConnectFailed        = "CONNECT_FAILED"
	CodeConnectAuth          = "CONNECT_AUTH"
	CodeIntrospectFailed     = "INTROSPECT_FAILED"
	CodeTranslateTimeout     = "TRANSLATE_TIMEOUT"
	CodeTranslateService     = "TRANSLATE_SERVICE"
	CodeTranslateNoStatement = "TRANSLATE_NO_STATEMENT"
	CodeRejectedNonRead      = "SQL_REJECTED_NON_READ"
	CodeRejectedUnknownIdent = "SQL_REJECTED_UNKNOWN_IDENTIFIER"
	CodeRejectedInjection    = "SQL_REJECTED_INJECTION"
	CodeExecuteTimeout       = "EXECUTE_TIMEOUT"
	CodeExecuteRowLimit      = "EXECUTE_ROW_LIMIT"
	CodeExecuteFailed        = "EXECUTE_FAILED"
)

type Response struct {
	Question     string   `json:"question"`
	SQL          string   `json:"sql,omitempty"`
	Stage        string   `json:"stage"`
	OK           bool     `json:"ok"`
	ErrorCode    string   `json:"error_code,omitempty"`
	Message      string   `json:"message,omitempty"`
	Retryable    bool     `json:"retryable,omitempty"`
	Columns      []string `json:"columns,omitempty"`
	Rows         [][]any  `json:"rows,omitempty"`
	RowCount     int      `json:"row_count"`
	RowsAffected *int64   `json:"rows_affected,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	Rounds       int      `json:"rounds,omitempty"`
	TranslateMS  int64    `json:"translate_ms,omitempty"`
	ExecuteMS    int64    `json:"execute_ms,omitempty"`
	Provider     string   `json:"provider,omitempty"`
	Model        string   `json:"model,omitempty"`
}

// Success wraps a completed read query.
func Success(question, sqlText string, res executor.Result) Response {
	return Response{
		Question:  question,
		SQL:       sqlText,
		Stage:     StageComplete,
		OK:        true,
		Columns:   res.Columns,
		Rows:      res.Rows,
		RowCount:  len(res.Rows),
		ExecuteMS: res.Duration.Milliseconds(),
	}
}

// ExecSuccess wraps a completed mutation.
func ExecSuccess(question, sqlText string, res executor.ExecResult) Response {
	affected := res.RowsAffected
	return Response{
		Question:     question,
		SQL:          sqlText,
		Stage:        StageComplete,
		OK:           true,
		RowsAffected: &affected,
		ExecuteMS:    res.Duration.Milliseconds(),
	}
}

// Rejection wraps a validator verdict that blocked execution.
func Rejection(question, sqlText string, v sqlcheck.Verdict) Response {
	code := CodeRejectedNonRead
	switch v.Reason {
	case sqlcheck.ReasonUnknownIdentifier:
		code = CodeRejectedUnknownIdent
	case sqlcheck.ReasonInjectionRisk:
		code = CodeRejectedInjection
	}
	return Response{
		Question:  question,
		SQL:       sqlText,
		Stage:     StageValidate,
		ErrorCode: code,
		Message:   fmt.Sprintf("statement rejected: %s", v.Detail),
		Warnings:  v.Warnings,
	}
}

// Failure maps a pipeline error to a coded response. The stage tells the
// caller how far the question got before it failed.
func Failure(question, sqlText, stage string, err error) Response {
	resp := Response{
		Question: question,
		SQL:      sqlText,
		Stage:    stage,
	}

	var connErr *backend.ConnectError
	var trErr *translate.Error
	var execErr *executor.Error
	switch {
	case errors.As(err, &connErr):
		if connErr.Auth {
			resp.ErrorCode = CodeConnectAuth
			resp.Message = fmt.Sprintf("%v; check the configured credentials", connErr)
		} else {
			resp.ErrorCode = CodeConnectFailed
			resp.Message = connErr.Error()
			resp.Retryable = true
		}
	case errors.As(err, &trErr):
		switch trErr.Kind {
		case translate.KindTimeout:
			resp.ErrorCode = CodeTranslateTimeout
			resp.Retryable = true
		case translate.KindNoStatementFound:
			resp.ErrorCode = CodeTranslateNoStatement
		default:
			resp.ErrorCode = CodeTranslateService
			resp.Retryable = trErr.Retryable()
		}
		resp.Message = trErr.Error()
	case errors.As(err, &execErr):
		switch execErr.Kind {
		case executor.KindTimeout:
			resp.ErrorCode = CodeExecuteTimeout
			resp.Retryable = true
			resp.Message = execErr.Error()
		case executor.KindRowLimitExceeded:
			resp.ErrorCode = CodeExecuteRowLimit
			resp.Message = fmt.Sprintf("result exceeded %d rows; add a LIMIT or ask a narrower question", execErr.Limit)
		default:
			resp.ErrorCode = CodeExecuteFailed
			resp.Message = execErr.Error()
		}
	default:
		switch stage {
		case StageIntrospect:
			resp.ErrorCode = CodeIntrospectFailed
		case StageTranslate:
			resp.ErrorCode = CodeTranslateService
		default:
			resp.ErrorCode = CodeExecuteFailed
		}
		resp.Message = err.Error()
	}
	return resp
}

// RenderText formats a response for terminal output: an aligned column
// table on success, the stage and reason on failure.
func RenderText(resp Response) string {
	var b strings.Builder
	if resp.SQL != "" {
		fmt.Fprintf(&b, "sql: %s\n", resp.SQL)
	}
	if !resp.OK {
		fmt.Fprintf(&b, "failed at %s: %s (%s)\n", resp.Stage, resp.Message, resp.ErrorCode)
		if resp.Retryable {
			b.WriteString("the failure is transient; try again\n")
		}
		for _, w := range resp.Warnings {
			fmt.Fprintf(&b, "warning: %s\n", w)
		}
		return b.String()
	}

	for _, w := range resp.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	if resp.RowsAffected != nil {
		fmt.Fprintf(&b, "%d row(s) affected in %dms\n", *resp.RowsAffected, resp.ExecuteMS)
		return b.String()
	}
	if len(resp.Columns) == 0 {
		b.WriteString("(no columns)\n")
		return b.String()
	}

	widths := make([]int, len(resp.Columns))
	for i, c := range resp.Columns {
		widths[i] = len(c)
	}
	cells := make([][]string, len(resp.Rows))
	for r, row := range resp.Rows {
		cells[r] = make([]string, len(resp.Columns))
		for i := range resp.Columns {
			var v any
			if i < len(row) {
				v = row[i]
			}
			cell := formatValue(v)
			cells[r][i] = cell
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	writeRow := func(vals []string) {
		for i, v := range vals {
			if i > 0 {
				b.WriteString(" | ")
			}
			fmt.Fprintf(&b, "%-*s", widths[i], v)
		}
		b.WriteString("\n")
	}
	writeRow(resp.Columns)
	for i, w := range widths {
		if i > 0 {
			b.WriteString("-+-")
		}
		b.WriteString(strings.Repeat("-", w))
	}
	b.WriteString("\n")
	for _, row := range cells {
		writeRow(row)
	}
	fmt.Fprintf(&b, "(%d row(s) in %dms)\n", resp.RowCount, resp.ExecuteMS)
	return b.String()
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}
