// Package sqlagentctl implements the command line client. It is a thin
// wrapper over the HTTP API: every command maps to one endpoint.
package sqlagentctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/present"
)

type Options struct {
	Addr       string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// Run executes one command and returns the process exit code: 0 on success,
// 1 when the server reports a failure, 2 for usage or transport errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("sqlagentctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	addr := fs.String("addr", firstNonEmpty(defaults.Addr, "http://localhost:8080"), "API base address")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")
	rawJSON := fs.Bool("json", false, "print raw JSON instead of rendered text for ask/query")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	run := runner{
		client:  client,
		baseURL: strings.TrimRight(*addr, "/"),
		apiKey:  *apiKey,
		rawJSON: *rawJSON,
		stdout:  stdout,
		stderr:  stderr,
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]

	switch command {
	case "ask":
		return run.envelope(ctx, rest, "question", "/v1/ask")
	case "query":
		return run.envelope(ctx, rest, "sql", "/v1/query")
	case "schema":
		return run.simple(ctx, http.MethodGet, "/v1/schema")
	case "examples":
		return run.simple(ctx, http.MethodGet, "/v1/examples")
	case "history":
		return run.history(ctx, rest)
	case "prune":
		return run.simple(ctx, http.MethodPost, "/v1/history/prune")
	case "status":
		return run.simple(ctx, http.MethodGet, "/v1/status")
	case "health":
		return run.simple(ctx, http.MethodGet, "/v1/health")
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
}

type runner struct {
	client  *http.Client
	baseURL string
	apiKey  string
	rawJSON bool
	stdout  io.Writer
	stderr  io.Writer
}

// envelope posts a single-field JSON body and renders the presenter
// response. The exit code follows the envelope's ok flag.
func (r runner) envelope(ctx context.Context, args []string, field, path string) int {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		_, _ = fmt.Fprintf(r.stderr, "usage: sqlagentctl %s \"<%s>\"\n", strings.TrimPrefix(path, "/v1/"), field)
		return 2
	}

	body, err := json.Marshal(map[string]string{field: args[0]})
	if err != nil {
		_, _ = fmt.Fprintf(r.stderr, "encode request: %v\n", err)
		return 2
	}

	code, responseBody, err := r.doRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		_, _ = fmt.Fprintf(r.stderr, "request failed: %v\n", err)
		return 2
	}
	if code >= 400 {
		_, _ = fmt.Fprintf(r.stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	var resp present.Response
	if err := json.Unmarshal(responseBody, &resp); err != nil {
		_, _ = fmt.Fprintf(r.stderr, "decode response: %v\n", err)
		return 2
	}

	if r.rawJSON {
		if pretty, ok := prettyJSON(responseBody); ok {
			_, _ = fmt.Fprintln(r.stdout, pretty)
		}
	} else {
		_, _ = fmt.Fprintln(r.stdout, present.RenderText(resp))
	}

	if !resp.OK {
		return 1
	}
	return 0
}

func (r runner) history(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(r.stderr)
	limit := fs.Int("limit", 0, "maximum entries to list")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	path := "/v1/history"
	if *limit > 0 {
		path += "?limit=" + url.QueryEscape(strconv.Itoa(*limit))
	}
	return r.simple(ctx, http.MethodGet, path)
}

// simple issues a bodyless request and pretty-prints the JSON response.
func (r runner) simple(ctx context.Context, method, path string) int {
	code, responseBody, err := r.doRequest(ctx, method, path, nil)
	if err != nil {
		_, _ = fmt.Fprintf(r.stderr, "request failed: %v\n", err)
		return 2
	}
	if code >= 400 {
		_, _ = fmt.Fprintf(r.stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(r.stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(r.stdout, string(responseBody))
	}
	return 0
}

func (r runner) doRequest(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(r.apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(r.apiKey))
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: sqlagentctl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  ask \"<question>\"    translate a question and run the result")
	_, _ = fmt.Fprintln(w, "  query \"<sql>\"       validate and run a SQL statement")
	_, _ = fmt.Fprintln(w, "  schema              show tables, columns and sample rows")
	_, _ = fmt.Fprintln(w, "  examples            list example questions")
	_, _ = fmt.Fprintln(w, "  history [-limit N]  list recent queries")
	_, _ = fmt.Fprintln(w, "  prune               run one history retention pass")
	_, _ = fmt.Fprintln(w, "  status              show backend and history state")
	_, _ = fmt.Fprintln(w, "  health              check service liveness")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
