package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/seth2k2/SQL-DATABASE-AGENT/internal/observability"
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	RetryDelay  time.Duration
}

// OpenAIClient speaks the OpenAI-compatible chat completion protocol, which
// OpenRouter and most self-hosted gateways implement.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	timeout     time.Duration
	retryDelay  time.Duration
	client      *http.Client
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "openai/gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}
	return &OpenAIClient{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		timeout:     timeout,
		retryDelay:  retryDelay,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

// Translate performs at most two attempts: the first, and one retry after a
// fixed delay when the failure was transient (timeout, rate limit, 5xx,
// network). Malformed responses and statement-free replies fail immediately.
func (c *OpenAIClient) Translate(ctx context.Context, req Request) (Result, error) {
	var lastErr *Error
	for attempt := 0; attempt <= 1; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Result{}, lastErr
			case <-time.After(c.retryDelay):
			}
		}

		start := time.Now()
		result, err := c.translateOnce(ctx, req)
		if err == nil {
			observability.ObserveTranslateAttempt("ok", time.Since(start))
			return result, nil
		}

		var terr *Error
		if !errors.As(err, &terr) {
			terr = &Error{Kind: KindServiceError, Err: err}
		}
		observability.ObserveTranslateAttempt(attemptOutcome(terr.Kind), time.Since(start))
		lastErr = terr
		if !terr.Retryable() || ctx.Err() != nil {
			break
		}
	}
	return Result{}, lastErr
}

func (c *OpenAIClient) translateOnce(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": req.Messages.System},
			{"role": "user", "content": req.Messages.User},
		},
		"temperature": c.temperature,
	})
	if err != nil {
		return Result{}, &Error{Kind: KindServiceError, Err: fmt.Errorf("marshal chat payload: %w", err)}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, &Error{Kind: KindServiceError, Err: fmt.Errorf("build chat request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Result{}, classifyTransportErr(attemptCtx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, classifyTransportErr(attemptCtx, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return Result{}, &Error{
			Kind:      KindServiceError,
			Transient: true,
			Err:       fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, truncateBody(rawBody)),
		}
	}
	if resp.StatusCode >= 400 {
		return Result{}, &Error{
			Kind: KindServiceError,
			Err:  fmt.Errorf("chat completion failed status=%d body=%s", resp.StatusCode, truncateBody(rawBody)),
		}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return Result{}, &Error{Kind: KindServiceError, Err: fmt.Errorf("decode chat completion response: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return Result{}, &Error{Kind: KindServiceError, Err: fmt.Errorf("empty chat completion choices")}
	}

	sqlText, ok := ExtractSQL(parsed.Choices[0].Message.Content)
	if !ok {
		return Result{}, &Error{Kind: KindNoStatementFound, Err: fmt.Errorf("no SQL statement in model reply")}
	}
	return Result{
		SQL:      sqlText,
		Provider: "openai-compatible",
		Model:    c.model,
	}, nil
}

func classifyTransportErr(ctx context.Context, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return &Error{Kind: KindServiceError, Err: err}
	}
	return &Error{Kind: KindServiceError, Transient: true, Err: err}
}

func attemptOutcome(kind Kind) string {
	switch kind {
	case KindTimeout:
		return "timeout"
	case KindNoStatementFound:
		return "no_statement"
	default:
		return "service_error"
	}
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
