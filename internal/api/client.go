// Package api is the client for the speech collection backend: prompt fetch,
// recording upload and the label/validate queues.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"github.com/tiroq/speechcollect/internal/diaglog"
)

// Config configures the backend client.
type Config struct {
	BaseURL        string
	TimeoutSeconds int  // default 30
	Retries        int  // default 3
	EnableHTTP2    bool // negotiate HTTP/2 over TLS
	UserAgent      string
}

// TokenSource supplies the bearer token of the signed-in user. An empty
// token means the caller is anonymous.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource with a fixed token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// Client calls the backend REST API.
type Client struct {
	cfg         Config
	tokens      TokenSource
	client      *http.Client
	backoffBase time.Duration // default time.Second; tests override to 1ms

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewClient creates a backend client. tokens may be nil for anonymous use.
func NewClient(cfg Config, tokens TokenSource) *Client {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "speechcollect"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if tokens == nil {
		tokens = StaticToken("")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.EnableHTTP2 {
		// ConfigureTransport only fails when the transport is already
		// configured for h2, which a fresh clone never is.
		_ = http2.ConfigureTransport(transport)
	}

	return &Client{
		cfg:         cfg,
		tokens:      tokens,
		backoffBase: time.Second,
		client: &http.Client{
			Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
			Transport: transport,
		},
	}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (c *Client) SetLogger(l *diaglog.Logger) {
	c.loggerMu.Lock()
	c.logger = l
	c.loggerMu.Unlock()
}

func (c *Client) log(entry diaglog.LogEntry) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if entry.Component == "" {
		entry.Component = diaglog.ComponentAPI
	}
	l.Log(entry)
}

// Authenticated reports whether the token source currently yields a token.
func (c *Client) Authenticated(ctx context.Context) bool {
	tok, err := c.tokens.Token(ctx)
	return err == nil && tok != ""
}

// Error is a non-2xx answer from the backend. Message carries the backend's
// own error text when it sent one.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend http %d", e.StatusCode)
}

// envelope is the {data, message} wrapper most endpoints answer with.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Detail  string          `json:"detail"`
	Error   string          `json:"error"`
}

// request describes one call. body is re-read on every attempt.
type request struct {
	method      string
	path        string
	body        []byte
	contentType string
}

// do performs req with retries on network errors and 5xx answers and returns
// the response body of the first 2xx answer.
func (c *Client) do(ctx context.Context, req request) (int, []byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.log(diaglog.LogEntry{
				Event:   diaglog.EventHTTPRetry,
				Reason:  lastErr.Error(),
				Payload: map[string]interface{}{"attempt": attempt, "backoff_ms": backoff.Milliseconds(), "path": req.path},
			})
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		status, body, err := c.doOnce(ctx, req)
		if err == nil {
			return status, body, nil
		}
		if !isRetryable(err) || ctx.Err() != nil {
			return status, nil, err
		}
		lastErr = err
	}
	return 0, nil, fmt.Errorf("%s %s: all %d retries exhausted: %w", req.method, req.path, c.cfg.Retries, lastErr)
}

func (c *Client) doOnce(ctx context.Context, req request) (int, []byte, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.cfg.BaseURL+req.path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.cfg.UserAgent)

	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("token: %w", err)
	}
	if tok != "" {
		httpReq.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return 0, nil, &retryableError{err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &retryableError{err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return resp.StatusCode, nil, &retryableError{err: &Error{StatusCode: resp.StatusCode, Message: backendMessage(respBody)}}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, nil, &Error{StatusCode: resp.StatusCode, Message: backendMessage(respBody)}
	}
	return resp.StatusCode, respBody, nil
}

// getJSON GETs path and unwraps the envelope. It returns nil data for 204
// and for empty or null payloads.
func (c *Client) getJSON(ctx context.Context, path string) (json.RawMessage, string, error) {
	status, body, err := c.do(ctx, request{method: http.MethodGet, path: path})
	if err != nil {
		return nil, "", err
	}
	if status == http.StatusNoContent {
		return nil, "", nil
	}
	return unwrap(body)
}

// sendJSON sends v as a JSON body and returns the envelope message.
func (c *Client) sendJSON(ctx context.Context, method, path string, v interface{}) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	_, body, err := c.do(ctx, request{method: method, path: path, body: payload, contentType: "application/json"})
	if err != nil {
		return "", err
	}
	_, msg, err := unwrap(body)
	return msg, err
}

// unwrap accepts either a {data, message} envelope or a bare object.
func unwrap(body []byte) (json.RawMessage, string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, "", nil
	}
	if trimmed[0] != '{' {
		return nil, "", fmt.Errorf("decode response: unexpected payload %s", truncate(trimmed, 80))
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, "", fmt.Errorf("decode response: %w", err)
	}
	var probe map[string]json.RawMessage
	_ = json.Unmarshal(trimmed, &probe)
	if _, ok := probe["data"]; ok {
		data := env.Data
		if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
			data = nil
		}
		return data, env.Message, nil
	}
	return json.RawMessage(trimmed), env.Message, nil
}

// backendMessage extracts a human-readable error from an error body.
func backendMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil {
		for _, m := range []string{env.Message, env.Detail, env.Error} {
			if m != "" {
				return m
			}
		}
	}
	return ""
}

// ── helpers ──────────────────────────────────────────────────────────────────

// retryableError wraps errors that should trigger a retry.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// backoff returns exponential backoff duration: base * 2^(attempt-1) + jitter.
func (c *Client) backoff(attempt int) time.Duration {
	base := c.backoffBase
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	// jitter: 0–25% of delay
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
