// Package ingest provides a client for the downstream ingestion service's
// admin API: per-symbol refresh calls and the pipeline health gate.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the ingestion service address when none is configured.
	DefaultBaseURL = "http://127.0.0.1:8000"
	// ModeScheduled tags refresh calls made by the scheduler.
	ModeScheduled = "scheduled"

	requestTimeout = 30 * time.Second
)

// ErrAuth is returned when the ingestion service rejects the API key.
// It is never retried.
var ErrAuth = errors.New("ingestion authentication failed")

// StatusError is a non-2xx response from the ingestion service.
// 401 and 403 responses unwrap to ErrAuth.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ingestion API error: status %d, body: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrAuth
	}
	return nil
}

// Temporary reports whether the response is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// RetryPolicy bounds refresh attempts.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy allows one retry after two seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 2, Delay: 2 * time.Second}
}

// Result is the decoded response of a successful refresh.
type Result struct {
	Payload  map[string]any
	Warnings int
}

type ingestRequest struct {
	Symbol string `json:"symbol"`
	Mode   string `json:"mode"`
}

// Client is the ingestion API client.
type Client struct {
	baseURL    string
	apiKey     string
	retry      RetryPolicy
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a new ingestion client. A trailing slash on baseURL is
// ignored and an empty baseURL falls back to DefaultBaseURL.
func NewClient(baseURL, apiKey string, retry RetryPolicy, log zerolog.Logger) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		retry:   retry,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		log: log.With().Str("component", "ingest").Logger(),
	}
}

// BaseURL returns the normalized service address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Refresh asks the ingestion service to refresh symbol.
func (c *Client) Refresh(ctx context.Context, symbol string) (Result, error) {
	body, err := json.Marshal(ingestRequest{Symbol: symbol, Mode: ModeScheduled})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.Attempts; attempt++ {
		result, err := c.doIngest(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) || attempt == c.retry.Attempts {
			break
		}

		c.log.Warn().
			Err(err).
			Str("symbol", symbol).
			Int("attempt", attempt).
			Dur("delay", c.retry.Delay).
			Msg("Ingestion call failed, retrying")

		if err := sleep(ctx, c.retry.Delay); err != nil {
			return Result{}, err
		}
	}

	return Result{}, lastErr
}

func (c *Client) doIngest(ctx context.Context, body []byte) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/admin/ingest", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return Result{}, err
	}

	payload := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		return Result{}, fmt.Errorf("failed to decode response: %w", err)
	}

	return Result{Payload: payload, Warnings: countWarnings(payload)}, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}
	return nil
}

// retryable reports whether err is a network failure or a 5xx response.
func retryable(err error) bool {
	if errors.Is(err, ErrAuth) || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}

func countWarnings(payload map[string]any) int {
	warnings, ok := payload["warnings"].([]any)
	if !ok {
		return 0
	}
	return len(warnings)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
