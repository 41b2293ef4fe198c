// Package taskapi talks to the external task execution API: it creates
// research runs and fetches their results.
package taskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.parallel.ai"
	defaultTimeout = 30 * time.Second
	betaHeader     = "webhook-2025-08-12"
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
	maxErrorBody   = 512
)

// StatusError is returned when the task API answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// IsStatusError reports whether err carries a non-2xx reply.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// Client communicates with the task API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client with the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL.
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// SetTimeout bounds every request made by the client.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.httpClient.Timeout = d
	}
}

// CreateRun starts a task run. HTTP 429 replies are retried with
// exponential backoff; any other failure is returned immediately.
func (c *Client) CreateRun(ctx context.Context, req RunRequest) (RunResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return RunResponse{}, fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		run, err := c.doCreateRun(ctx, body)
		if err == nil {
			return run, nil
		}
		if !isRateLimit(err) {
			return RunResponse{}, err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return RunResponse{}, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return RunResponse{}, fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func isRateLimit(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
}

func (c *Client) doCreateRun(ctx context.Context, body []byte) (RunResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tasks/runs", bytes.NewReader(body))
	if err != nil {
		return RunResponse{}, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("parallel-beta", betaHeader)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return RunResponse{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return RunResponse{}, err
	}

	var run RunResponse
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		return RunResponse{}, fmt.Errorf("decoding run: %w", err)
	}
	return run, nil
}

// GetResult fetches and validates the result of a finished run.
// Non-2xx replies yield a *StatusError; payloads that fail validation wrap
// ErrInvalidResult.
func (c *Client) GetResult(ctx context.Context, runID string) (*Result, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/tasks/runs/"+url.PathEscape(runID)+"/result", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting result: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return &res, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
}
