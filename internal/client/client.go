// Package client calls the training simulation API.
package client

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

	"github.com/verte-zerg/trainviz/internal/model"
)

const (
	defaultTimeout = 15 * time.Second
	defaultRetries = 3
	defaultBackoff = 500 * time.Millisecond
	maxErrorBody   = 64 << 10
)

// StatusError is a non-2xx response from the API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return e.Message
}

// Retryable reports whether the request may succeed if repeated. Client
// errors (validation) are final.
func (e *StatusError) Retryable() bool {
	return e.Code >= http.StatusInternalServerError || e.Code == http.StatusTooManyRequests
}

// Client talks to the simulation server.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	retries int
	backoff time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetries sets how many times a failed attempt is repeated.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n < 0 {
			n = 0
		}
		c.retries = n
	}
}

// WithBackoff sets the delay before the first retry. It doubles each retry.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.backoff = d
	}
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		c.sleep = fn
	}
}

// New returns a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: defaultTimeout,
		retries: defaultRetries,
		backoff: defaultBackoff,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type trainResponse struct {
	Success bool                 `json:"success"`
	Data    *[]model.EpochRecord `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Health is the decoded health check payload.
type Health struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// FetchTrainingData requests a full curve. Transient failures are retried
// with exponential backoff; validation failures are returned immediately.
func (c *Client) FetchTrainingData(ctx context.Context, params model.TrainingParams) ([]model.EpochRecord, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := c.backoff << (attempt - 1)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		data, err := c.train(ctx, body)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) train(ctx context.Context, body []byte) ([]model.EpochRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/train", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, readStatusError(resp)
	}

	var payload trainResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("invalid response format")
	}
	if !payload.Success || payload.Data == nil {
		return nil, fmt.Errorf("invalid response format")
	}
	return *payload.Data, nil
}

// Health queries the health endpoint once, without retries.
func (c *Client) Health(ctx context.Context) (Health, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", http.NoBody)
	if err != nil {
		return Health{}, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Health{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return Health{}, readStatusError(resp)
	}
	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Health{}, fmt.Errorf("failed to decode health response: %w", err)
	}
	return h, nil
}

func readStatusError(resp *http.Response) error {
	msg := fmt.Sprintf("Server error: %d", resp.StatusCode)
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil {
		var payload errorResponse
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
