// Multacache - Traffic Violation Cache and Synchronization Service
// Copyright 2026 V. Serra (viaserra)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/viaserra/multacache

// Package upstream implements the client for the external transactional
// source of violation records. The source is read-only, slow and may be
// unavailable; the engine issues only paginated reads against it, every
// call bounded by a timeout and paced by a shared rate limiter.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/viaserra/multacache/internal/config"
	"github.com/viaserra/multacache/internal/metrics"
	"github.com/viaserra/multacache/internal/models"
)

// ErrUnavailable wraps every transport, timeout and server-side failure
// of the upstream source. Callers select a fallback policy with
// errors.Is(err, ErrUnavailable).
var ErrUnavailable = errors.New("upstream source unavailable")

// maxErrorBodySize bounds how much of an error response body is read
// for diagnostics.
const maxErrorBodySize = 64 * 1024

// Source is the read contract the sync engine consumes. Implemented by
// Client and by BreakerClient.
type Source interface {
	Fetch(ctx context.Context, query FetchQuery) ([]models.UpstreamViolation, error)
	Ping(ctx context.Context) error
}

// FetchQuery selects one page of upstream rows.
type FetchQuery struct {
	// Since restricts results to records issued or changed after this
	// instant. Zero means no lower bound.
	Since time.Time
	// Search is an optional free-text filter forwarded upstream.
	Search  string
	Offset  int
	Limit   int
	OrderBy string
}

// Client is the HTTP client for the transactional source. Rows arrive
// pre-joined: dimension codes and their display values come inline, so
// no per-record follow-up lookups are needed.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates an upstream client from configuration.
func NewClient(cfg *config.UpstreamConfig) *Client {
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		timeout: cfg.FetchTimeout,
		client: &http.Client{
			Timeout: cfg.FetchTimeout,
		},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// fetchResponse is the upstream wire envelope.
type fetchResponse struct {
	Rows  []models.UpstreamViolation `json:"rows"`
	Total int64                      `json:"total"`
}

// Fetch returns one page of violation records. Transport errors,
// timeouts and non-200 responses all wrap ErrUnavailable.
func (c *Client) Fetch(ctx context.Context, query FetchQuery) ([]models.UpstreamViolation, error) {
	params := url.Values{}
	params.Set("offset", strconv.Itoa(query.Offset))
	params.Set("limit", strconv.Itoa(query.Limit))
	if !query.Since.IsZero() {
		params.Set("since", query.Since.UTC().Format(time.RFC3339))
	}
	if query.Search != "" {
		params.Set("q", query.Search)
	}
	if query.OrderBy != "" {
		params.Set("order_by", query.OrderBy)
	}

	reqURL := fmt.Sprintf("%s/api/v1/multas?%s", c.baseURL, params.Encode())

	resp, err := c.doRequest(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body := readBodyForError(resp.Body)
		return nil, fmt.Errorf("fetch failed with status %d: %s: %w", resp.StatusCode, string(body), ErrUnavailable)
	}

	var payload fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode fetch response: %v: %w", err, ErrUnavailable)
	}

	return payload.Rows, nil
}

// Ping verifies connectivity to the upstream source.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.doRequest(ctx, c.baseURL+"/api/v1/health")
	if err != nil {
		return err
	}
	defer closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream ping returned status %d: %w", resp.StatusCode, ErrUnavailable)
	}
	return nil
}

// doRequest waits for the rate limiter, then performs a GET bounded by
// the configured fetch timeout.
func (c *Client) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait canceled: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.UpstreamRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		cancel()
		metrics.UpstreamRequests.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("upstream request failed: %v: %w", err, ErrUnavailable)
	}

	metrics.UpstreamRequests.WithLabelValues("success").Inc()
	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelReadCloser releases the request context when the body closes.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

// readBodyForError reads at most maxErrorBodySize bytes for diagnostics.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("... (truncated)")...)
	}
	return body
}

func closeBody(body io.Closer) {
	// Drained or short bodies close without actionable errors.
	_ = body.Close()
}
