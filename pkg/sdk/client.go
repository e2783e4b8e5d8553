// Package sdk provides the client-side library for reading attendance data
// from a running attendance daemon.
package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/celerix-dev/celerix-attendance/pkg/schema"
)

// DefaultAddr is where the daemon listens unless configured otherwise.
const DefaultAddr = "http://localhost:3000"

// Client is a remote client for the attendance daemon.
// It implements the AttendanceReader interface.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	maxRetries uint64
}

var _ AttendanceReader = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetries sets how many times a failed request is retried.
func WithRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

// Connect creates a client for the daemon at addr and checks that it answers.
// A bare host:port is treated as plain HTTP.
func Connect(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	c, err := New(addr, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Health(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// New creates a client without contacting the daemon.
func New(addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		addr = DefaultAddr
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	base, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("sdk: invalid address %q: %w", addr, err)
	}
	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Report fetches the flattened attendance rows.
func (c *Client) Report(ctx context.Context) ([]schema.ReportRow, error) {
	var rows []schema.ReportRow
	if err := c.get(ctx, "/api/attendance", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Health checks that the daemon is up.
func (c *Client) Health(ctx context.Context) error {
	var status struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", &status); err != nil {
		return err
	}
	if status.Status != "ok" {
		return fmt.Errorf("%w: status %q", ErrUnavailable, status.Status)
	}
	return nil
}

// get performs an idempotent GET, retrying transport errors and 5xx answers
// with exponential backoff.
func (c *Client) get(ctx context.Context, path string, out any) error {
	u := c.base.JoinPath(path)

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			err := &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
			if resp.StatusCode >= 500 {
				return err
			}
			return backoff.Permanent(err)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("sdk: decoding %s: %w", path, err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx))
}
