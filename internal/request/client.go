// Package request provides the retrying HTTP client shared by every
// network-backed component. One Client is constructed at startup and
// injected into callers; it owns the connection pool for its lifetime.
package request

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

// Defaults match the documented retry policy: three retries, half-second
// backoff factor, and the transient upstream statuses.
const (
	DefaultRetries       = 3
	DefaultBackoffFactor = 500 * time.Millisecond
	DefaultTimeout       = 60 * time.Second
)

// DefaultRetryStatuses are the response codes treated as transient.
func DefaultRetryStatuses() []int { return []int{500, 502, 504} }

// StatusError reports a non-2xx response that was not retried away.
type StatusError struct {
	Status int
	URL    string
	Body   string // first kilobyte of the response body
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("request %s: status %d: %s", e.URL, e.Status, e.Body)
}

// Client wraps *http.Client with bounded retry and exponential backoff.
// Transport-level errors (refused, reset, DNS, timeout) and responses whose
// status is in the retry set are retried up to Retries times; the wait
// before the nth retry is backoffFactor * 2^(n-1). Any other non-2xx
// response fails immediately with a *StatusError.
type Client struct {
	httpClient  *http.Client
	retries     int
	backoff     time.Duration
	retryStatus map[int]struct{}
	retryCount  prometheus.Counter // nil when not wired
	clock       clockwork.Clock
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRetries sets the maximum number of retries after the first attempt.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithBackoffFactor sets the base wait multiplied by 2^(n-1) before retry n.
func WithBackoffFactor(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.backoff = d
		}
	}
}

// WithRetryStatuses replaces the set of response codes that trigger a retry.
func WithRetryStatuses(statuses ...int) Option {
	return func(c *Client) {
		c.retryStatus = make(map[int]struct{}, len(statuses))
		for _, s := range statuses {
			c.retryStatus[s] = struct{}{}
		}
	}
}

// WithTimeout sets the per-attempt timeout on the underlying http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock injects a time source for backoff sleeps.
func WithClock(clk clockwork.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithRetryCounter counts every attempt beyond the first.
func WithRetryCounter(counter prometheus.Counter) Option {
	return func(c *Client) { c.retryCount = counter }
}

// New creates a Client with the documented defaults.
func New(logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		retries:    DefaultRetries,
		backoff:    DefaultBackoffFactor,
		clock:      clockwork.NewRealClock(),
		logger:     logger,
	}
	WithRetryStatuses(DefaultRetryStatuses()...)(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get issues a GET against rawURL with the given query parameters and
// returns the response body.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	u := rawURL
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		u = rawURL + sep + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.Do(req)
}

// Do executes the request under the retry policy and returns the body.
// The request must be replayable: GET/HEAD, or carrying a GetBody func.
func (c *Client) Do(req *http.Request) ([]byte, error) {
	ctx := req.Context()
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if c.retryCount != nil {
				c.retryCount.Inc()
			}
			// Wait backoff * 2^(attempt-1) before the nth retry.
			wait := c.backoff << (attempt - 1)
			c.logger.Debug("retrying request",
				"url", req.URL.String(), "attempt", attempt+1, "wait", wait)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		body, retryable, err := c.attempt(req)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("request %s failed after %d attempts: %w",
		req.URL.String(), c.retries+1, lastErr)
}

// attempt runs one request and classifies the outcome. retryable is true
// for transport errors and statuses in the retry set.
func (c *Client) attempt(req *http.Request) (body []byte, retryable bool, err error) {
	ctx := req.Context()
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}

	resp, err := c.httpClient.Do(req.Clone(ctx))
	if err != nil {
		// Our own cancellation is terminal, not a transient failure.
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	if _, ok := c.retryStatus[resp.StatusCode]; ok {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil, true, &StatusError{Status: resp.StatusCode, URL: req.URL.String()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, false, &StatusError{
			Status: resp.StatusCode,
			URL:    req.URL.String(),
			Body:   strings.TrimSpace(string(snippet)),
		}
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}
	return body, false, nil
}

// sleep waits d on the injected clock, aborting on context cancellation.
func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := c.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}
