package request_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wshedlab/hydrodata/internal/request"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGet_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("output"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := request.New(discardLogger())
	body, err := c.Get(context.Background(), srv.URL, url.Values{"output": {"json"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestGet_RetriesOnRetryableStatus(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := request.New(discardLogger(), request.WithBackoffFactor(time.Millisecond))
	body, err := c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int64(3), calls.Load())
}

func TestGet_FailFastOnNonRetryableStatus(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no such dataset"))
	}))
	defer srv.Close()

	c := request.New(discardLogger(), request.WithBackoffFactor(time.Millisecond))
	_, err := c.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)

	var statusErr *request.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Status)
	assert.Contains(t, statusErr.Body, "no such dataset")
	assert.Equal(t, int64(1), calls.Load(), "non-retryable status must not be retried")
}

func TestGet_ExhaustsRetriesThenFails(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := request.New(discardLogger(),
		request.WithRetries(2),
		request.WithBackoffFactor(time.Millisecond),
	)
	_, err := c.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int64(3), calls.Load())
}

func TestGet_RetriesOnConnectionError(t *testing.T) {
	// A server that is already closed yields connection-refused on every attempt.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := srv.URL
	srv.Close()

	c := request.New(discardLogger(),
		request.WithRetries(3),
		request.WithBackoffFactor(time.Millisecond),
	)
	_, err := c.Get(context.Background(), deadURL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 4 attempts")
}

func TestGet_BackoffDoublesPerRetry(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	clk := clockwork.NewFakeClock()
	c := request.New(discardLogger(),
		request.WithRetries(3),
		request.WithBackoffFactor(500*time.Millisecond),
		request.WithRetryStatuses(http.StatusServiceUnavailable),
		request.WithClock(clk),
	)

	done := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), srv.URL, nil)
		done <- err
	}()

	// Waits grow as factor * 2^(n-1): 500ms, 1s, 2s.
	for _, wait := range []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second} {
		clk.BlockUntil(1)
		clk.Advance(wait)
	}

	err := <-done
	require.Error(t, err)
	assert.Equal(t, int64(4), calls.Load())
}

func TestGet_CancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	clk := clockwork.NewFakeClock()
	c := request.New(discardLogger(), request.WithClock(clk))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, srv.URL, nil)
		done <- err
	}()

	clk.BlockUntil(1) // first backoff sleep started
	cancel()

	err := <-done
	require.ErrorIs(t, err, context.Canceled)
}

func TestGet_RetryCounterIncrements(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_retries_total"})
	c := request.New(discardLogger(),
		request.WithBackoffFactor(time.Millisecond),
		request.WithRetryCounter(counter),
	)
	_, err := c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2, testutil.ToFloat64(counter), 0.001)
}

func TestGet_ZeroRetries(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := request.New(discardLogger(), request.WithRetries(0))
	_, err := c.Get(context.Background(), srv.URL, nil)
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())
}
