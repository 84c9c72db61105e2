package geocode

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wshedlab/hydrodata/internal/domain"
	"github.com/wshedlab/hydrodata/internal/observability"
	"github.com/wshedlab/hydrodata/internal/request"
)

const censusBody = `{
  "result": {
    "geographies": {
      "States": [{"STUSAB": "TX", "NAME": "Texas"}],
      "Counties": [{"NAME": "Travis County"}]
    }
  }
}`

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(baseURL string) *Client {
	rc := request.New(discardLogger())
	return NewClient(rc, baseURL, testMetrics(), discardLogger())
}

func TestReverseGeocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "-97.743100", r.URL.Query().Get("x"))
		assert.Equal(t, "30.267200", r.URL.Query().Get("y"))
		assert.Equal(t, "Public_AR_Current", r.URL.Query().Get("benchmark"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		_, _ = w.Write([]byte(censusBody))
	}))
	defer srv.Close()

	place, err := testClient(srv.URL).ReverseGeocode(context.Background(), -97.7431, 30.2672)
	require.NoError(t, err)
	assert.Equal(t, "TX", place.StateCode)
	assert.Equal(t, "Travis County", place.County)
}

func TestReverseGeocode_OutsideUS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result": {"geographies": {}}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ReverseGeocode(context.Background(), 2.3522, 48.8566)
	require.ErrorIs(t, err, domain.ErrOutOfDomain)
	assert.Contains(t, err.Error(), "inside the US")
}

func TestReverseGeocode_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ReverseGeocode(context.Background(), -97.7431, 30.2672)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestReverseGeocode_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ReverseGeocode(context.Background(), -97.7431, 30.2672)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}
