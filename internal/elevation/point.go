// Package elevation answers elevation queries against the USGS 3DEP point
// service and, for gridded requests, against county-cached DEM clips.
package elevation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/wshedlab/hydrodata/internal/domain"
	"github.com/wshedlab/hydrodata/internal/observability"
	"github.com/wshedlab/hydrodata/internal/request"
)

// NoDataSentinel is the value the point service returns when it has no
// elevation for a coordinate. It is data-shaped on the wire, so it must be
// translated into an error rather than handed to callers.
const NoDataSentinel = -1000000

// PointClient queries the USGS Elevation Point Query Service.
type PointClient struct {
	client  *request.Client
	baseURL string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPointClient creates a point-query client on the shared retrying
// HTTP client.
func NewPointClient(rc *request.Client, baseURL string, metrics *observability.Metrics, logger *slog.Logger) *PointClient {
	return &PointClient{client: rc, baseURL: baseURL, metrics: metrics, logger: logger}
}

// Elevation returns the elevation in meters for a single coordinate.
// The service's no-data sentinel becomes domain.ErrOutOfDomain.
func (c *PointClient) Elevation(ctx context.Context, lon, lat float64) (float64, error) {
	params := url.Values{
		"output": {"json"},
		"x":      {strconv.FormatFloat(lon, 'f', -1, 64)},
		"y":      {strconv.FormatFloat(lat, 'f', -1, 64)},
		"units":  {"Meters"},
	}

	body, err := c.client.Get(ctx, c.baseURL, params)
	if err != nil {
		c.metrics.ElevationRequests.WithLabelValues("point", "error").Inc()
		return 0, fmt.Errorf("elevation query (%.6f, %.6f): %w", lon, lat, err)
	}

	var resp epqsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.metrics.ElevationRequests.WithLabelValues("point", "error").Inc()
		return 0, fmt.Errorf("decode elevation response: %w", err)
	}

	elev := resp.Service.Query.Elevation
	if elev == NoDataSentinel {
		c.metrics.ElevationRequests.WithLabelValues("point", "nodata").Inc()
		return 0, fmt.Errorf("%w: no elevation for coordinate (%.6f, %.6f)",
			domain.ErrOutOfDomain, lon, lat)
	}

	c.metrics.ElevationRequests.WithLabelValues("point", "success").Inc()
	return elev, nil
}

// epqsResponse mirrors the nesting of the EPQS JSON payload.
type epqsResponse struct {
	Service struct {
		Query struct {
			Elevation float64 `json:"Elevation"`
			Units     string  `json:"Units"`
		} `json:"Elevation_Query"`
	} `json:"USGS_Elevation_Point_Query_Service"`
}
