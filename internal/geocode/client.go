// Package geocode resolves coordinates to US administrative areas using
// the Census Bureau reverse-geocoding service.
package geocode

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

// Place is the administrative area containing a coordinate.
type Place struct {
	StateCode string // two-letter USPS abbreviation, e.g. "TX"
	County    string // county name without suffix normalization, e.g. "Travis County"
}

// Geocoder resolves a lon/lat coordinate to a Place.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lon, lat float64) (Place, error)
}

// Client implements Geocoder against the Census geographies endpoint.
type Client struct {
	client  *request.Client
	baseURL string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates a Census geocoding client on top of the shared
// retrying HTTP client.
func NewClient(rc *request.Client, baseURL string, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{client: rc, baseURL: baseURL, metrics: metrics, logger: logger}
}

// ReverseGeocode returns the state code and county for a coordinate.
// Coordinates outside US coverage yield domain.ErrOutOfDomain.
func (c *Client) ReverseGeocode(ctx context.Context, lon, lat float64) (Place, error) {
	params := url.Values{
		"x":         {strconv.FormatFloat(lon, 'f', 6, 64)},
		"y":         {strconv.FormatFloat(lat, 'f', 6, 64)},
		"benchmark": {"Public_AR_Current"},
		"vintage":   {"Current_Current"},
		"format":    {"json"},
	}

	body, err := c.client.Get(ctx, c.baseURL, params)
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return Place{}, fmt.Errorf("reverse geocode (%.6f, %.6f): %w", lon, lat, err)
	}

	var resp censusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return Place{}, fmt.Errorf("decode geocoder response: %w", err)
	}

	geo := resp.Result.Geographies
	if len(geo.States) == 0 || len(geo.Counties) == 0 {
		c.metrics.GeocodeRequests.WithLabelValues("outside").Inc()
		c.logger.Warn("coordinate outside US coverage", "lon", lon, "lat", lat)
		return Place{}, fmt.Errorf("%w: location (%.6f, %.6f) should be inside the US",
			domain.ErrOutOfDomain, lon, lat)
	}

	c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	return Place{
		StateCode: geo.States[0].STUSAB,
		County:    geo.Counties[0].Name,
	}, nil
}

// Census geographies response types, trimmed to the fields used.

type censusResponse struct {
	Result struct {
		Geographies struct {
			States []struct {
				STUSAB string `json:"STUSAB"`
				Name   string `json:"NAME"`
			} `json:"States"`
			Counties []struct {
				Name string `json:"NAME"`
			} `json:"Counties"`
		} `json:"geographies"`
	} `json:"result"`
}
