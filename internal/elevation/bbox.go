package elevation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wshedlab/hydrodata/internal/domain"
	"github.com/wshedlab/hydrodata/internal/geocode"
	"github.com/wshedlab/hydrodata/internal/observability"
	"github.com/wshedlab/hydrodata/internal/request"
)

// BBox is a bounding box as [west, south, east, north].
type BBox [4]float64

// West, South, East, North name the box edges.
func (b BBox) West() float64  { return b[0] }
func (b BBox) South() float64 { return b[1] }
func (b BBox) East() float64  { return b[2] }
func (b BBox) North() float64 { return b[3] }

// Centroid returns the center of the box.
func (b BBox) Centroid() (lon, lat float64) {
	return (b.West() + b.East()) * 0.5, (b.South() + b.North()) * 0.5
}

func (b BBox) validate() error {
	if b.West() >= b.East() || b.South() >= b.North() {
		return fmt.Errorf("invalid bounding box [%g %g %g %g]: want [west south east north]",
			b[0], b[1], b[2], b[3])
	}
	return nil
}

// DefaultDEMProduct is the raster product requested from the clip service.
// SRTMGL3 is the 90 m SRTM release, adequate for gridded climate cells.
const DefaultDEMProduct = "SRTMGL3"

// BBoxSampler answers batched elevation queries from a DEM clip cached on
// disk. The clip is keyed by the county containing the box centroid plus a
// digest of the box itself, so two different boxes over the same county
// never collide.
type BBoxSampler struct {
	client   *request.Client
	geocoder geocode.Geocoder
	clipURL  string
	product  string
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewBBoxSampler creates a sampler fetching clips from clipURL.
func NewBBoxSampler(rc *request.Client, gc geocode.Geocoder, clipURL string, metrics *observability.Metrics, logger *slog.Logger) *BBoxSampler {
	return &BBoxSampler{
		client:   rc,
		geocoder: gc,
		clipURL:  clipURL,
		product:  DefaultDEMProduct,
		metrics:  metrics,
		logger:   logger,
	}
}

// Sample returns elevations in meters for coords, in input order. The DEM
// clip for bbox is fetched once into outDir and reused on later calls.
func (s *BBoxSampler) Sample(ctx context.Context, bbox BBox, coords []domain.Coord, outDir string) ([]float64, error) {
	if err := bbox.validate(); err != nil {
		return nil, err
	}
	if len(coords) == 0 {
		return nil, nil
	}

	lon, lat := bbox.Centroid()
	place, err := s.geocoder.ReverseGeocode(ctx, lon, lat)
	if err != nil {
		return nil, fmt.Errorf("resolve county for bbox centroid: %w", err)
	}

	path := filepath.Join(outDir, cacheKey(place.County, bbox))
	if _, err := os.Stat(path); err == nil {
		s.metrics.DEMCacheHits.Inc()
		s.logger.Debug("using cached DEM clip", "path", path)
	} else {
		if err := s.fetchClip(ctx, bbox, path); err != nil {
			s.metrics.ElevationRequests.WithLabelValues("bbox", "error").Inc()
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open DEM clip: %w", err)
	}
	defer f.Close()

	g, err := parseAAIGrid(f)
	if err != nil {
		return nil, fmt.Errorf("parse DEM clip %s: %w", path, err)
	}

	elevations := make([]float64, len(coords))
	for i, c := range coords {
		elevations[i], err = g.sample(c.Lon, c.Lat)
		if err != nil {
			s.metrics.ElevationRequests.WithLabelValues("bbox", "nodata").Inc()
			return nil, err
		}
	}

	s.metrics.ElevationRequests.WithLabelValues("bbox", "success").Inc()
	return elevations, nil
}

// fetchClip downloads an AAIGrid clip of bbox into path.
func (s *BBoxSampler) fetchClip(ctx context.Context, bbox BBox, path string) error {
	params := url.Values{
		"demtype":      {s.product},
		"west":         {formatDeg(bbox.West())},
		"south":        {formatDeg(bbox.South())},
		"east":         {formatDeg(bbox.East())},
		"north":        {formatDeg(bbox.North())},
		"outputFormat": {"AAIGrid"},
	}

	body, err := s.client.Get(ctx, s.clipURL, params)
	if err != nil {
		return fmt.Errorf("fetch DEM clip: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create clip directory: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write DEM clip: %w", err)
	}
	s.logger.Info("fetched DEM clip", "path", path, "product", s.product)
	return nil
}

// cacheKey derives the clip filename: the county name made
// filesystem-safe, plus a short digest of the box extent.
func cacheKey(county string, bbox BBox) string {
	name := strings.ReplaceAll(strings.TrimSpace(county), " ", "_")
	if name == "" {
		name = "unknown"
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%.6f|%.6f|%.6f|%.6f",
		bbox.West(), bbox.South(), bbox.East(), bbox.North())))
	return fmt.Sprintf("%s-%s.asc", name, hex.EncodeToString(sum[:4]))
}

func formatDeg(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
