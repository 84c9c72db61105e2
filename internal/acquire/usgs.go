package acquire

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/wshedlab/hydrodata/internal/daymet"
	"github.com/wshedlab/hydrodata/internal/domain"
	"github.com/wshedlab/hydrodata/internal/geocode"
	"github.com/wshedlab/hydrodata/internal/request"
	"github.com/wshedlab/hydrodata/internal/workspace"
)

// Approximate meters per degree of latitude, used to turn the pixel
// window into a geographic buffer for land-cover clips.
const metersPerDegree = 111_320.0

// nlcdLayers maps a job layer name to its MRLC layer-name template.
var nlcdLayers = map[string]string{
	"impervious": "NLCD_%d_Impervious_L48",
	"cover":      "NLCD_%d_Land_Cover_L48",
	"canopy":     "NLCD_%d_Tree_Canopy_L48",
}

// USGSConfig carries the upstream endpoints the loader talks to.
type USGSConfig struct {
	NWISURL        string
	StreamStatsURL string
	DaymetURL      string
	NLCDURL        string
}

// USGSLoader acquires station datasets from the public USGS, Daymet, and
// MRLC services. Opening a job resolves its location, delineates the
// watershed, and writes the descriptor; climate and land-cover layers are
// fetched lazily through the returned Dataset.
type USGSLoader struct {
	client   *request.Client
	geocoder geocode.Geocoder
	cfg      USGSConfig
	logger   *slog.Logger
}

// NewUSGSLoader wires the loader over a shared retrying client.
func NewUSGSLoader(client *request.Client, geocoder geocode.Geocoder, cfg USGSConfig, logger *slog.Logger) *USGSLoader {
	return &USGSLoader{client: client, geocoder: geocoder, cfg: cfg, logger: logger}
}

// Open resolves the job's coordinates, prepares the output directory, and
// fetches the watershed descriptor. Artifacts already on disk are kept,
// so re-running a job only fills in what is missing.
func (l *USGSLoader) Open(ctx context.Context, job domain.Job) (Dataset, error) {
	coord, err := l.resolveCoord(ctx, job)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(job.DataDir, job.StationKey())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	if err := l.fetchWatershed(ctx, dir, coord); err != nil {
		return nil, err
	}

	return &usgsDataset{loader: l, job: job, dir: dir, coord: coord}, nil
}

// resolveCoord returns the job's coordinates, looking the station up in
// the NWIS site service when only an identifier was given.
func (l *USGSLoader) resolveCoord(ctx context.Context, job domain.Job) (domain.Coord, error) {
	if job.Coords != nil {
		return *job.Coords, nil
	}

	params := url.Values{}
	params.Set("format", "rdb")
	params.Set("sites", job.StationID)
	params.Set("siteStatus", "all")

	body, err := l.client.Get(ctx, l.cfg.NWISURL, params)
	if err != nil {
		return domain.Coord{}, fmt.Errorf("look up station %s: %w", job.StationID, err)
	}
	coord, err := parseNWISSite(body, job.StationID)
	if err != nil {
		return domain.Coord{}, fmt.Errorf("look up station %s: %w", job.StationID, err)
	}
	return coord, nil
}

// parseNWISSite extracts the decimal coordinates of one site from an NWIS
// RDB response. RDB is tab-separated: comment lines start with '#', then a
// header row, a column-width row, and the data rows.
func parseNWISSite(body []byte, siteID string) (domain.Coord, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(body)))

	var header []string
	siteCol, latCol, lonCol := -1, -1, -1
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")

		if header == nil {
			header = fields
			for i, name := range header {
				switch name {
				case "site_no":
					siteCol = i
				case "dec_lat_va":
					latCol = i
				case "dec_long_va":
					lonCol = i
				}
			}
			if siteCol < 0 || latCol < 0 || lonCol < 0 {
				return domain.Coord{}, errors.New("site response is missing coordinate columns")
			}
			// Skip the column-width row that follows the header.
			scanner.Scan()
			continue
		}

		if len(fields) <= latCol || len(fields) <= lonCol || fields[siteCol] != siteID {
			continue
		}
		lat, latErr := strconv.ParseFloat(fields[latCol], 64)
		lon, lonErr := strconv.ParseFloat(fields[lonCol], 64)
		if latErr != nil || lonErr != nil {
			return domain.Coord{}, fmt.Errorf("unparseable coordinates for site %s", siteID)
		}
		return domain.Coord{Lon: lon, Lat: lat}, nil
	}

	return domain.Coord{}, fmt.Errorf("%w: no NWIS site record for %s", domain.ErrMissingData, siteID)
}

// fetchWatershed delineates the drainage basin upstream of the coordinate
// and writes the descriptor. An existing descriptor is left alone.
func (l *USGSLoader) fetchWatershed(ctx context.Context, dir string, coord domain.Coord) error {
	path := filepath.Join(dir, workspace.DescriptorFile)
	if _, err := os.Stat(path); err == nil {
		l.logger.Debug("watershed descriptor already present", "path", path)
		return nil
	}

	place, err := l.geocoder.ReverseGeocode(ctx, coord.Lon, coord.Lat)
	if err != nil {
		return fmt.Errorf("resolve state for delineation: %w", err)
	}

	params := url.Values{}
	params.Set("rcode", place.StateCode)
	params.Set("xlocation", strconv.FormatFloat(coord.Lon, 'f', 6, 64))
	params.Set("ylocation", strconv.FormatFloat(coord.Lat, 'f', 6, 64))
	params.Set("crs", "4326")
	params.Set("includeparameters", "true")
	params.Set("includefeatures", "true")
	params.Set("simplify", "true")

	body, err := l.client.Get(ctx, l.cfg.StreamStatsURL, params)
	if err != nil {
		return fmt.Errorf("delineate watershed: %w", err)
	}

	// Validate the payload before persisting it so a half-broken response
	// never becomes a workspace artifact.
	var desc workspace.Descriptor
	if err := json.Unmarshal(body, &desc); err != nil {
		return fmt.Errorf("delineate watershed: parse response: %w", err)
	}
	found := false
	for _, nc := range desc.FeatureCollection {
		if nc.Name == workspace.GlobalWatershedName {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: delineation response has no %q entry",
			domain.ErrMissingData, workspace.GlobalWatershedName)
	}

	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	l.logger.Info("watershed delineated", "state", place.StateCode, "path", path)
	return nil
}

// usgsDataset is one opened station dataset backed by the public services.
type usgsDataset struct {
	loader *USGSLoader
	job    domain.Job
	dir    string
	coord  domain.Coord
}

func (d *usgsDataset) Dir() string { return d.dir }

// Climate downloads the Daymet series, one file per calendar year with
// the leap-year December 31 gap already trimmed from each range.
func (d *usgsDataset) Climate(ctx context.Context) error {
	vars := "dayl,prcp,srad,tmax,tmin,vp"
	if d.job.RainSnow {
		vars += ",swe"
	}

	for _, r := range daymet.Ranges(d.job.Start, d.job.End) {
		path := filepath.Join(d.dir, fmt.Sprintf("daymet_%d.nc", r.First.Year()))
		if _, err := os.Stat(path); err == nil {
			d.loader.logger.Debug("climate file already present", "path", path)
			continue
		}

		params := url.Values{}
		params.Set("lat", strconv.FormatFloat(d.coord.Lat, 'f', 6, 64))
		params.Set("lon", strconv.FormatFloat(d.coord.Lon, 'f', 6, 64))
		params.Set("vars", vars)
		params.Set("start", r.First.Format(domain.DateFormat))
		params.Set("end", r.Last.Format(domain.DateFormat))

		body, err := d.loader.client.Get(ctx, d.loader.cfg.DaymetURL, params)
		if err != nil {
			return fmt.Errorf("fetch climate %s: %w", r, err)
		}
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// LandCover downloads one MRLC raster clip per requested layer, buffered
// around the station by the job's pixel width.
func (d *usgsDataset) LandCover(ctx context.Context, years domain.LayerYears) error {
	half := float64(d.job.Width) / 2 / metersPerDegree

	layers := make([]string, 0, len(years))
	for layer := range years {
		layers = append(layers, layer)
	}
	sort.Strings(layers)

	for _, layer := range layers {
		template, ok := nlcdLayers[layer]
		if !ok {
			return fmt.Errorf("unknown land-cover layer %q", layer)
		}
		year := years[layer]

		path := filepath.Join(d.dir, fmt.Sprintf("nlcd_%s_%d.tif", layer, year))
		if _, err := os.Stat(path); err == nil {
			d.loader.logger.Debug("land-cover file already present", "path", path)
			continue
		}

		params := url.Values{}
		params.Set("service", "WMS")
		params.Set("version", "1.3.0")
		params.Set("request", "GetMap")
		params.Set("layers", fmt.Sprintf(template, year))
		params.Set("crs", "EPSG:4326")
		params.Set("bbox", fmt.Sprintf("%.6f,%.6f,%.6f,%.6f",
			d.coord.Lat-half, d.coord.Lon-half, d.coord.Lat+half, d.coord.Lon+half))
		params.Set("width", strconv.Itoa(d.job.Width))
		params.Set("height", strconv.Itoa(d.job.Width))
		params.Set("format", "image/geotiff")

		body, err := d.loader.client.Get(ctx, d.loader.cfg.NLCDURL, params)
		if err != nil {
			return fmt.Errorf("fetch land cover %s/%d: %w", layer, year, err)
		}
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}
