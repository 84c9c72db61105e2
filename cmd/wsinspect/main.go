// Command wsinspect checks the integrity of an acquisition workspace: it
// loads every station directory, verifies descriptors and climate
// artifacts, and reports basin geometry statistics. With -elevation it
// also queries the terrain elevation of each basin's centroid, and with
// -dem it samples the centroid from a cached DEM clip of the basin's
// bounding box.
//
// Usage:
//
//	wsinspect -root ./data
//	wsinspect -root ./data -elevation -dem
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/joho/godotenv"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/wshedlab/hydrodata/internal/config"
	"github.com/wshedlab/hydrodata/internal/domain"
	"github.com/wshedlab/hydrodata/internal/elevation"
	"github.com/wshedlab/hydrodata/internal/geocode"
	"github.com/wshedlab/hydrodata/internal/observability"
	"github.com/wshedlab/hydrodata/internal/request"
	"github.com/wshedlab/hydrodata/internal/workspace"
)

// phase tracks pass/fail for one inspection phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	root := flag.String("root", "./data", "workspace root directory")
	withElevation := flag.Bool("elevation", false, "query centroid elevations from the terrain service")
	withDEM := flag.Bool("dem", false, "sample centroid elevations from cached DEM clips of each basin")
	flag.Parse()

	_ = godotenv.Load()

	if code := run(*root, *withElevation, *withDEM); code != 0 {
		os.Exit(code)
	}
}

// terrain bundles the clients the elevation phases share.
type terrain struct {
	points  *elevation.PointClient
	sampler *elevation.BBoxSampler
}

func newTerrain(logger *slog.Logger) (*terrain, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	metrics := observability.NewMetrics()
	client := request.New(logger,
		request.WithRetries(cfg.HTTPRetries),
		request.WithBackoffFactor(cfg.HTTPBackoffFactor),
		request.WithTimeout(cfg.HTTPTimeout),
	)
	geocoder := geocode.NewCachedGeocoder(
		geocode.NewClient(client, cfg.CensusURL, metrics, logger),
		cfg.GeocodeCacheSize, metrics)
	return &terrain{
		points:  elevation.NewPointClient(client, cfg.EPQSURL, metrics, logger),
		sampler: elevation.NewBBoxSampler(client, geocoder, cfg.DEMClipURL, metrics, logger),
	}, nil
}

func run(root string, withElevation, withDEM bool) int {
	logger := observability.NewLogger("warn", "text")

	fmt.Println("=== Workspace Inspection ===")
	fmt.Println()

	stations, err := workspace.Load(root, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load workspace: %v\n", err)
		return 1
	}
	if len(stations) == 0 {
		fmt.Printf("No station data found under %s\n", root)
		return 0
	}

	names := make([]string, 0, len(stations))
	for name := range stations {
		names = append(names, name)
	}
	sort.Strings(names)

	phases := []*phase{
		inspectParameters(names, stations),
		inspectGeometry(names, stations),
		inspectClimate(names, stations),
	}
	if withElevation || withDEM {
		svc, err := newTerrain(logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			return 1
		}
		if withElevation {
			phases = append(phases, inspectElevation(names, stations, svc))
		}
		if withDEM {
			phases = append(phases, inspectDEM(root, names, stations, svc))
		}
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-40s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Stations: %d\n", len(stations))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nWorkspace is consistent.")
		return 0
	}
	fmt.Println("\nInspection FAILED.")
	return 1
}

// inspectParameters verifies that every station carries basin parameters
// with codes and finite values.
func inspectParameters(names []string, stations map[string]workspace.Station) *phase {
	p := &phase{name: "Phase 1: Basin Parameters"}
	for _, name := range names {
		st := stations[name]
		if len(st.Parameters) == 0 {
			p.errorf("%s: descriptor has no basin parameters", name)
			continue
		}
		for _, param := range st.Parameters {
			if param.Code == "" {
				p.errorf("%s: parameter %q has no code", name, param.Name)
			}
		}
	}
	return p
}

// inspectGeometry verifies each basin boundary is an area geometry and
// prints its extent.
func inspectGeometry(names []string, stations map[string]workspace.Station) *phase {
	p := &phase{name: "Phase 2: Basin Geometry"}
	for _, name := range names {
		st := stations[name]
		switch g := st.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
			bound := g.Bound()
			area := planar.Area(g)
			if area <= 0 {
				p.errorf("%s: basin boundary has non-positive area", name)
				continue
			}
			fmt.Printf("  %s: bound [%.4f, %.4f, %.4f, %.4f], area %.6f sq deg\n",
				name, bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1], area)
		case nil:
			p.errorf("%s: no basin boundary", name)
		default:
			p.errorf("%s: basin boundary is %T, want a polygon", name, g)
		}
	}
	return p
}

// inspectClimate verifies climate artifacts are present and non-empty.
func inspectClimate(names []string, stations map[string]workspace.Station) *phase {
	p := &phase{name: "Phase 3: Climate Artifacts"}
	for _, name := range names {
		st := stations[name]
		for _, path := range st.ClimateFiles {
			info, err := os.Stat(path)
			if err != nil {
				p.errorf("%s: %v", name, err)
				continue
			}
			if info.Size() == 0 {
				p.errorf("%s: %s is empty", name, path)
			}
		}
	}
	return p
}

// inspectElevation queries the terrain service for each basin centroid.
func inspectElevation(names []string, stations map[string]workspace.Station, svc *terrain) *phase {
	p := &phase{name: "Phase 4: Centroid Elevation"}

	ctx := context.Background()
	for _, name := range names {
		st := stations[name]
		if st.Geometry == nil {
			continue
		}
		centroid, _ := planar.CentroidArea(st.Geometry)
		elev, err := svc.points.Elevation(ctx, centroid[0], centroid[1])
		if err != nil {
			p.errorf("%s: elevation query: %v", name, err)
			continue
		}
		fmt.Printf("  %s: centroid (%.4f, %.4f) elevation %.1f m\n", name, centroid[0], centroid[1], elev)
	}
	return p
}

// inspectDEM clips a DEM over each basin's bounding box (cached in the
// station directory) and samples the centroid from the grid. Agreement
// with the point service is reported, not enforced.
func inspectDEM(root string, names []string, stations map[string]workspace.Station, svc *terrain) *phase {
	p := &phase{name: "Phase 5: DEM Clip Sampling"}

	ctx := context.Background()
	for _, name := range names {
		st := stations[name]
		if st.Geometry == nil {
			continue
		}
		bound := st.Geometry.Bound()
		bbox := elevation.BBox{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]}
		centroid, _ := planar.CentroidArea(st.Geometry)

		elevs, err := svc.sampler.Sample(ctx, bbox,
			[]domain.Coord{{Lon: centroid[0], Lat: centroid[1]}},
			filepath.Join(root, name))
		if err != nil {
			p.errorf("%s: dem sample: %v", name, err)
			continue
		}
		fmt.Printf("  %s: dem centroid elevation %.1f m\n", name, elevs[0])
	}
	return p
}
