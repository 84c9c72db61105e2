// Package workspace reads previously acquired station data from disk.
//
// A workspace root contains one numeric-named subdirectory per station.
// Each subdirectory holds a watershed.json descriptor and one or more
// NetCDF climate files. Climate files are treated as opaque artifacts;
// decoding them is the consumer's concern.
package workspace

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/wshedlab/hydrodata/internal/domain"
)

// DescriptorFile is the watershed descriptor filename within a station
// directory.
const DescriptorFile = "watershed.json"

// GlobalWatershedName is the feature-collection entry holding the full
// drainage-basin boundary.
const GlobalWatershedName = "globalwatershed"

// Parameter is one derived basin characteristic from the watershed
// descriptor.
type Parameter struct {
	Name  string  `json:"name"`
	Code  string  `json:"code"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// Descriptor is the on-disk watershed.json layout: named GeoJSON feature
// collections plus derived basin parameters.
type Descriptor struct {
	Parameters        []Parameter       `json:"parameters"`
	FeatureCollection []NamedCollection `json:"featurecollection"`
}

// NamedCollection pairs a layer name with its GeoJSON features.
type NamedCollection struct {
	Name    string                     `json:"name"`
	Feature *geojson.FeatureCollection `json:"feature"`
}

// Station is one loaded workspace entry.
type Station struct {
	Parameters   []Parameter
	Geometry     orb.Geometry // boundary of the global watershed
	ClimateFiles []string     // absolute paths to *.nc artifacts
}

// Load scans root's immediate numeric-named subdirectories and returns a
// mapping from subdirectory name to its station data. A root with no
// station directories is not an error; it yields an empty map and a log
// line. A station directory that is present but incomplete is an error.
func Load(root string, logger *slog.Logger) (map[string]Station, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read workspace root: %w", err)
	}

	stations := make(map[string]Station)
	for _, e := range entries {
		if !e.IsDir() || !isNumeric(e.Name()) {
			continue
		}
		dir := filepath.Join(root, e.Name())
		st, err := loadStation(dir)
		if err != nil {
			return nil, err
		}
		stations[e.Name()] = st
	}

	if len(stations) == 0 {
		logger.Info("no station data found in workspace", "root", root)
	}
	return stations, nil
}

func loadStation(dir string) (Station, error) {
	descPath := filepath.Join(dir, DescriptorFile)
	data, err := os.ReadFile(descPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Station{}, fmt.Errorf("%w: %s cannot be found in %s",
				domain.ErrMissingData, DescriptorFile, dir)
		}
		return Station{}, fmt.Errorf("read %s: %w", descPath, err)
	}

	var desc Descriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return Station{}, fmt.Errorf("parse %s: %w", descPath, err)
	}

	geom, err := globalWatershedGeometry(desc)
	if err != nil {
		return Station{}, fmt.Errorf("%s: %w", descPath, err)
	}

	climates, err := filepath.Glob(filepath.Join(dir, "*.nc"))
	if err != nil {
		return Station{}, fmt.Errorf("scan climate files: %w", err)
	}
	if len(climates) == 0 {
		return Station{}, fmt.Errorf("%w: no climate data file (*.nc) exists in %s",
			domain.ErrMissingData, dir)
	}
	sort.Strings(climates)

	return Station{
		Parameters:   desc.Parameters,
		Geometry:     geom,
		ClimateFiles: climates,
	}, nil
}

// globalWatershedGeometry extracts the boundary geometry of the
// globalwatershed entry, the first feature's geometry by convention.
func globalWatershedGeometry(desc Descriptor) (orb.Geometry, error) {
	for _, nc := range desc.FeatureCollection {
		if nc.Name != GlobalWatershedName {
			continue
		}
		if nc.Feature == nil || len(nc.Feature.Features) == 0 {
			return nil, fmt.Errorf("%w: %q entry has no features",
				domain.ErrMissingData, GlobalWatershedName)
		}
		return nc.Feature.Features[0].Geometry, nil
	}
	return nil, fmt.Errorf("%w: could not find %q in the descriptor",
		domain.ErrMissingData, GlobalWatershedName)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
