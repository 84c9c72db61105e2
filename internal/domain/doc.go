// Package domain models hydrology data-acquisition jobs.
//
// # Job records
//
// A job describes one unit of acquisition work: a date window, a location
// given either as a USGS station identifier or as a lon/lat coordinate
// pair (never both), an output directory, and optional auxiliary layers
// (climate, land cover, rain/snow partitioning, phenology).
//
// Jobs arrive as loosely-typed JSON records. JobRequest captures the
// recognized keys into named fields and carries every unrecognized key
// through unmodified, so downstream tooling that annotates job files does
// not lose its annotations on a round trip.
//
// # Defaults
//
// Normalization merges documented defaults into a request:
//
//	data_dir   ./data
//	width      2000
//	years      impervious=2016 cover=2016 canopy=2016
//	rain_snow, phenology, climate, nlcd   false
//
// Supplied values are never coerced or range-checked beyond the
// location-exclusivity and date-window checks.
//
// # Land-cover years
//
// The NLCD year mapping uses the layer names of the National Land Cover
// Database products: "impervious" (imperviousness), "cover" (land cover
// class), "canopy" (tree canopy). 2016 is the most recent release common
// to all three.
package domain
