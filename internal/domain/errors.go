package domain

import "errors"

// Sentinel errors for the failure classes callers are expected to branch
// on. Everything else (network, filesystem) is wrapped and propagated as-is.
var (
	// ErrExclusiveLocation is returned when a job supplies both a station
	// identifier and a coordinate pair.
	ErrExclusiveLocation = errors.New("either coordinates or a station identifier should be provided, not both")

	// ErrNoLocation is returned when a job supplies neither a station
	// identifier nor a coordinate pair.
	ErrNoLocation = errors.New("a station identifier or a coordinate pair is required")

	// ErrInvalidDates is returned when the date window is absent or inverted.
	ErrInvalidDates = errors.New("invalid date window")

	// ErrMissingData is returned when an expected file or feature is absent,
	// e.g. a workspace subdirectory without a watershed descriptor.
	ErrMissingData = errors.New("missing data")

	// ErrOutOfDomain is returned when a service answers with a value outside
	// its valid domain: the elevation no-data sentinel, or a reverse-geocode
	// result outside the US.
	ErrOutOfDomain = errors.New("out of domain")
)
