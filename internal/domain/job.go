package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateFormat is the wire format for job date bounds.
const DateFormat = "2006-01-02"

// Default values merged into a job during normalization.
const (
	DefaultDataDir = "./data"
	DefaultWidth   = 2000
	DefaultYear    = 2016
)

// Coord is a WGS-84 longitude/latitude pair. The wire form is a
// two-element array in (lon, lat) order.
type Coord struct {
	Lon float64
	Lat float64
}

func (c Coord) String() string {
	return fmt.Sprintf("%.6f_%.6f", c.Lon, c.Lat)
}

// MarshalJSON encodes the coordinate as [lon, lat].
func (c Coord) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{c.Lon, c.Lat})
}

// UnmarshalJSON decodes a [lon, lat] array.
func (c *Coord) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("coords must be a [lon, lat] pair: %w", err)
	}
	c.Lon, c.Lat = pair[0], pair[1]
	return nil
}

// LayerYears maps an NLCD layer name to the release year to fetch.
type LayerYears map[string]int

// DefaultLayerYears returns the documented per-layer year defaults.
func DefaultLayerYears() LayerYears {
	return LayerYears{"impervious": DefaultYear, "cover": DefaultYear, "canopy": DefaultYear}
}

// JobRequest is one raw job record as submitted by a caller. Optional
// fields are pointers so an explicitly supplied zero value is
// distinguishable from an absent key; Normalize merges defaults only into
// absent fields and validates. Unknown JSON keys are preserved in Extra
// and carried through unmodified.
type JobRequest struct {
	Start     string     `json:"start"`
	End       string     `json:"end"`
	StationID string     `json:"station_id,omitempty"`
	Coords    *Coord     `json:"coords,omitempty"`
	DataDir   *string    `json:"data_dir,omitempty"`
	RainSnow  bool       `json:"rain_snow,omitempty"`
	Phenology bool       `json:"phenology,omitempty"`
	Climate   bool       `json:"climate,omitempty"`
	NLCD      bool       `json:"nlcd,omitempty"`
	Width     *int       `json:"width,omitempty"`
	Years     LayerYears `json:"years,omitempty"`

	// Extra holds unrecognized keys from the raw record.
	Extra map[string]json.RawMessage `json:"-"`
}

// recognizedKeys is the documented key set; anything else lands in Extra.
var recognizedKeys = map[string]struct{}{
	"start": {}, "end": {}, "station_id": {}, "coords": {}, "data_dir": {},
	"rain_snow": {}, "phenology": {}, "climate": {}, "nlcd": {},
	"width": {}, "years": {},
}

// UnmarshalJSON decodes the recognized keys into named fields and stashes
// the rest in Extra.
func (r *JobRequest) UnmarshalJSON(data []byte) error {
	type plain JobRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range raw {
		if _, ok := recognizedKeys[k]; ok {
			delete(raw, k)
		}
	}
	if len(raw) > 0 {
		p.Extra = raw
	}

	*r = JobRequest(p)
	return nil
}

// MarshalJSON re-emits the recognized fields alongside any carried-through
// extra keys.
func (r JobRequest) MarshalJSON() ([]byte, error) {
	type plain JobRequest
	data, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return data, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// Job is a fully-populated, validated job record ready for dispatch.
type Job struct {
	Start     time.Time
	End       time.Time
	StationID string
	Coords    *Coord
	DataDir   string
	RainSnow  bool
	Phenology bool
	Climate   bool
	NLCD      bool
	Width     int
	Years     LayerYears

	Extra map[string]json.RawMessage
}

// StationKey identifies the job for output-directory naming, logging, and
// completion events: the station identifier when present, otherwise the
// coordinate pair.
func (j Job) StationKey() string {
	if j.StationID != "" {
		return j.StationID
	}
	if j.Coords != nil {
		return j.Coords.String()
	}
	return ""
}

// Normalize validates the request and merges the documented defaults,
// returning a complete Job. Supplied values pass through unchanged; only
// the location-exclusivity and date-window invariants are enforced.
func (r JobRequest) Normalize() (Job, error) {
	if r.StationID != "" && r.Coords != nil {
		return Job{}, ErrExclusiveLocation
	}
	if r.StationID == "" && r.Coords == nil {
		return Job{}, ErrNoLocation
	}

	start, err := time.Parse(DateFormat, r.Start)
	if err != nil {
		return Job{}, fmt.Errorf("%w: start %q: %v", ErrInvalidDates, r.Start, err)
	}
	end, err := time.Parse(DateFormat, r.End)
	if err != nil {
		return Job{}, fmt.Errorf("%w: end %q: %v", ErrInvalidDates, r.End, err)
	}
	if end.Before(start) {
		return Job{}, fmt.Errorf("%w: end %s before start %s", ErrInvalidDates, r.End, r.Start)
	}

	job := Job{
		Start:     start,
		End:       end,
		StationID: r.StationID,
		Coords:    r.Coords,
		DataDir:   DefaultDataDir,
		RainSnow:  r.RainSnow,
		Phenology: r.Phenology,
		Climate:   r.Climate,
		NLCD:      r.NLCD,
		Width:     DefaultWidth,
		Years:     r.Years,
		Extra:     r.Extra,
	}
	if r.DataDir != nil {
		job.DataDir = *r.DataDir
	}
	if r.Width != nil {
		job.Width = *r.Width
	}
	if job.Years == nil {
		job.Years = DefaultLayerYears()
	} else {
		// Fill only the missing layers; supplied years stay untouched.
		for layer, year := range DefaultLayerYears() {
			if _, ok := job.Years[layer]; !ok {
				job.Years[layer] = year
			}
		}
	}
	return job, nil
}
