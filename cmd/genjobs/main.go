// Command genjobs generates a batch jobs file from a list of station
// identifiers. Every record is normalized through the domain rules before
// writing, so a generated file is guaranteed to dispatch cleanly.
//
// Usage:
//
//	genjobs -stations 11092450,09423350 -start 2015-01-01 -end 2016-12-31 \
//	  -climate -nlcd -out jobs.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/wshedlab/hydrodata/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	stations := flag.String("stations", "", "comma-separated USGS station identifiers")
	start := flag.String("start", "", "window start (YYYY-MM-DD)")
	end := flag.String("end", "", "window end (YYYY-MM-DD)")
	dataDir := flag.String("data-dir", "", "output directory override (empty keeps the default)")
	climate := flag.Bool("climate", false, "request climate series")
	nlcd := flag.Bool("nlcd", false, "request land-cover layers")
	rainSnow := flag.Bool("rain-snow", false, "request rain/snow partitioning")
	out := flag.String("out", "jobs.json", "output path for the batch file")
	flag.Parse()

	if *stations == "" || *start == "" || *end == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -stations, -start, -end")
	}

	var records []domain.JobRequest
	for _, id := range strings.Split(*stations, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		rec := domain.JobRequest{
			Start:     *start,
			End:       *end,
			StationID: id,
			Climate:   *climate,
			NLCD:      *nlcd,
			RainSnow:  *rainSnow,
		}
		if *dataDir != "" {
			rec.DataDir = dataDir
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return fmt.Errorf("no station identifiers in %q", *stations)
	}

	// Reject a batch the dispatcher would reject.
	for i, rec := range records {
		if _, err := rec.Normalize(); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}

	if err := writeJSON(*out, records); err != nil {
		return fmt.Errorf("writing batch file: %w", err)
	}
	log.Printf("wrote %d job records: %s", len(records), *out)
	return nil
}

func writeJSON(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
