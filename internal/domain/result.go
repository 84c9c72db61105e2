package domain

import (
	"time"
)

// JobResult is the tagged outcome of one dispatched job. Every job in a
// batch produces a result, so callers can tell which jobs finished even
// when the batch as a whole is reported as failed.
type JobResult struct {
	// Index is the job's position in the submitted batch.
	Index int

	// StationKey identifies the station or coordinate the job targeted.
	StationKey string

	// DataDir is the output directory on success; empty on failure.
	DataDir string

	// Err is the job's failure, nil on success.
	Err error

	// Duration is the wall-clock execution time of the job.
	Duration time.Duration

	// FinishedAt is when the job completed, from the package clock.
	FinishedAt time.Time
}

// Succeeded reports whether the job completed without error.
func (r JobResult) Succeeded() bool { return r.Err == nil }

// NewJobResult stamps a result with the package clock.
func NewJobResult(index int, key, dataDir string, err error, took time.Duration) JobResult {
	return JobResult{
		Index:      index,
		StationKey: key,
		DataDir:    dataDir,
		Err:        err,
		Duration:   took,
		FinishedAt: clock.Now(),
	}
}
