// Package dispatch fans a batch of job records out over a bounded worker
// pool and collects per-job results in submission order.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wshedlab/hydrodata/internal/domain"
	"github.com/wshedlab/hydrodata/internal/observability"
)

// JobRunner executes one normalized job and returns its output directory.
type JobRunner interface {
	Run(ctx context.Context, job domain.Job) (string, error)
}

// Emitter publishes a completion event per finished job. Implementations
// must be safe for concurrent use.
type Emitter interface {
	Emit(ctx context.Context, result domain.JobResult) error
}

// Dispatcher runs batches of acquisition jobs. Records are normalized up
// front; a batch with any invalid record is rejected before any job runs.
type Dispatcher struct {
	runner     JobRunner
	emitter    Emitter // nil when completion events are disabled
	workers    int
	jobTimeout time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEmitter attaches a completion-event emitter.
func WithEmitter(e Emitter) Option {
	return func(d *Dispatcher) { d.emitter = e }
}

// WithJobTimeout bounds each job's execution. Zero means no per-job bound.
func WithJobTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.jobTimeout = timeout }
}

// New creates a Dispatcher with the given worker-pool ceiling.
func New(runner JobRunner, workers int, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		runner:  runner,
		workers: workers,
		metrics: metrics,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Running reports whether a batch is currently executing. The readiness
// endpoint uses this to expose batch progress.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Dispatcher) setRunning(v bool) {
	d.mu.Lock()
	d.running = v
	d.mu.Unlock()
	if v {
		d.metrics.BatchRunning.Set(1)
	} else {
		d.metrics.BatchRunning.Set(0)
	}
}

// Run normalizes and executes a batch. Every submitted record yields a
// result at its own index, success or failure. The returned error is the
// first job error in submission order; later results are still populated.
// A normalization error aborts the batch before any job is dispatched.
func (d *Dispatcher) Run(ctx context.Context, records []domain.JobRequest) ([]domain.JobResult, error) {
	jobs := make([]domain.Job, len(records))
	for i, rec := range records {
		job, err := rec.Normalize()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		jobs[i] = job
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	d.setRunning(true)
	defer d.setRunning(false)

	workers := d.workers
	if len(jobs) < workers {
		workers = len(jobs)
	}

	d.metrics.BatchSize.Observe(float64(len(jobs)))
	d.logger.Info("batch started", "jobs", len(jobs), "workers", workers)
	batchStart := time.Now()

	results := make([]domain.JobResult, len(jobs))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job domain.Job) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = d.runOne(ctx, i, job)
		}(i, job)
	}
	wg.Wait()

	d.metrics.BatchDuration.Observe(time.Since(batchStart).Seconds())

	var firstErr error
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = fmt.Errorf("job %d (%s): %w", res.Index, res.StationKey, res.Err)
			}
		}
	}
	d.logger.Info("batch finished",
		"jobs", len(jobs), "failed", failed, "took", time.Since(batchStart))
	return results, firstErr
}

// runOne executes a single job, records its metrics, and emits its
// completion event.
func (d *Dispatcher) runOne(ctx context.Context, index int, job domain.Job) domain.JobResult {
	jobCtx := ctx
	if d.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, d.jobTimeout)
		defer cancel()
	}

	d.metrics.JobsDispatched.Inc()
	start := time.Now()
	dir, err := d.runner.Run(jobCtx, job)
	took := time.Since(start)

	d.metrics.JobDuration.Observe(took.Seconds())
	if err != nil {
		d.metrics.JobsFailed.Inc()
		d.logger.Error("job failed", "index", index, "station", job.StationKey(), "error", err)
	} else {
		d.metrics.JobsSucceeded.Inc()
		d.logger.Info("job succeeded", "index", index, "station", job.StationKey(), "took", took)
	}

	result := domain.NewJobResult(index, job.StationKey(), dir, err, took)
	if d.emitter != nil {
		// Emit on the batch context, not the job context: a job that hit
		// its own deadline still gets its completion event out.
		if emitErr := d.emitter.Emit(ctx, result); emitErr != nil {
			// Event delivery is best effort; the job outcome stands.
			d.logger.Warn("completion event not delivered",
				"station", result.StationKey, "error", emitErr)
		}
	}
	return result
}
