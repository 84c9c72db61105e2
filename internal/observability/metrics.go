package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// acquisition service.
type Metrics struct {
	JobsDispatched prometheus.Counter
	JobsSucceeded  prometheus.Counter
	JobsFailed     prometheus.Counter
	BatchRunning   prometheus.Gauge

	JobDuration   prometheus.Histogram
	BatchSize     prometheus.Histogram
	BatchDuration prometheus.Histogram

	// Outbound HTTP metrics.
	HTTPRetries prometheus.Counter

	// Geocoding metrics.
	GeocodeRequests *prometheus.CounterVec // labels: outcome={success,error,outside}
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}

	// Elevation metrics.
	ElevationRequests *prometheus.CounterVec // labels: kind={point,bbox}, outcome={success,error,nodata}
	DEMCacheHits      prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.JobsDispatched,
		m.JobsSucceeded,
		m.JobsFailed,
		m.BatchRunning,
		m.JobDuration,
		m.BatchSize,
		m.BatchDuration,
		m.HTTPRetries,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.ElevationRequests,
		m.DEMCacheHits,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		JobsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hydrodata",
			Name:      "jobs_dispatched_total",
			Help:      "Total jobs submitted to the worker pool.",
		}),
		JobsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hydrodata",
			Name:      "jobs_succeeded_total",
			Help:      "Total jobs that completed successfully.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hydrodata",
			Name:      "jobs_failed_total",
			Help:      "Total jobs that ended in an error.",
		}),
		BatchRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hydrodata",
			Name:      "batch_running",
			Help:      "1 while a batch is executing, 0 otherwise.",
		}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hydrodata",
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration of a single acquisition job.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hydrodata",
			Name:      "batch_size",
			Help:      "Number of jobs per submitted batch.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hydrodata",
			Name:      "batch_duration_seconds",
			Help:      "Duration of a complete batch, normalization to last result.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		HTTPRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hydrodata",
			Name:      "http_retries_total",
			Help:      "Total outbound HTTP attempts beyond the first.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hydrodata",
			Name:      "geocode_requests_total",
			Help:      "Reverse-geocoding requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hydrodata",
			Name:      "geocode_cache_total",
			Help:      "Reverse-geocoding cache lookups by result.",
		}, []string{"result"}),
		ElevationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hydrodata",
			Name:      "elevation_requests_total",
			Help:      "Elevation queries by kind and outcome.",
		}, []string{"kind", "outcome"}),
		DEMCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hydrodata",
			Name:      "dem_cache_hits_total",
			Help:      "Bounding-box elevation requests served from a cached clip.",
		}),
	}
}
