package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Service endpoints queried by the acquisition components. Each one is
// overridable so tests and air-gapped deployments can point elsewhere.
const (
	defaultEPQSURL        = "https://nationalmap.gov/epqs/pqs.php"
	defaultCensusURL      = "https://geocoding.geo.census.gov/geocoder/geographies/coordinates"
	defaultDEMClipURL     = "https://portal.opentopography.org/API/globaldem"
	defaultNWISURL        = "https://waterservices.usgs.gov/nwis/site/"
	defaultStreamStatsURL = "https://streamstats.usgs.gov/streamstatsservices/watershed.geojson"
	defaultDaymetURL      = "https://daymet.ornl.gov/single-pixel/api/data"
	defaultNLCDURL        = "https://www.mrlc.gov/geoserver/mrlc_download/wms"
	defaultNHDURL         = "https://s3.amazonaws.com/edap-nhdplus/NHDPlusV21/Data/NationalData/"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	DataDir    string
	Workers    int
	JobTimeout time.Duration

	// Outbound HTTP retry policy.
	HTTPRetries       int
	HTTPBackoffFactor time.Duration
	HTTPTimeout       time.Duration

	// Optional per-job completion events.
	KafkaBrokers   []string
	KafkaSinkTopic string
	KafkaEnabled   bool

	GeocodeCacheSize int

	// Upstream service endpoints.
	EPQSURL        string
	CensusURL      string
	DEMClipURL     string
	NWISURL        string
	StreamStatsURL string
	DaymetURL      string
	NLCDURL        string
	NHDURL         string
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	jobTimeout, err := parseDuration("JOB_TIMEOUT", "10m")
	if err != nil {
		return nil, err
	}
	httpTimeout, err := parseDuration("HTTP_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	backoff, err := parseDuration("HTTP_BACKOFF_FACTOR", "500ms")
	if err != nil {
		return nil, err
	}

	workers, err := parseInt("WORKERS", runtime.GOMAXPROCS(0), 1, 256)
	if err != nil {
		return nil, err
	}
	retries, err := parseInt("HTTP_RETRIES", 3, 0, 10)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseInt("GEOCODE_CACHE_SIZE", 1000, 1, 1_000_000)
	if err != nil {
		return nil, err
	}

	brokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DataDir:    envOrDefault("DATA_DIR", "./data"),
		Workers:    workers,
		JobTimeout: jobTimeout,

		HTTPRetries:       retries,
		HTTPBackoffFactor: backoff,
		HTTPTimeout:       httpTimeout,

		KafkaBrokers:   brokers,
		KafkaSinkTopic: envOrDefault("KAFKA_SINK_TOPIC", "hydrodata-job-completions"),
		KafkaEnabled:   kafkaEnabled,

		GeocodeCacheSize: cacheSize,

		EPQSURL:        envOrDefault("EPQS_URL", defaultEPQSURL),
		CensusURL:      envOrDefault("CENSUS_GEOCODER_URL", defaultCensusURL),
		DEMClipURL:     envOrDefault("DEM_CLIP_URL", defaultDEMClipURL),
		NWISURL:        envOrDefault("NWIS_URL", defaultNWISURL),
		StreamStatsURL: envOrDefault("STREAMSTATS_URL", defaultStreamStatsURL),
		DaymetURL:      envOrDefault("DAYMET_URL", defaultDaymetURL),
		NLCDURL:        envOrDefault("NLCD_URL", defaultNLCDURL),
		NHDURL:         envOrDefault("NHD_URL", defaultNHDURL),
	}

	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}
	if cfg.KafkaEnabled && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required when Kafka is enabled")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	s := envOrDefault(key, fallback)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseInt(key string, fallback, minimum, maximum int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum || n > maximum {
		return 0, fmt.Errorf("invalid %s: %q (want %d..%d)", key, s, minimum, maximum)
	}
	return n, nil
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
