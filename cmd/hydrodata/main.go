// Command hydrodata runs batches of hydrology data-acquisition jobs.
//
// A batch is a JSON array of job records given via -jobs. Each record
// names a USGS station or a coordinate pair plus the layers to acquire;
// results land under the configured data directory, one subdirectory per
// station. Operational endpoints (health, readiness, metrics) are served
// while the batch runs.
//
// Usage:
//
//	hydrodata -jobs jobs.json
//	hydrodata -fetch-nhd
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wshedlab/hydrodata/internal/acquire"
	httpadapter "github.com/wshedlab/hydrodata/internal/adapter/http"
	kafkaadapter "github.com/wshedlab/hydrodata/internal/adapter/kafka"
	"github.com/wshedlab/hydrodata/internal/config"
	"github.com/wshedlab/hydrodata/internal/dispatch"
	"github.com/wshedlab/hydrodata/internal/domain"
	"github.com/wshedlab/hydrodata/internal/download"
	"github.com/wshedlab/hydrodata/internal/geocode"
	"github.com/wshedlab/hydrodata/internal/observability"
	"github.com/wshedlab/hydrodata/internal/request"
)

func main() {
	jobsPath := flag.String("jobs", "", "path to a JSON file with the batch of job records")
	fetchNHD := flag.Bool("fetch-nhd", false, "download and unpack the NHDPlus gage archives, then exit")
	flag.Parse()

	// Missing .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger, *jobsPath, *fetchNHD); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, jobsPath string, fetchNHD bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if fetchNHD {
		// No client timeout: the national archives are multi-gigabyte and
		// cancellation goes through the signal context.
		fetcher := download.NewFetcher(&http.Client{}, logger)
		return fetcher.FetchNHD(ctx, cfg.NHDURL, cfg.DataDir)
	}

	if jobsPath == "" {
		return errors.New("either -jobs or -fetch-nhd is required")
	}

	records, err := readBatch(jobsPath)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()

	client := request.New(logger,
		request.WithRetries(cfg.HTTPRetries),
		request.WithBackoffFactor(cfg.HTTPBackoffFactor),
		request.WithTimeout(cfg.HTTPTimeout),
		request.WithRetryCounter(metrics.HTTPRetries),
	)

	censusClient := geocode.NewClient(client, cfg.CensusURL, metrics, logger)
	geocoder := geocode.NewCachedGeocoder(censusClient, cfg.GeocodeCacheSize, metrics)

	loader := acquire.NewUSGSLoader(client, geocoder, acquire.USGSConfig{
		NWISURL:        cfg.NWISURL,
		StreamStatsURL: cfg.StreamStatsURL,
		DaymetURL:      cfg.DaymetURL,
		NLCDURL:        cfg.NLCDURL,
	}, logger)
	runner := acquire.NewRunner(loader, logger)

	opts := []dispatch.Option{dispatch.WithJobTimeout(cfg.JobTimeout)}
	if cfg.KafkaEnabled {
		emitter := kafkaadapter.NewEmitter(cfg, logger)
		defer func() {
			if err := emitter.Close(); err != nil {
				logger.Error("kafka emitter close error", "error", err)
			}
		}()
		opts = append(opts, dispatch.WithEmitter(emitter))
		logger.Info("completion events enabled", "topic", cfg.KafkaSinkTopic)
	}
	dispatcher := dispatch.New(runner, cfg.Workers, metrics, logger, opts...)

	srv := httpadapter.NewServer(cfg.HTTPAddr, dispatcher, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}()

	results, err := dispatcher.Run(ctx, records)
	for _, res := range results {
		if res.Succeeded() {
			logger.Info("result", "index", res.Index, "station", res.StationKey, "dir", res.DataDir)
		} else {
			logger.Error("result", "index", res.Index, "station", res.StationKey, "error", res.Err)
		}
	}
	return err
}

func readBatch(path string) ([]domain.JobRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}
	var records []domain.JobRequest
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse jobs file %s: %w", path, err)
	}
	return records, nil
}
