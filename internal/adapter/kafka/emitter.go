// Package kafka publishes per-job completion events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/wshedlab/hydrodata/internal/config"
	"github.com/wshedlab/hydrodata/internal/domain"
)

// Emitter produces one message per finished acquisition job. It
// implements dispatch.Emitter.
type Emitter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewEmitter creates a Kafka producer for the configured sink topic.
func NewEmitter(cfg *config.Config, logger *slog.Logger) *Emitter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Emitter{writer: w, logger: logger}
}

// Emit serializes and publishes one job completion event.
func (e *Emitter) Emit(ctx context.Context, result domain.JobResult) error {
	msg, err := serializeResult(result)
	if err != nil {
		return err
	}
	return e.writer.WriteMessages(ctx, msg)
}

func (e *Emitter) Close() error {
	return e.writer.Close()
}

// completionEvent is the wire form of a finished job. Errors are carried
// as text; consumers only route on success or failure.
type completionEvent struct {
	Index      int       `json:"index"`
	StationKey string    `json:"station_key"`
	DataDir    string    `json:"data_dir,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	FinishedAt time.Time `json:"finished_at"`
}

// serializeResult marshals a JobResult into a Kafka message keyed by the
// station, so per-station ordering survives partitioning.
func serializeResult(result domain.JobResult) (kafkago.Message, error) {
	event := completionEvent{
		Index:      result.Index,
		StationKey: result.StationKey,
		DataDir:    result.DataDir,
		DurationMS: result.Duration.Milliseconds(),
		FinishedAt: result.FinishedAt,
	}
	outcome := "success"
	if result.Err != nil {
		event.Error = result.Err.Error()
		outcome = "failure"
	}

	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize completion event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(result.StationKey),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "outcome", Value: []byte(outcome)},
			{Key: "finished_at", Value: []byte(result.FinishedAt.Format(time.RFC3339))},
		},
	}, nil
}
