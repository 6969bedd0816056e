package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/malaria-risk-index/internal/config"
	"github.com/couchcryptid/malaria-risk-index/internal/domain"
)

// Writer publishes map export events to a Kafka topic.
// It implements pipeline.ExportPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured export topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish writes a single export event, keyed by event ID.
func (w *Writer) Publish(ctx context.Context, event domain.MapExportEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish export event: %w", err)
	}
	w.logger.Debug("export event published", "id", event.ID, "region", event.Region, "layer", event.Layer)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a MapExportEvent into a Kafka message.
func serializeToMessage(event domain.MapExportEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize export event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "region", Value: []byte(event.Region)},
			{Key: "layer", Value: []byte(event.Layer)},
			{Key: "exported_at", Value: []byte(event.ExportedAt.Format(time.RFC3339))},
		},
	}, nil
}
