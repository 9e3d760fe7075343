package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/forecast-data-service/internal/config"
	"github.com/couchcryptid/forecast-data-service/internal/domain"
	"github.com/couchcryptid/forecast-data-service/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes domain state changes to a Kafka topic.
type Writer struct {
	writer  messageWriter
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the configured events topic.
func NewWriter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaEventsTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Writer{writer: w, metrics: metrics, logger: logger}
}

// Publish writes one state change. Events are keyed by domain so a domain's
// transitions stay ordered within a partition.
func (w *Writer) Publish(ctx context.Context, change domain.StateChange) error {
	msg, err := serializeToMessage(change)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		w.metrics.EventPublishErrors.Inc()
		return fmt.Errorf("publish state change: %w", err)
	}
	w.metrics.EventsPublished.Inc()
	return nil
}

// Run publishes changes until ctx is done or changes is closed. A failed
// publish is logged and the loop moves on.
func (w *Writer) Run(ctx context.Context, changes <-chan domain.StateChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if err := w.Publish(ctx, change); err != nil {
				w.logger.Error("state change publish failed",
					"domain", string(change.Domain),
					"to", change.To.String(),
					"error", err,
				)
			}
		}
	}
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a StateChange into a Kafka message.
func serializeToMessage(change domain.StateChange) (kafkago.Message, error) {
	data, err := json.Marshal(change)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize state change: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(change.Domain),
		Value: data,
		Time:  change.At,
		Headers: []kafkago.Header{
			{Key: "domain", Value: []byte(change.Domain)},
			{Key: "state", Value: []byte(change.To.String())},
		},
	}, nil
}
