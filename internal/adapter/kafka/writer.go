package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/minesafe-service/internal/config"
	"github.com/couchcryptid/minesafe-service/internal/domain"
)

// Writer publishes hazard notices for display collaborators.
// It implements hazard.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured hazard topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaHazardTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishHazard writes one notice keyed by node id, so a node's events stay
// ordered within a partition.
func (w *Writer) PublishHazard(ctx context.Context, notice domain.HazardNotice) error {
	msg, err := serializeNotice(notice)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write hazard notice: %w", err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func serializeNotice(notice domain.HazardNotice) (kafkago.Message, error) {
	data, err := json.Marshal(notice)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize hazard notice: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(notice.NodeID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "severity", Value: []byte(notice.Event.Severity.String())},
			{Key: "node_type", Value: []byte(notice.Event.NodeType)},
			{Key: "tenant_id", Value: []byte(notice.TenantID)},
		},
	}, nil
}
