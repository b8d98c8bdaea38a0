// Package events announces confirmed deliveries to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"sitesync/internal/config"
	"sitesync/internal/logging"
)

// Delivery describes one payload that reached the remote store.
type Delivery struct {
	ID          string    `json:"id"`
	Destination string    `json:"destination"`
	Locator     string    `json:"locator"`
	Size        int64     `json:"size"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// Publisher sends delivery events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishDelivered(ctx context.Context, delivery Delivery) error
	Close() error
}

// New returns a Kafka publisher when brokers are configured, otherwise a
// publisher that drops every event.
func New(cfg config.Events, logger *slog.Logger) Publisher {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return Noop{}
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
	}
	return NewKafka(writer, logger)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes JSON delivery events keyed by item id, so every event for
// one item lands on the same partition.
type Kafka struct {
	writer messageWriter
	logger *slog.Logger
}

// NewKafka wraps an existing writer.
func NewKafka(writer messageWriter, logger *slog.Logger) *Kafka {
	return &Kafka{writer: writer, logger: logging.NewComponentLogger(logger, "events")}
}

func (k *Kafka) PublishDelivered(ctx context.Context, delivery Delivery) error {
	value, err := json.Marshal(delivery)
	if err != nil {
		return fmt.Errorf("encode delivery event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(delivery.ID),
		Value: value,
		Time:  delivery.DeliveredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte("delivered")},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish delivery event: %w", err)
	}
	k.logger.Debug("delivery event published",
		logging.String(logging.FieldItemID, delivery.ID),
		logging.String(logging.FieldDestination, delivery.Destination),
	)
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Noop drops events.
type Noop struct{}

func (Noop) PublishDelivered(context.Context, Delivery) error { return nil }

func (Noop) Close() error { return nil }
