package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/models"
	"github.com/calaguinjaysonjake-prog/personal-financial-tracker/pkg/tracing"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	TransactionCreated = "transaction.created"
	TransactionUpdated = "transaction.updated"
	TransactionDeleted = "transaction.deleted"

	DefaultTopic = "transactions"
)

type Event struct {
	Type          string              `json:"type"`
	TransactionID string              `json:"transactionId"`
	Transaction   *models.Transaction `json:"transaction,omitempty"`
	OccurredAt    time.Time           `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Kafka writes events asynchronously, keyed by transaction id so every event
// for one transaction lands on the same partition.
type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers []string, topic string) *Kafka {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			Async:                  true,
			AllowAutoTopicCreation: true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					log.Error().Err(err).Int("messages", len(messages)).Msg("Failed to publish events")
				}
			},
		},
	}
}

func (k *Kafka) Publish(ctx context.Context, e Event) error {
	ctx, span := tracing.NewSpan("events.publish", ctx)
	defer span.End()
	span.SetAttributes(
		attribute.String("event", e.Type),
		attribute.String("transaction", e.TransactionID),
	)

	msg, err := Message(e)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encode event")
		return err
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to write event")
		return err
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Message encodes e as a kafka message keyed by transaction id.
func Message(e Event) (kafka.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(e.TransactionID),
		Value: data,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}, nil
}
