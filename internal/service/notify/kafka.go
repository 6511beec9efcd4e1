package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/karoba/wellness/internal/domain"
)

// Writer is the subset of kafka.Writer used by Kafka.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events keyed by account id.
type Kafka struct {
	writer Writer
}

// NewKafka writes to topic on the given brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	return NewKafkaWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	})
}

// NewKafkaWithWriter wraps an existing writer.
func NewKafkaWithWriter(w Writer) *Kafka {
	return &Kafka{writer: w}
}

// Notify writes the event as JSON.
func (k *Kafka) Notify(ctx context.Context, event domain.AccountEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode account event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.AccountID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

// Close closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
