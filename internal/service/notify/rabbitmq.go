package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/karoba/wellness/internal/domain"
)

// Publisher is the subset of amqp.Channel used by RabbitMQ.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQ publishes events to a durable queue.
type RabbitMQ struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	publisher Publisher
	queue     string
}

// DialRabbitMQ connects, opens a channel and declares queue.
func DialRabbitMQ(url, queue string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &RabbitMQ{conn: conn, channel: ch, publisher: ch, queue: queue}, nil
}

// NewRabbitMQWithPublisher wraps an existing publisher.
func NewRabbitMQWithPublisher(p Publisher, queue string) *RabbitMQ {
	return &RabbitMQ{publisher: p, queue: queue}
}

// Notify publishes the event as a persistent JSON message.
func (r *RabbitMQ) Notify(ctx context.Context, event domain.AccountEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode account event: %w", err)
	}
	err = r.publisher.PublishWithContext(ctx, "", r.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         string(event.Type),
		MessageId:    fmt.Sprintf("%s-%d", event.AccountID, event.OccurredAt.UnixNano()),
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}

// Close releases the channel and connection when owned.
func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			return err
		}
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
