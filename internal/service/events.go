package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/auth-service/internal/queue"
)

// EventPublisher announces login events to audit consumers. Publishing is
// best effort: callers log failures and carry on.
type EventPublisher interface {
	PublishLogin(ctx context.Context, ev queue.LoginEvent) error
}

// NoopPublisher drops every event. It is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishLogin(context.Context, queue.LoginEvent) error { return nil }

// AMQPPublisher publishes login events to a durable RabbitMQ queue, dialing
// once per message.
type AMQPPublisher struct {
	URL    string
	Queue  string
	Logger *zap.Logger
}

// NewAMQPPublisher returns a publisher for url, or a NoopPublisher when url
// is empty.
func NewAMQPPublisher(url, queueName string, logger *zap.Logger) EventPublisher {
	if url == "" {
		return NoopPublisher{}
	}
	if queueName == "" {
		queueName = queue.LoginQueue
	}
	if logger == nil {
		logger = zap.L()
	}
	return &AMQPPublisher{URL: url, Queue: queueName, Logger: logger}
}

// PublishLogin declares the queue (idempotent) and sends ev as a persistent
// JSON message through the default exchange.
func (p *AMQPPublisher) PublishLogin(ctx context.Context, ev queue.LoginEvent) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("amqp queue declare: %w", err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal login event: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.Queue, false, false, pub); err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	p.Logger.Debug("login event published", zap.String("user_id", ev.UserID), zap.String("queue", p.Queue))
	return nil
}
