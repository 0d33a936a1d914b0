package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultLogPath is where the consumer appends login audit lines.
var DefaultLogPath = filepath.Join("logs", "login.log")

// Consumer reads login events from a durable queue and appends one line per
// event to a log file. Malformed messages are rejected without requeue.
type Consumer struct {
	URL     string
	Queue   string
	LogPath string
	Logger  *zap.Logger
}

func NewConsumer(url, queueName string, logger *zap.Logger) *Consumer {
	if queueName == "" {
		queueName = LoginQueue
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Consumer{URL: url, Queue: queueName, LogPath: DefaultLogPath, Logger: logger.Named("login-consumer")}
}

// Run consumes until ctx is cancelled, reconnecting with a capped
// exponential delay whenever the broker connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	b := reconnectBackOff()
	for {
		conn, err := amqp.Dial(c.URL)
		if err == nil {
			b.Reset()
			err = c.consume(ctx, conn)
			_ = conn.Close()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delay := b.NextBackOff()
		c.Logger.Warn("broker unavailable, retrying", zap.Duration("in", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// reconnectBackOff never gives up; Run stops only when its context ends.
func reconnectBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	return b
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Logger.Warn("set qos", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.Logger.Info("consuming", zap.String("queue", c.Queue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(d.Body); err != nil {
				c.Logger.Error("handle message", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one message body and appends it to the log file.
func (c *Consumer) Handle(body []byte) error {
	var ev LoginEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.UserID == "" {
		return errors.New("login event without user_id")
	}
	if err := os.MkdirAll(filepath.Dir(c.LogPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(c.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as a single newline-terminated audit line.
func FormatLine(ev LoginEvent) string {
	return fmt.Sprintf("[%s] Login | user_id=%s | email=%q | method=%s | device=%s | user_agent=%q\n",
		ev.LoggedInAt, ev.UserID, ev.Email, ev.Method, ev.DeviceType, ev.UserAgent)
}
