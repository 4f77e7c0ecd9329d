// Package kafka wraps segmentio/kafka-go for the two event streams the
// search tier uses: analytics events and catalog reload requests. Values
// travel as JSON.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/resilience"
)

// MessageHandler processes one message. A non-nil error is retried a few
// times before the message is logged and committed anyway.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

var (
	handlerRetry = resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}
	fetchBackoff = resilience.RetryConfig{InitialDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second}
)

// Consumer reads one topic as part of a consumer group and commits each
// message after its handler returns.
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	logger  *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     time.Second,
			StartOffset: kafka.LastOffset,
		}),
		handler: handler,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", cfg.ConsumerGroup),
	}
}

// Start consumes until ctx is cancelled and closes the reader on the way
// out. Broker errors back off exponentially rather than ending the loop.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("closing reader", "error", err)
		}
	}()

	failures := 0
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if ctx.Err() != nil {
			c.logger.Info("consumer stopped")
			return nil
		}
		if err != nil {
			failures++
			wait := fetchBackoff.Delay(failures)
			c.logger.Error("fetch failed", "error", err, "consecutive_failures", failures, "retry_in", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
			}
			continue
		}
		failures = 0
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
	log.Debug("message received", "key", string(msg.Key), "bytes", len(msg.Value))

	err := resilience.Retry(ctx, "kafka-handler", handlerRetry, func() error {
		return c.handler(ctx, msg.Key, msg.Value)
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("handler failed, skipping message", "error", err)
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		log.Error("commit failed", "error", err)
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return v, fmt.Errorf("decoding kafka message: %w", err)
	}
	return v, nil
}

// JSONHandler adapts a typed callback into a MessageHandler. Undecodable
// messages are logged and acknowledged so a poison message cannot stall
// the partition.
func JSONHandler[T any](logger *slog.Logger, fn func(ctx context.Context, msg T) error) MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		msg, err := DecodeJSON[T](value)
		if err != nil {
			logger.Warn("skipping undecodable message", "key", string(key), "error", err)
			return nil
		}
		return fn(ctx, msg)
	}
}

// Ping succeeds as soon as one broker accepts a connection.
func Ping(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("kafka unreachable: no brokers configured")
	}
	var lastErr error
	for _, broker := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn.Close()
		}
		lastErr = err
	}
	return fmt.Errorf("kafka unreachable: %w", lastErr)
}
