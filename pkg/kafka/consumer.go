// Package kafka wraps segmentio/kafka-go with JSON event producers and a
// consumer loop that dispatches to a handler and commits what it handled.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/resilience"
)

const typeHeader = "event-type"

// Message is what a handler receives.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
	Type  string
	Time  time.Time
}

// MessageHandler processes one message. Errors are retried with backoff;
// wrap with resilience.Permanent for input that can never succeed.
type MessageHandler func(ctx context.Context, msg Message) error

type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads one topic as part of a consumer group.
type Consumer struct {
	reader  fetcher
	handler MessageHandler
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

// NewConsumer creates a Consumer for topic. An empty group falls back to
// cfg.ConsumerGroup. Searchers pass a per-replica group so every replica
// sees index-complete events.
func NewConsumer(cfg config.KafkaConfig, topic, group string, handler MessageHandler) *Consumer {
	if group == "" {
		group = cfg.ConsumerGroup
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     group,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(r, handler, slog.Default().With("component", "kafka-consumer", "topic", topic, "group", group))
}

func newConsumer(r fetcher, handler MessageHandler, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		retry:   resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second},
		logger:  logger,
	}
}

// Start fetches and dispatches messages until ctx is cancelled. A message
// whose handler keeps failing is logged and committed so one bad event
// cannot stall the partition.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	failures := 0
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return c.reader.Close()
			}
			failures++
			delay := c.retry.Backoff(failures)
			c.logger.Error("fetch failed", "error", err, "consecutive_failures", failures, "retry_in", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			continue
		}
		failures = 0

		if err := c.dispatch(ctx, msg); err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Error("dropping message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"type", headerValue(msg.Headers, typeHeader),
				"error", err,
			)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message) error {
	m := Message{
		Topic: msg.Topic,
		Key:   msg.Key,
		Value: msg.Value,
		Type:  headerValue(msg.Headers, typeHeader),
		Time:  msg.Time,
	}
	c.logger.Debug("message received", "partition", msg.Partition, "offset", msg.Offset, "type", m.Type, "bytes", len(msg.Value))
	return resilience.Retry(ctx, "handle "+m.Type, c.retry, func() error {
		return c.handler(ctx, m)
	})
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// DecodeJSON unmarshals a message value into T. Decode failures are
// permanent: redelivery would read the same bytes.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, resilience.Permanent(fmt.Errorf("decoding kafka message: %w", err))
	}
	return result, nil
}
