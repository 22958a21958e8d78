package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/config"
)

// Event is one message to publish. Key picks the partition, Value is
// encoded as JSON and Type travels in the "event-type" header.
type Event struct {
	Key   string
	Type  string
	Value any
}

// Publisher is implemented by Producer. Services depend on it so tests can
// substitute an in-memory recorder.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	PublishBatch(ctx context.Context, events []Event) error
}

// Producer publishes JSON events to one topic, waiting for all in-sync
// replicas.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchSize:              100,
			BatchTimeout:           10 * time.Millisecond,
			MaxAttempts:            3,
			RequiredAcks:           kafka.RequireAll,
			Compression:            kafka.Zstd,
			AllowAutoTopicCreation: true,
		},
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

func toMessage(event Event) (kafka.Message, error) {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encoding %s event: %w", event.Type, err)
	}
	msg := kafka.Message{Key: []byte(event.Key), Value: value, Time: time.Now()}
	if event.Type != "" {
		msg.Headers = []kafka.Header{{Key: typeHeader, Value: []byte(event.Type)}}
	}
	return msg, nil
}

func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch encodes every event before writing any, so an unencodable
// event fails the whole batch without a partial write.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(events))
	size := 0
	for i, event := range events {
		msg, err := toMessage(event)
		if err != nil {
			return err
		}
		msgs[i] = msg
		size += len(msg.Value)
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.logger.Error("publish failed", "count", len(msgs), "type", events[0].Type, "error", err)
		return fmt.Errorf("publishing %d messages to %s: %w", len(msgs), p.writer.Topic, err)
	}
	p.logger.Debug("published", "count", len(msgs), "bytes", size)
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
