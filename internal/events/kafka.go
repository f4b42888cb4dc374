package events

import (
	"context"
	"log/slog"
	"time"

	"shutter/internal/middleware"

	"github.com/segmentio/kafka-go"
)

const eventTypeHeader = "event-type"

// KafkaPublisher writes events to a Kafka topic keyed by post ID. Writes are
// batched in the background; delivery results arrive through completed.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a producer for topic. The writer connects lazily
// on the first write.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion:   completed,
	}}
}

// Publish queues e. It only fails when the event cannot be encoded or the
// writer is closed.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := encode(e)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Key()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: eventTypeHeader, Value: []byte(e.Type)},
		},
	})
	if err != nil {
		record("kafka", e.Type, err)
	}
	return err
}

// Close flushes queued batches.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func completed(messages []kafka.Message, err error) {
	for _, m := range messages {
		record("kafka", messageType(m), err)
	}
	if err != nil {
		middleware.Logger.Warn("kafka delivery failed",
			slog.Int("messages", len(messages)),
			slog.String("error", err.Error()),
		)
	}
}

func messageType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == eventTypeHeader {
			return string(h.Value)
		}
	}
	return "unknown"
}
