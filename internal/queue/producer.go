package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Producer is a thin synchronous wrapper around a kafka writer. It is
// used for the dead-letter topic, where the publish must be durable
// before the source offset is committed.
type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (p *Producer) Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	})
}

// PublishDeadLetter forwards a failed message with headers describing
// where it came from and why it failed.
func (p *Producer) PublishDeadLetter(ctx context.Context, m kafka.Message, cause error) error {
	headers := []kafka.Header{
		{Key: "x-dead-letter-id", Value: []byte(uuid.NewString())},
		{Key: "x-original-topic", Value: []byte(m.Topic)},
		{Key: "x-original-partition", Value: []byte(fmt.Sprintf("%d", m.Partition))},
		{Key: "x-original-offset", Value: []byte(fmt.Sprintf("%d", m.Offset))},
		{Key: "x-error", Value: []byte(cause.Error())},
	}
	if err := p.Publish(ctx, m.Key, m.Value, headers...); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.w.Close()
}
