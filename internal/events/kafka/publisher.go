package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	interfaces "github.com/sheikh-saqib/checking-account-ledger/internal/interfaces"
)

var _ interfaces.EventPublisher = (*Publisher)(nil)

// Publisher writes JSON events to the topic named on each call.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: newWriter(brokers),
	}
}

func (p *Publisher) Publish(ctx context.Context, topic string, event any) error {
	msg, err := encodeEvent(topic, event)
	if err != nil {
		return fmt.Errorf("encode event for %s: %w", topic, err)
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// newWriter leaves Topic unset so every message carries its own.
func newWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}
