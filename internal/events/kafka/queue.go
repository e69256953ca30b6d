package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	interfaces "github.com/sheikh-saqib/checking-account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
)

var _ interfaces.Queue = (*Queue)(nil)

// Queue sends apply requests to a Kafka topic.
type Queue struct {
	writer *kafka.Writer
	topic  string
}

func NewQueue(brokers []string, topic string) *Queue {
	return &Queue{
		writer: newWriter(brokers),
		topic:  topic,
	}
}

func (q *Queue) Send(ctx context.Context, req models.ApplyRequest) error {
	msg, err := encodeRequest(q.topic, req)
	if err != nil {
		return err
	}
	if err := q.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", req.TransactionID, q.topic, err)
	}
	return nil
}

func (q *Queue) Close() error {
	return q.writer.Close()
}
