package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/checking-account-ledger/internal/interfaces"
)

const (
	DefaultMaxDeliveries   = 5
	DefaultRedeliveryDelay = 200 * time.Millisecond
)

var _ interfaces.Consumer = (*Consumer)(nil)

// ConsumerConfig describes one member of the apply-request consumer group.
type ConsumerConfig struct {
	Brokers         []string
	Topic           string
	GroupID         string
	DeadLetterTopic string
	MaxDeliveries   int
	RedeliveryDelay time.Duration
}

// Consumer reads apply requests from a consumer group. An offset is only
// committed after the handler succeeded or the message was dead-lettered,
// so a crash redelivers it to another member.
type Consumer struct {
	reader     *kafka.Reader
	deadLetter *kafka.Writer
	cfg        ConsumerConfig
	logger     *zap.Logger
}

func NewConsumer(cfg ConsumerConfig, logger *zap.Logger) *Consumer {
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = DefaultMaxDeliveries
	}
	if cfg.RedeliveryDelay <= 0 {
		cfg.RedeliveryDelay = DefaultRedeliveryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    cfg.Topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		deadLetter: newWriter(cfg.Brokers),
		cfg:        cfg,
		logger:     logger.With(zap.String("topic", cfg.Topic), zap.String("group", cfg.GroupID)),
	}
}

// Consume blocks until ctx is done or the reader fails.
func (c *Consumer) Consume(ctx context.Context, h interfaces.DeliveryHandler) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch from %s: %w", c.cfg.Topic, err)
		}

		if err := c.process(ctx, h, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", m.Offset, err)
		}
	}
}

// process returns nil once m may be committed.
func (c *Consumer) process(ctx context.Context, h interfaces.DeliveryHandler, m kafka.Message) error {
	log := c.logger.With(zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset))

	req, err := decodeRequest(m)
	if err != nil {
		log.Error("undecodable message, dead-lettering", zap.Error(err))
		return c.writeDeadLetter(ctx, m, 1, err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RedeliveryDelay

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, h.Handle(ctx, interfaces.Delivery{Request: req, Attempt: attempt})
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.cfg.MaxDeliveries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("delivery failed, redelivering",
				zap.String("transaction_id", req.TransactionID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", next),
				zap.Error(err),
			)
		}),
	)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	log.Error("delivery failed permanently, dead-lettering",
		zap.String("transaction_id", req.TransactionID),
		zap.Int("attempts", attempt),
		zap.Error(err),
	)
	if dlErr := c.writeDeadLetter(ctx, m, attempt, err); dlErr != nil {
		return dlErr
	}
	h.DeadLetter(ctx, interfaces.Delivery{Request: req, Attempt: attempt}, err)
	return nil
}

func (c *Consumer) writeDeadLetter(ctx context.Context, m kafka.Message, attempts int, cause error) error {
	if c.cfg.DeadLetterTopic == "" {
		return nil
	}
	if err := c.deadLetter.WriteMessages(ctx, deadLetterMessage(c.cfg.DeadLetterTopic, m, attempts, cause)); err != nil {
		return fmt.Errorf("write dead letter for offset %d: %w", m.Offset, err)
	}
	return nil
}

func (c *Consumer) Close() error {
	return errors.Join(c.reader.Close(), c.deadLetter.Close())
}
