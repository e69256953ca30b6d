// Package memory is an in-process queue and notification channel. It gives
// the same at-least-once delivery contract as the Kafka adapters, which makes
// it suitable for tests and single-process deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/checking-account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
)

const (
	DefaultMaxDeliveries   = 5
	DefaultBufferSize      = 1024
	DefaultRedeliveryDelay = 50 * time.Millisecond
)

var (
	_ interfaces.Queue    = (*Queue)(nil)
	_ interfaces.Consumer = (*Queue)(nil)
)

type message struct {
	req     models.ApplyRequest
	attempt int
}

// Queue delivers every sent request at least once. A delivery whose handler
// fails is sent again after a delay until MaxDeliveries is reached, then it is
// dead-lettered.
type Queue struct {
	messages        chan message
	maxDeliveries   int
	redeliveryDelay time.Duration
	concurrency     int
	logger          *zap.Logger
}

type Option func(*Queue)

func WithMaxDeliveries(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxDeliveries = n
		}
	}
}

func WithRedeliveryDelay(d time.Duration) Option {
	return func(q *Queue) { q.redeliveryDelay = d }
}

// WithConcurrency sets how many deliveries Consume handles in parallel.
func WithConcurrency(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.concurrency = n
		}
	}
}

func WithBufferSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.messages = make(chan message, n)
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		messages:        make(chan message, DefaultBufferSize),
		maxDeliveries:   DefaultMaxDeliveries,
		redeliveryDelay: DefaultRedeliveryDelay,
		concurrency:     1,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Send blocks while the buffer is full.
func (q *Queue) Send(ctx context.Context, req models.ApplyRequest) error {
	select {
	case q.messages <- message{req: req, attempt: 1}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume feeds deliveries to h until ctx is done.
func (q *Queue) Consume(ctx context.Context, h interfaces.DeliveryHandler) error {
	var wg sync.WaitGroup
	for i := 0; i < q.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.run(ctx, h, &wg)
		}()
	}
	wg.Wait()
	return nil
}

func (q *Queue) run(ctx context.Context, h interfaces.DeliveryHandler, wg *sync.WaitGroup) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-q.messages:
			q.deliver(ctx, h, msg, wg)
		}
	}
}

func (q *Queue) deliver(ctx context.Context, h interfaces.DeliveryHandler, msg message, wg *sync.WaitGroup) {
	d := interfaces.Delivery{Request: msg.req, Attempt: msg.attempt}
	err := h.Handle(ctx, d)
	if err == nil {
		return
	}

	log := q.logger.With(
		zap.String("transaction_id", msg.req.TransactionID),
		zap.Int("attempt", msg.attempt),
		zap.Error(err),
	)

	if msg.attempt >= q.maxDeliveries {
		log.Error("delivery failed permanently, dead-lettering")
		h.DeadLetter(ctx, d, err)
		return
	}

	log.Warn("delivery failed, scheduling redelivery", zap.Duration("delay", q.redeliveryDelay))
	msg.attempt++

	wg.Add(1)
	go func() {
		defer wg.Done()
		timer := time.NewTimer(q.redeliveryDelay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		select {
		case q.messages <- msg:
		case <-ctx.Done():
		}
	}()
}
