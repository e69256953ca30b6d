// Package worker applies queued transactions and tells the caller how each one ended.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/checking-account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
	"github.com/sheikh-saqib/checking-account-ledger/internal/models/events"
)

const (
	DefaultTopic        = "client-response"
	DefaultPublishTries = 3
)

// Applier is the ledger operation the worker drives.
type Applier interface {
	Apply(ctx context.Context, req models.ApplyRequest) (models.ApplyOutcome, error)
}

var _ interfaces.DeliveryHandler = (*Worker)(nil)

type Worker struct {
	applier      Applier
	publisher    interfaces.EventPublisher
	topic        string
	publishTries uint
	logger       *zap.Logger
	now          func() time.Time
}

type Option func(*Worker)

func WithLogger(logger *zap.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

// WithTopic sets the topic callbacks are published to.
func WithTopic(topic string) Option {
	return func(w *Worker) {
		if topic != "" {
			w.topic = topic
		}
	}
}

func WithPublishTries(n uint) Option {
	return func(w *Worker) {
		if n > 0 {
			w.publishTries = n
		}
	}
}

func New(applier Applier, publisher interfaces.EventPublisher, opts ...Option) *Worker {
	w := &Worker{
		applier:      applier,
		publisher:    publisher,
		topic:        DefaultTopic,
		publishTries: DefaultPublishTries,
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Handle applies one delivery. Every outcome, rejected or not, produces one
// callback. Transient failures produce none and are returned so the queue
// redelivers.
func (w *Worker) Handle(ctx context.Context, d interfaces.Delivery) error {
	req := d.Request
	outcome, err := w.applier.Apply(ctx, req)
	if err != nil {
		if errors.Is(err, models.ErrInvalidApplyRequest) {
			w.logger.Warn("dropping invalid apply request",
				zap.String("transaction_id", req.TransactionID),
				zap.Error(err),
			)
			return w.publish(ctx, events.NewFailureCallback(req, err, w.now().UTC()))
		}
		w.logger.Warn("apply failed",
			zap.String("transaction_id", req.TransactionID),
			zap.Int("attempt", d.Attempt),
			zap.Error(err),
		)
		return err
	}

	return w.publish(ctx, events.NewAccountCallback(req, outcome, w.now().UTC()))
}

// DeadLetter tells the caller that its transaction will not be applied.
func (w *Worker) DeadLetter(ctx context.Context, d interfaces.Delivery, cause error) {
	callback := events.NewFailureCallback(d.Request, cause, w.now().UTC())
	if err := w.publish(ctx, callback); err != nil {
		w.logger.Error("failed to publish dead-letter callback",
			zap.String("transaction_id", d.Request.TransactionID),
			zap.Error(err),
		)
	}
}

func (w *Worker) publish(ctx context.Context, callback events.AccountCallback) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, w.publisher.Publish(ctx, w.topic, callback)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(w.publishTries))
	if err != nil {
		return fmt.Errorf("publish callback for %s: %w", callback.TransactionID, err)
	}

	w.logger.Info("callback published",
		zap.String("transaction_id", callback.TransactionID),
		zap.String("status", string(callback.Status)),
		zap.Bool("successful", callback.IsSuccessful),
	)
	return nil
}
