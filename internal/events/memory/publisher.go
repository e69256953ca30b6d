package memory

import (
	"context"
	"sync"

	"go.uber.org/zap"

	interfaces "github.com/sheikh-saqib/checking-account-ledger/internal/interfaces"
)

const DefaultHistory = 1000

var _ interfaces.EventPublisher = (*Publisher)(nil)

// Publisher keeps the most recent events of each topic in memory.
type Publisher struct {
	mu      sync.Mutex
	topics  map[string][]any
	history int
	logger  *zap.Logger
}

type PublisherOption func(*Publisher)

// WithHistory caps how many events are kept per topic.
func WithHistory(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.history = n
		}
	}
}

func WithPublisherLogger(logger *zap.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

func NewPublisher(opts ...PublisherOption) *Publisher {
	p := &Publisher{
		topics:  make(map[string][]any),
		history: DefaultHistory,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Publish(ctx context.Context, topic string, event any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	events := append(p.topics[topic], event)
	if len(events) > p.history {
		events = events[len(events)-p.history:]
	}
	p.topics[topic] = events
	p.mu.Unlock()

	p.logger.Info("event published", zap.String("topic", topic), zap.Any("event", event))
	return nil
}

// Events returns a snapshot of what was published to topic, oldest first.
func (p *Publisher) Events(topic string) []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]any, len(p.topics[topic]))
	copy(out, p.topics[topic])
	return out
}
