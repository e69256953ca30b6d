package interfaces

import "context"

// EventPublisher is a fire-and-forget, one-way channel towards clients.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event any) error
}
