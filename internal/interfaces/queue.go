package interfaces

import (
	"context"

	"github.com/sheikh-saqib/checking-account-ledger/internal/models"
)

// Queue accepts apply requests for asynchronous processing.
type Queue interface {
	Send(ctx context.Context, req models.ApplyRequest) error
}

// Delivery is one at-least-once delivery of an apply request.
// Attempt starts at 1 and grows with every redelivery of the same message.
type Delivery struct {
	Request models.ApplyRequest
	Attempt int
}

// DeliveryHandler processes deliveries pulled from a Consumer.
// Returning an error asks the consumer to redeliver the message later.
// DeadLetter is called once when the consumer gives up on a message.
type DeliveryHandler interface {
	Handle(ctx context.Context, d Delivery) error
	DeadLetter(ctx context.Context, d Delivery, cause error)
}

// Consumer pulls deliveries and feeds them to a handler until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, h DeliveryHandler) error
}
