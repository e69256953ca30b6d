package interfaces

import (
	"context"
	"time"
)

// IdempotencyCache is the front-door dedupe for inbound requests.
type IdempotencyCache interface {
	// SetIfAbsent atomically claims key for ttl. claimed is false when the key already exists.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (claimed bool, err error)
	// Release drops a claim so that a retry of the same request is not rejected.
	Release(ctx context.Context, key string) error
}
