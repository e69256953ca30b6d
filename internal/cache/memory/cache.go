package memory

import (
	"context"
	"sync"
	"time"

	interfaces "github.com/sheikh-saqib/checking-account-ledger/internal/interfaces"
)

const DefaultSweepInterval = time.Minute

type entry struct {
	value     string
	expiresAt time.Time
}

// Cache is an in-process IdempotencyCache. Expired claims are dropped when
// the same key is claimed again and by a periodic sweep run from SetIfAbsent.
type Cache struct {
	mu            sync.Mutex
	entries       map[string]entry
	now           func() time.Time
	sweepInterval time.Duration
	nextSweep     time.Time
}

func NewCache() *Cache {
	return &Cache{
		entries:       make(map[string]entry),
		now:           time.Now,
		sweepInterval: DefaultSweepInterval,
	}
}

func (c *Cache) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweep(now)

	if e, ok := c.entries[key]; ok && now.Before(e.expiresAt) {
		return false, nil
	}

	c.entries[key] = entry{value: value, expiresAt: now.Add(ttl)}
	return true, nil
}

// sweep removes expired entries at most once per sweepInterval. Callers hold mu.
func (c *Cache) sweep(now time.Time) {
	if now.Before(c.nextSweep) {
		return
	}
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}
	c.nextSweep = now.Add(c.sweepInterval)
}

func (c *Cache) Release(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

func (c *Cache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

var _ interfaces.IdempotencyCache = (*Cache)(nil)
