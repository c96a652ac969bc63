package compose

import (
	"context"
	"sync"
	"time"

	"github.com/acorndb/acorndb/internal/nut"
	"github.com/acorndb/acorndb/internal/root"
	"github.com/acorndb/acorndb/internal/trunk"
)

// cachedEntry pairs a cached Nut with the time it entered the cache, the
// basis for both TTL expiry and oldest-first eviction.
type cachedEntry[T any] struct {
	n        nut.Nut[T]
	cachedAt time.Time
}

// Cached wraps a backing Trunk with a bounded, TTL'd read/write cache.
// Every Stash writes through to the backing trunk before the cache is
// updated, so a crash between the two never leaves the cache ahead of
// durable storage.
type Cached[T any] struct {
	backing trunk.Trunk[T]

	ttl        time.Duration
	maxEntries int

	mu      sync.Mutex
	entries map[string]cachedEntry[T]
}

// NewCached wraps backing with a cache holding at most maxEntries live
// entries, each expiring ttl after it was last written or fetched.
// maxEntries<=0 means unbounded; ttl<=0 means entries never expire on
// their own (only eviction reclaims space).
func NewCached[T any](backing trunk.Trunk[T], ttl time.Duration, maxEntries int) *Cached[T] {
	return &Cached[T]{
		backing:    backing,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]cachedEntry[T]),
	}
}

func (c *Cached[T]) expired(e cachedEntry[T], now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.cachedAt) > c.ttl
}

// evictOldestLocked drops the single oldest entry when the cache is at
// capacity. Called with mu held.
func (c *Cached[T]) evictOldestLocked() {
	if c.maxEntries <= 0 || len(c.entries) < c.maxEntries {
		return
	}
	var oldestID string
	var oldestAt time.Time
	first := true
	for id, e := range c.entries {
		if first || e.cachedAt.Before(oldestAt) {
			oldestID, oldestAt, first = id, e.cachedAt, false
		}
	}
	if !first {
		delete(c.entries, oldestID)
	}
}

func (c *Cached[T]) Stash(ctx context.Context, n nut.Nut[T]) error {
	if err := c.backing.Stash(ctx, n); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[n.ID]; !exists {
		c.evictOldestLocked()
	}
	c.entries[n.ID] = cachedEntry[T]{n: n, cachedAt: time.Now().UTC()}
	return nil
}

func (c *Cached[T]) Crack(ctx context.Context, id string) (nut.Nut[T], bool, error) {
	c.mu.Lock()
	e, ok := c.entries[id]
	now := time.Now().UTC()
	if ok && !c.expired(e, now) {
		c.mu.Unlock()
		return e.n, true, nil
	}
	if ok {
		delete(c.entries, id)
	}
	c.mu.Unlock()

	n, ok, err := c.backing.Crack(ctx, id)
	if err != nil || !ok {
		return nut.Nut[T]{}, ok, err
	}

	c.mu.Lock()
	if _, exists := c.entries[id]; !exists {
		c.evictOldestLocked()
	}
	c.entries[id] = cachedEntry[T]{n: n, cachedAt: now}
	c.mu.Unlock()
	return n, true, nil
}

func (c *Cached[T]) Toss(ctx context.Context, id string) error {
	if err := c.backing.Toss(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
	return nil
}

func (c *Cached[T]) CrackAll(ctx context.Context) ([]nut.Nut[T], error) {
	return c.backing.CrackAll(ctx)
}

func (c *Cached[T]) GetHistory(ctx context.Context, id string) ([]nut.Nut[T], error) {
	return c.backing.GetHistory(ctx, id)
}

func (c *Cached[T]) ExportChanges(ctx context.Context) ([]nut.Nut[T], error) {
	return c.backing.ExportChanges(ctx)
}

func (c *Cached[T]) ImportChanges(ctx context.Context, changes []nut.Nut[T]) error {
	if err := c.backing.ImportChanges(ctx, changes); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range changes {
		if _, exists := c.entries[n.ID]; !exists {
			c.evictOldestLocked()
		}
		c.entries[n.ID] = cachedEntry[T]{n: n, cachedAt: time.Now().UTC()}
	}
	return nil
}

func (c *Cached[T]) Capabilities() trunk.Capabilities {
	caps := c.backing.Capabilities()
	caps.TrunkType = trunk.TypeComposed
	return caps
}

func (c *Cached[T]) Roots() []root.Root     { return c.backing.Roots() }
func (c *Cached[T]) AddRoot(r root.Root)    { c.backing.AddRoot(r) }
func (c *Cached[T]) RemoveRoot(name string) { c.backing.RemoveRoot(name) }
func (c *Cached[T]) Dispose() error         { return c.backing.Dispose() }

// Len reports how many entries the cache currently holds, live or
// expired-but-not-yet-evicted.
func (c *Cached[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
