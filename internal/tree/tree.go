// Package tree implements AcornDB's Tree[T]: the typed, in-memory-cached
// collection of Nuts that sits in front of a Trunk. Tree owns the cache
// lock, the index map, the conflict judge, and the replication leaf
// broker; it is the one type application code actually calls Stash/
// Crack/Toss on.
package tree

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/acorndb/acorndb/internal/index"
	"github.com/acorndb/acorndb/internal/judge"
	"github.com/acorndb/acorndb/internal/leaf"
	"github.com/acorndb/acorndb/internal/nut"
	"github.com/acorndb/acorndb/internal/trunk"
	"github.com/acorndb/acorndb/pkg/acornerr"
	"github.com/acorndb/acorndb/pkg/log"
	"github.com/acorndb/acorndb/pkg/metrics"
)

// EventType distinguishes the kind of mutation a subscriber is being
// notified about.
type EventType string

const (
	EventStash    EventType = "stash"
	EventToss     EventType = "toss"
	EventSquabble EventType = "squabble"
)

// Event is delivered to every subscriber after a Stash/Toss/Squabble
// commits successfully. Subscribers never see a mutation that failed
// before commit.
type Event[T any] struct {
	Type EventType
	ID   string
	Nut  nut.Nut[T]
}

// Subscriber receives Events synchronously, in commit order, on the
// goroutine that performed the mutation.
type Subscriber[T any] func(Event[T])

// Tree is a typed collection of Nut[T] backed by a Trunk. The cache
// lock and the index lock are distinct so index maintenance never
// takes the cache lock from inside an index critical section.
type Tree[T any] struct {
	treeID string
	trunk  trunk.Trunk[T]
	judge  judge.Judge[T]

	cacheMu  sync.RWMutex
	cache    map[string]nut.Nut[T]
	strategy CacheStrategy

	identityIndex *index.Memory[string]

	indexMu sync.RWMutex
	indexes map[string]indexBinding[T]

	subMu     sync.Mutex
	subs      map[int]Subscriber[T]
	nextSubID int

	sinkMu sync.RWMutex
	sinks  map[string]sinkHandle
	dedup  *leaf.DedupCache
	leafNo atomic.Uint64

	syncMu   sync.Mutex
	lastSync time.Time

	disposeOnce sync.Once
	logger      zerolog.Logger
}

// sinkHandle pairs a registered leaf.Sink with the remote tree id it
// represents, so re-propagation can exclude the sink a received leaf
// came from without the sink itself needing to self-identify.
type sinkHandle struct {
	remoteTreeID string
	sink         leaf.Sink
}

// Option configures a Tree at construction.
type Option[T any] func(*Tree[T])

// WithJudge overrides the default timestamp judge used by Squabble.
func WithJudge[T any](j judge.Judge[T]) Option[T] {
	return func(t *Tree[T]) { t.judge = j }
}

// WithCacheStrategy overrides the default (unbounded, never-evicting)
// cache strategy.
func WithCacheStrategy[T any](s CacheStrategy) Option[T] {
	return func(t *Tree[T]) { t.strategy = s }
}

// New builds a Tree over back, assigning it a fresh tree_id. The
// identity index (primary key -> id) is registered automatically.
func New[T any](back trunk.Trunk[T], opts ...Option[T]) *Tree[T] {
	t := &Tree[T]{
		treeID:        uuid.NewString(),
		trunk:         back,
		judge:         judge.Timestamp[T],
		cache:         make(map[string]nut.Nut[T]),
		strategy:      NoopStrategy{},
		identityIndex: index.NewMemory[string]("identity", true),
		indexes:       make(map[string]indexBinding[T]),
		subs:          make(map[int]Subscriber[T]),
		sinks:         make(map[string]sinkHandle),
		dedup:         leaf.NewDedupCache(leaf.DefaultDedupCapacity),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = log.WithComponent("tree").With().Str("tree_id", t.treeID).Logger()
	return t
}

// TreeID returns the stable identifier assigned at New, used as a
// Leaf's origin/visited marker during replication.
func (t *Tree[T]) TreeID() string { return t.treeID }

// observeTrunkOp records one trunk call's outcome and latency; the
// Tree is the call site that knows both the operation name and whether
// it succeeded.
func observeTrunkOp(op string, timer *metrics.Timer, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.TrunkOpsTotal.WithLabelValues(op, status).Inc()
	timer.ObserveDurationVec(metrics.TrunkOpDuration, op)
}

// Stash extracts an id from payload (via nut.Identifiable or a
// reflected ID/Id/Key field) and stores it. Use StashID to supply the
// id explicitly.
func (t *Tree[T]) Stash(ctx context.Context, payload T) (nut.Nut[T], error) {
	id, err := nut.ExtractID(payload)
	if err != nil {
		return nut.Nut[T]{}, err
	}
	return t.StashID(ctx, id, payload)
}

// StashID stores payload under id, superseding any existing Nut for
// that id. It updates the cache, writes through the trunk, maintains
// indexes, fires the Stash event to subscribers, and emits a
// replication leaf to every entangled sink.
func (t *Tree[T]) StashID(ctx context.Context, id string, payload T) (nut.Nut[T], error) {
	return t.stash(ctx, id, payload, nil)
}

// StashTTL stores payload under id with an expiry. Once expiresAt
// passes, Crack reports the document absent and CrackAll omits it.
func (t *Tree[T]) StashTTL(ctx context.Context, id string, payload T, expiresAt time.Time) (nut.Nut[T], error) {
	return t.stash(ctx, id, payload, &expiresAt)
}

func (t *Tree[T]) stash(ctx context.Context, id string, payload T, expiresAt *time.Time) (nut.Nut[T], error) {
	if id == "" {
		return nut.Nut[T]{}, acornerr.ErrIDInvalid
	}

	t.cacheMu.Lock()

	// Secondary indexes are updated before the cache/trunk write is
	// committed: a UniqueConstraintViolation must prevent the stash
	// outright, not require unwinding it afterward.
	if err := t.updateIndexes(id, payload); err != nil {
		t.cacheMu.Unlock()
		return nut.Nut[T]{}, err
	}

	var n nut.Nut[T]
	if prev, ok := t.cache[id]; ok {
		n = nut.Supersede(prev, payload)
	} else {
		n, _ = nut.New(id, payload)
	}
	n.ExpiresAt = expiresAt
	n.OriginNodeID = t.treeID
	n.ChangeID = uuid.NewString()

	timer := metrics.NewTimer()
	err := t.trunk.Stash(ctx, n)
	observeTrunkOp("stash", timer, err)
	if err != nil {
		t.removeFromIndexes(id)
		t.cacheMu.Unlock()
		return nut.Nut[T]{}, fmt.Errorf("acorndb: stash %q: %w", id, err)
	}
	t.cache[id] = n
	t.strategy.Touch(id)
	t.cacheMu.Unlock()

	if err := t.identityIndex.Put(id, id); err != nil {
		t.logger.Warn().Err(err).Str("id", id).Msg("identity index update failed")
	}

	t.publish(Event[T]{Type: EventStash, ID: id, Nut: n})
	t.propagateLocal(leaf.ChangeUpsert, n)
	return n, nil
}

// Crack returns the live Nut for id, preferring the cache and falling
// back to the trunk on a miss. An expired Nut (TTL passed) is reported
// absent.
func (t *Tree[T]) Crack(ctx context.Context, id string) (nut.Nut[T], bool, error) {
	t.cacheMu.RLock()
	n, ok := t.cache[id]
	t.cacheMu.RUnlock()

	if ok {
		t.strategy.Touch(id)
		if n.Expired(time.Now().UTC()) {
			return nut.Nut[T]{}, false, nil
		}
		return n, true, nil
	}

	timer := metrics.NewTimer()
	n, ok, err := t.trunk.Crack(ctx, id)
	observeTrunkOp("crack", timer, err)
	if err != nil {
		// A blob that no longer decodes is treated as an absent
		// document, never a hard read failure.
		if errors.Is(err, acornerr.ErrDeserialization) {
			t.logger.Warn().Err(err).Str("id", id).Msg("treating undecodable document as absent")
			return nut.Nut[T]{}, false, nil
		}
		return nut.Nut[T]{}, false, err
	}
	if !ok {
		return nut.Nut[T]{}, false, nil
	}

	t.cacheMu.Lock()
	t.cache[id] = n
	t.cacheMu.Unlock()
	t.evictIfNeeded(id)

	if n.Expired(time.Now().UTC()) {
		return nut.Nut[T]{}, false, nil
	}
	return n, true, nil
}

// CrackAll returns every live (non-expired) Nut the trunk currently
// holds.
func (t *Tree[T]) CrackAll(ctx context.Context) ([]nut.Nut[T], error) {
	timer := metrics.NewTimer()
	all, err := t.trunk.CrackAll(ctx)
	observeTrunkOp("crack_all", timer, err)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]nut.Nut[T], 0, len(all))
	for _, n := range all {
		if !n.Expired(now) {
			out = append(out, n)
		}
	}
	return out, nil
}

// Toss removes id from the cache and the trunk. When propagate is true
// (the default for a locally-initiated toss) a Toss leaf is emitted to
// every entangled sink; a toss applied from an incoming leaf passes
// propagate=false so it is not re-emitted as a fresh origin event.
func (t *Tree[T]) Toss(ctx context.Context, id string, propagate bool) error {
	t.cacheMu.Lock()
	existing, had := t.cache[id]
	delete(t.cache, id)
	t.cacheMu.Unlock()
	t.strategy.Forget(id)

	timer := metrics.NewTimer()
	err := t.trunk.Toss(ctx, id)
	observeTrunkOp("toss", timer, err)
	if err != nil {
		return fmt.Errorf("acorndb: toss %q: %w", id, err)
	}

	t.identityIndex.Remove(id)
	t.removeFromIndexes(id)

	t.publish(Event[T]{Type: EventToss, ID: id, Nut: existing})

	if propagate {
		n := existing
		if !had {
			n.ID = id
		}
		n.OriginNodeID = t.treeID
		n.ChangeID = uuid.NewString()
		t.propagateLocal(leaf.ChangeDelete, n)
	}
	return nil
}

// Subscribe registers cb to receive every committed Event. The returned
// function unregisters it.
func (t *Tree[T]) Subscribe(cb Subscriber[T]) func() {
	t.subMu.Lock()
	id := t.nextSubID
	t.nextSubID++
	t.subs[id] = cb
	t.subMu.Unlock()

	return func() {
		t.subMu.Lock()
		delete(t.subs, id)
		t.subMu.Unlock()
	}
}

func (t *Tree[T]) publish(ev Event[T]) {
	t.subMu.Lock()
	cbs := make([]Subscriber[T], 0, len(t.subs))
	for _, cb := range t.subs {
		cbs = append(cbs, cb)
	}
	t.subMu.Unlock()

	for _, cb := range cbs {
		cb(ev)
	}
}

func (t *Tree[T]) evictIfNeeded(justTouched string) {
	t.strategy.Touch(justTouched)
	victim, ok := t.strategy.Evict()
	if !ok || victim == justTouched {
		return
	}
	t.cacheMu.Lock()
	delete(t.cache, victim)
	t.cacheMu.Unlock()
}

// Stats is a point-in-time snapshot of a Tree's in-memory bookkeeping,
// read by pkg/metrics without requiring a type-parameterized collector.
type Stats struct {
	TreeID          string
	CacheSize       int
	IndexCount      int
	SubscriberCount int
	SinkCount       int
	DedupCacheSize  int
	TrunkType       trunk.TrunkType
	IsDurable       bool
}

// Stats returns a snapshot of the Tree's current cache size, index
// count, subscriber/sink count, dedup cache occupancy, and the backing
// trunk's reported capabilities, so callers (e.g. pkg/metrics' health
// surface) can distinguish a durable tree from a non-durable one
// without reaching past the Tree for its trunk directly.
func (t *Tree[T]) Stats() Stats {
	t.cacheMu.RLock()
	cacheSize := len(t.cache)
	t.cacheMu.RUnlock()

	t.indexMu.RLock()
	indexCount := len(t.indexes)
	t.indexMu.RUnlock()

	t.subMu.Lock()
	subCount := len(t.subs)
	t.subMu.Unlock()

	t.sinkMu.RLock()
	sinkCount := len(t.sinks)
	t.sinkMu.RUnlock()

	caps := t.trunk.Capabilities()

	return Stats{
		TreeID:          t.treeID,
		CacheSize:       cacheSize,
		IndexCount:      indexCount,
		SubscriberCount: subCount,
		SinkCount:       sinkCount,
		DedupCacheSize:  t.dedup.Len(),
		TrunkType:       caps.TrunkType,
		IsDurable:       caps.IsDurable,
	}
}

// Dispose flushes and releases the underlying trunk. Safe to call more
// than once.
func (t *Tree[T]) Dispose() error {
	var err error
	t.disposeOnce.Do(func() {
		err = t.trunk.Dispose()
	})
	return err
}
