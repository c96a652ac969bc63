// Package memory implements AcornDB's non-durable reference trunk: a
// process-local sync.Map, preferring a lock-free concurrent map over
// hand-rolled locking since the workload is read-heavy.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/acorndb/acorndb/internal/nut"
	"github.com/acorndb/acorndb/internal/root"
	"github.com/acorndb/acorndb/internal/trunk"
	"github.com/acorndb/acorndb/pkg/acornerr"
	"github.com/acorndb/acorndb/pkg/log"
)

// entry is what the sync.Map actually holds: the post-pipeline blob
// plus the bookkeeping fields needed without decoding it.
type entry struct {
	blob      []byte
	timestamp int64
	version   int64
}

// Trunk is the in-memory reference backend. It carries no history and
// loses everything on process exit; it exists to give Tree something
// to run against with zero setup, and as the baseline other trunks are
// measured against. Writes apply to the map immediately rather than
// through the shared batching buffer, since there is no I/O to
// amortize.
type Trunk[T any] struct {
	base  *trunk.Base[T]
	store sync.Map // id -> entry
}

// New builds an empty in-memory trunk.
func New[T any]() *Trunk[T] {
	t := &Trunk[T]{}
	t.base = trunk.NewBase[T](trunk.TypeMemory, trunk.DefaultBatchThreshold, trunk.DefaultFlushInterval,
		func(context.Context, []trunk.PendingWrite) error { return nil })
	return t
}

func (t *Trunk[T]) decode(blob []byte) (nut.Nut[T], error) {
	ctx := root.NewContext(root.OpRead, "", "trunk:memory")
	raw, err := t.base.Pipeline().Crack(blob, ctx)
	if err != nil {
		return nut.Nut[T]{}, err
	}
	return t.base.Serializer().Deserialize(raw)
}

func (t *Trunk[T]) encode(n nut.Nut[T]) ([]byte, error) {
	raw, err := t.base.Serializer().Serialize(n)
	if err != nil {
		return nil, err
	}
	ctx := root.NewContext(root.OpWrite, n.ID, "trunk:memory")
	return t.base.Pipeline().Stash(raw, ctx)
}

func (t *Trunk[T]) Stash(_ context.Context, n nut.Nut[T]) error {
	if n.ID == "" {
		return acornerr.ErrIDInvalid
	}
	blob, err := t.encode(n)
	if err != nil {
		return err
	}
	t.store.Store(n.ID, entry{blob: blob, timestamp: n.Timestamp.UnixMicro(), version: n.Version})
	return nil
}

func (t *Trunk[T]) Crack(_ context.Context, id string) (nut.Nut[T], bool, error) {
	v, ok := t.store.Load(id)
	if !ok {
		return nut.Nut[T]{}, false, nil
	}
	n, err := t.decode(v.(entry).blob)
	if err != nil {
		return nut.Nut[T]{}, false, err
	}
	return n, true, nil
}

func (t *Trunk[T]) Toss(_ context.Context, id string) error {
	t.store.Delete(id)
	return nil
}

func (t *Trunk[T]) CrackAll(_ context.Context) ([]nut.Nut[T], error) {
	var out []nut.Nut[T]
	var scanErr error
	t.store.Range(func(id, v any) bool {
		n, err := t.decode(v.(entry).blob)
		if err != nil {
			// One undecodable document must not break the whole scan.
			if errors.Is(err, acornerr.ErrDeserialization) {
				log.Logger.Warn().Err(err).Str("id", id.(string)).Msg("acorndb: skipping undecodable document")
				return true
			}
			scanErr = err
			return false
		}
		out = append(out, n)
		return true
	})
	if scanErr != nil {
		return nil, scanErr
	}
	return out, nil
}

func (t *Trunk[T]) GetHistory(context.Context, string) ([]nut.Nut[T], error) {
	return nil, acornerr.ErrHistoryUnsupported
}

func (t *Trunk[T]) ExportChanges(ctx context.Context) ([]nut.Nut[T], error) {
	return t.CrackAll(ctx)
}

func (t *Trunk[T]) ImportChanges(ctx context.Context, changes []nut.Nut[T]) error {
	for _, n := range changes {
		if err := t.Stash(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (t *Trunk[T]) Capabilities() trunk.Capabilities {
	return trunk.Capabilities{
		SupportsHistory: false,
		SupportsSync:    true,
		IsDurable:       false,
		SupportsAsync:   false,
		TrunkType:       trunk.TypeMemory,
	}
}

func (t *Trunk[T]) Roots() []root.Root     { return t.base.Pipeline().Roots() }
func (t *Trunk[T]) AddRoot(r root.Root)    { t.base.Pipeline().Add(r) }
func (t *Trunk[T]) RemoveRoot(name string) { t.base.Pipeline().Remove(name) }
func (t *Trunk[T]) Dispose() error         { return t.base.Dispose() }
