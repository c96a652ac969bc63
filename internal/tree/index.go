package tree

import (
	"fmt"

	"github.com/acorndb/acorndb/internal/index"
)

// boundIndex type-erases index.Index[V] so a Tree[T] can hold indexes
// over several different projected value types in one map, the same
// way a single Tree can have a string index on one field and an int
// index on another.
type boundIndex interface {
	Name() string
	Unique() bool
	put(id string, value any) error
	remove(id string)
	len() int
}

type boundAdapter[V comparable] struct {
	idx index.Index[V]
}

func (a boundAdapter[V]) Name() string     { return a.idx.Name() }
func (a boundAdapter[V]) Unique() bool     { return a.idx.Unique() }
func (a boundAdapter[V]) len() int         { return a.idx.Len() }
func (a boundAdapter[V]) remove(id string) { a.idx.Remove(id) }
func (a boundAdapter[V]) put(id string, value any) error {
	v, ok := value.(V)
	if !ok {
		return fmt.Errorf("acorndb: index %q got value of wrong type %T", a.idx.Name(), value)
	}
	return a.idx.Put(id, v)
}

// indexBinding pairs a type-erased index with the projection that turns
// a live payload into the value that index is keyed on. A projection
// returning ok=false means the document has no value for this index
// (e.g. an optional field left unset) and is simply not indexed under
// it for this id.
type indexBinding[T any] struct {
	bound   boundIndex
	project func(payload T) (value any, ok bool)
}

// AddIndex registers idx on t, keyed by whatever project extracts from
// each stashed payload, and builds it over every document already in
// the cache so late-registered indexes answer the same queries as ones
// registered before the first stash. AddIndex is a free function
// rather than a method because Go methods cannot carry their own type
// parameters beyond the receiver's.
func AddIndex[T any, V comparable](t *Tree[T], idx index.Index[V], project func(payload T) (V, bool)) error {
	t.cacheMu.RLock()
	existing := make(map[string]T, len(t.cache))
	for id, n := range t.cache {
		existing[id] = n.Payload
	}
	t.cacheMu.RUnlock()

	for id, payload := range existing {
		value, ok := project(payload)
		if !ok {
			continue
		}
		if err := idx.Put(id, value); err != nil {
			if idx.Unique() {
				idx.Clear()
				return err
			}
			t.logger.Warn().Err(err).Str("index", idx.Name()).Str("id", id).Msg("index backfill failed")
		}
	}

	binding := indexBinding[T]{
		bound: boundAdapter[V]{idx: idx},
		project: func(payload T) (any, bool) {
			return project(payload)
		},
	}

	t.indexMu.Lock()
	defer t.indexMu.Unlock()
	t.indexes[idx.Name()] = binding
	return nil
}

// Index returns the named index's generic Len()/Unique() view, or false
// if no index by that name is registered.
func (t *Tree[T]) Index(name string) (Index, bool) {
	t.indexMu.RLock()
	defer t.indexMu.RUnlock()
	b, ok := t.indexes[name]
	if !ok {
		return Index{}, false
	}
	return Index{Name: b.bound.Name(), Unique: b.bound.Unique(), Len: b.bound.len()}, true
}

// Index is a read-only view of a registered index's shape, used by
// callers that want statistics without the underlying value type.
type Index struct {
	Name   string
	Unique bool
	Len    int
}

// updateIndexes applies payload's projected values to every registered
// index under id. A unique-constraint failure on any one index is
// returned immediately; failures from
// non-unique indexes are logged and otherwise ignored, since the index
// contract treats those as best-effort.
func (t *Tree[T]) updateIndexes(id string, payload T) error {
	t.indexMu.RLock()
	bindings := make([]indexBinding[T], 0, len(t.indexes))
	for _, b := range t.indexes {
		bindings = append(bindings, b)
	}
	t.indexMu.RUnlock()

	for _, b := range bindings {
		value, ok := b.project(payload)
		if !ok {
			continue
		}
		if err := b.bound.put(id, value); err != nil {
			if b.bound.Unique() {
				return err
			}
			t.logger.Warn().Err(err).Str("index", b.bound.Name()).Msg("non-unique index update failed")
		}
	}
	return nil
}

func (t *Tree[T]) removeFromIndexes(id string) {
	t.indexMu.RLock()
	bindings := make([]indexBinding[T], 0, len(t.indexes))
	for _, b := range t.indexes {
		bindings = append(bindings, b)
	}
	t.indexMu.RUnlock()

	for _, b := range bindings {
		b.bound.remove(id)
	}
}
