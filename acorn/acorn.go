// Package acorn is AcornDB's public face. internal/tree, internal/trunk,
// and internal/nut hold the real implementation; Go's internal/
// visibility rules keep them unreachable from outside this module, so
// this package re-exports the handful of names an embedding application
// actually needs as type aliases, plus the constructors to build them.
package acorn

import (
	"github.com/acorndb/acorndb/internal/grove"
	"github.com/acorndb/acorndb/internal/judge"
	"github.com/acorndb/acorndb/internal/leaf"
	"github.com/acorndb/acorndb/internal/nut"
	"github.com/acorndb/acorndb/internal/tree"
	"github.com/acorndb/acorndb/internal/trunk"
)

// Tree is a typed collection of documents backed by a Trunk. See
// internal/tree for the full method set (Stash, Crack, Toss, Subscribe,
// Entangle, ...).
type Tree[T any] = tree.Tree[T]

// Trunk is the storage contract a concrete backend (memory, file,
// boltstore, appendlog, sqltrunk, or a compose wrapper) implements.
type Trunk[T any] = trunk.Trunk[T]

// Nut is the versioned envelope a Tree stores a payload in.
type Nut[T any] = nut.Nut[T]

// Option configures a Tree at construction; see WithJudge and
// WithCacheStrategy.
type Option[T any] = tree.Option[T]

// CacheStrategy governs which Nut a Tree evicts from its in-memory
// cache under pressure.
type CacheStrategy = tree.CacheStrategy

// Judge resolves a conflict between two versions of the same document,
// returning one of its inputs. TimestampJudge is the default.
type Judge[T any] = judge.Judge[T]

// Direction tells Squabble how to pick a winner; see PreferLocal,
// PreferRemote, and UseJudge.
type Direction = tree.Direction

const (
	PreferLocal  = tree.PreferLocal
	PreferRemote = tree.PreferRemote
	UseJudge     = tree.UseJudge
)

// Event is delivered to Subscribe callbacks after a committed mutation.
type Event[T any] = tree.Event[T]

// EventType distinguishes the kind of mutation an Event describes.
type EventType = tree.EventType

const (
	EventStash    = tree.EventStash
	EventToss     = tree.EventToss
	EventSquabble = tree.EventSquabble
)

// Subscriber receives Events synchronously, in commit order.
type Subscriber[T any] = tree.Subscriber[T]

// Leaf is one replicated change crossing between Trees.
type Leaf = leaf.Leaf

// Sink receives propagated leaves; Entangle registers one per peer.
type Sink = leaf.Sink

// NewLRUStrategy bounds a Tree's cache to maxEntries ids, evicting the
// least recently touched.
func NewLRUStrategy(maxEntries int) CacheStrategy { return tree.NewLRUStrategy(maxEntries) }

// Grove is a registry of heterogeneous Trees keyed by (kind, name),
// the handle pkg/metrics wires its health and gauge reporting to.
type Grove = grove.Grove

// NewGrove returns an empty Grove.
func NewGrove() *Grove { return grove.New() }

// RegisterTree adds t to g under (kind, name), failing if the slot is
// already taken.
func RegisterTree[T any](g *Grove, kind, name string, t *Tree[T]) error {
	return grove.Register[T](g, kind, name, t)
}

// GetTree retrieves the Tree registered at (kind, name); ok is false
// when nothing is registered there or it holds a different T.
func GetTree[T any](g *Grove, kind, name string) (*Tree[T], bool) {
	r, ok := grove.Get[T](g, kind, name)
	if !ok {
		return nil, false
	}
	tt, ok := r.(*tree.Tree[T])
	return tt, ok
}

// TimestampJudge is the default conflict judge: later timestamp wins,
// ties break on version then origin node id.
func TimestampJudge[T any](a, b Nut[T]) Nut[T] { return judge.Timestamp(a, b) }

// VersionJudge prefers the higher version outright.
func VersionJudge[T any](a, b Nut[T]) Nut[T] { return judge.Version(a, b) }

// CustomJudge adapts a caller-supplied "does a win over b?" predicate
// into a Judge.
func CustomJudge[T any](prefer func(a, b Nut[T]) bool) Judge[T] { return judge.Custom(prefer) }

// New builds a Tree[T] over back, the way tree.New does — this is
// exactly that constructor, exported at the module root so callers
// never need to import internal/tree themselves.
func New[T any](back Trunk[T], opts ...Option[T]) *Tree[T] {
	return tree.New[T](back, opts...)
}

// NewNut wraps a payload in a fresh Nut[T] under id, the way a Trunk
// does internally before a first Stash. Most callers never need this
// directly — Tree.Stash/StashID build Nuts for you — but backends and
// tests composing a Trunk by hand do.
func NewNut[T any](id string, payload T) (Nut[T], error) {
	return nut.New(id, payload)
}

// WithJudge overrides the default timestamp-wins conflict judge used by
// Tree.Squabble.
func WithJudge[T any](j judge.Judge[T]) Option[T] {
	return tree.WithJudge(j)
}

// WithCacheStrategy overrides the default (unbounded, never-evicting)
// cache strategy.
func WithCacheStrategy[T any](s CacheStrategy) Option[T] {
	return tree.WithCacheStrategy[T](s)
}
