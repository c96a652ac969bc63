// Package grove implements Grove: a registry that holds many heterogeneous
// Tree[T] instances behind one handle, the way an application keeps one
// Tree per document type but wants a single place to list, look up, or
// shut all of them down together. Go forbids a generic method set on a
// non-generic receiver, so Grove stores each Tree behind a small
// type-erased handle and exposes typed access through free functions,
// the same pattern internal/tree uses for secondary indexes.
package grove

import (
	"fmt"
	"sort"
	"sync"

	"github.com/acorndb/acorndb/internal/tree"
	"github.com/acorndb/acorndb/pkg/metrics"
)

// handle is the type-erased face every registered Tree[T] presents to
// Grove. *tree.Tree[T] satisfies it without modification (TreeID,
// Dispose, and Stats are already part of its method set).
type handle interface {
	TreeID() string
	Dispose() error
	Stats() tree.Stats
}

// entry pairs a registered handle with the declared type name it was
// registered under, so Stats can report composition without needing to
// type-assert every handle.
type entry struct {
	kind string
	h    handle
}

var _ metrics.StatsSource = (*Grove)(nil)

// Grove is a registry keyed by (type identifier, instance name), holding
// opaque Tree handles. Operations that fan out across trees (DisposeAll,
// Stats) dispatch on the stored handle directly; type-specific access
// goes through the package-level Get function, which type-asserts back
// to Registrable[T] for the caller.
type Grove struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New returns an empty Grove.
func New() *Grove {
	return &Grove{entries: make(map[string]entry)}
}

func key(kind, name string) string { return kind + "/" + name }

// Register adds t to the grove under (kind, name). kind is an
// application-chosen type identifier (e.g. "user", "order"), not
// Go's reflected type name, so callers can register two differently
// configured Trees of the same Go type under distinct kinds. Register
// returns an error if (kind, name) is already taken, since silently
// replacing a live handle could orphan its subscribers and sinks.
func Register[T any](g *Grove, kind, name string, t Registrable[T]) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	k := key(kind, name)
	if _, exists := g.entries[k]; exists {
		return fmt.Errorf("acorndb: grove already has a tree registered at %s/%s", kind, name)
	}
	g.entries[k] = entry{kind: kind, h: treeHandle[T]{t}}
	return nil
}

// Registrable is the subset of *tree.Tree[T]'s method set Grove depends
// on. Grove accepts this interface rather than *tree.Tree[T] itself, so
// any type satisfying it (in practice always *tree.Tree[T]) can be
// registered.
type Registrable[T any] interface {
	TreeID() string
	Dispose() error
	Stats() tree.Stats
}

type treeHandle[T any] struct {
	t Registrable[T]
}

func (h treeHandle[T]) TreeID() string    { return h.t.TreeID() }
func (h treeHandle[T]) Dispose() error    { return h.t.Dispose() }
func (h treeHandle[T]) Stats() tree.Stats { return h.t.Stats() }

// Get retrieves the Tree registered at (kind, name), type-asserting it
// back to Registrable[T]. ok is false if nothing is registered there, or
// if it was registered with a different T.
func Get[T any](g *Grove, kind, name string) (Registrable[T], bool) {
	g.mu.RLock()
	e, ok := g.entries[key(kind, name)]
	g.mu.RUnlock()
	if !ok {
		return nil, false
	}
	th, ok := e.h.(treeHandle[T])
	if !ok {
		return nil, false
	}
	return th.t, true
}

// Unregister removes (kind, name) from the grove without disposing it;
// the caller already has a live reference via Get and owns its lifecycle
// from here.
func (g *Grove) Unregister(kind, name string) {
	g.mu.Lock()
	delete(g.entries, key(kind, name))
	g.mu.Unlock()
}

// Handle names one registered tree, returned by List for fan-out
// callers that only need identity, not the typed Tree itself.
type Handle struct {
	Kind   string
	Name   string
	TreeID string
}

// List returns every registered handle, sorted by (kind, name) for
// deterministic iteration.
func (g *Grove) List() []Handle {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Handle, 0, len(g.entries))
	for k, e := range g.entries {
		kind, name := splitKey(k)
		out = append(out, Handle{Kind: kind, Name: name, TreeID: e.h.TreeID()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func splitKey(k string) (kind, name string) {
	for i := 0; i < len(k); i++ {
		if k[i] == '/' {
			return k[:i], k[i+1:]
		}
	}
	return k, ""
}

// DisposeAll disposes every registered tree and clears the registry,
// collecting (not short-circuiting on) individual failures so one
// misbehaving trunk doesn't prevent the others from shutting down.
func (g *Grove) DisposeAll() error {
	g.mu.Lock()
	entries := g.entries
	g.entries = make(map[string]entry)
	g.mu.Unlock()

	var errs []error
	for k, e := range entries {
		if err := e.h.Dispose(); err != nil {
			errs = append(errs, fmt.Errorf("acorndb: dispose %s: %w", k, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	joined := errs[0]
	for _, e := range errs[1:] {
		joined = fmt.Errorf("%w; %w", joined, e)
	}
	return joined
}

// Len reports how many trees are currently registered.
func (g *Grove) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// TreeStats pairs a registered tree's identity with its point-in-time
// Stats, for pkg/metrics to fan out over without needing a type
// parameter per tree.
type TreeStats struct {
	Kind  string
	Name  string
	Stats tree.Stats
}

// TreeStats implements metrics.StatsSource, so a Grove can be handed
// straight to metrics.NewCollector and metrics.WireStats.
func (g *Grove) TreeStats() []metrics.TreeStat {
	stats := g.Stats()
	out := make([]metrics.TreeStat, 0, len(stats))
	for _, s := range stats {
		out = append(out, metrics.TreeStat{
			Kind:            s.Kind,
			Name:            s.Name,
			CacheSize:       s.Stats.CacheSize,
			IndexCount:      s.Stats.IndexCount,
			SubscriberCount: s.Stats.SubscriberCount,
			SinkCount:       s.Stats.SinkCount,
			DedupCacheSize:  s.Stats.DedupCacheSize,
			TrunkType:       string(s.Stats.TrunkType),
			IsDurable:       s.Stats.IsDurable,
		})
	}
	return out
}

// Stats returns a snapshot of every registered tree, sorted the same
// way List is.
func (g *Grove) Stats() []TreeStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]TreeStats, 0, len(g.entries))
	for k, e := range g.entries {
		kind, name := splitKey(k)
		out = append(out, TreeStats{Kind: kind, Name: name, Stats: e.h.Stats()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}
