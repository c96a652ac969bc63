package compose

import (
	"context"

	"github.com/acorndb/acorndb/internal/nut"
	"github.com/acorndb/acorndb/internal/root"
	"github.com/acorndb/acorndb/internal/trunk"
)

// WritePolicy controls how NearFar.Stash propagates to its Near and Far
// tiers once Backing has accepted the write. Toss does not consult it:
// it always removes the id from both tiers.
type WritePolicy int

const (
	// WriteThrough writes to Near, Far, and Backing on every Stash.
	WriteThrough WritePolicy = iota
	// Invalidate writes only to Backing, then Tosses the id from Near
	// and Far so the next Crack repopulates them from Backing.
	Invalidate
	// WriteAround writes only to Backing, leaving Near and Far
	// untouched (a stale entry, if any, is left stale until its own
	// TTL or eviction clears it).
	WriteAround
)

// NearFar chains three trunks into one: Crack checks Near, then Far,
// then Backing, promoting whatever it finds back up through the tiers
// it missed. Backing is always the authoritative store; Near and Far
// are caches of it, typically built by wrapping faster/slower trunks
// (e.g. an in-memory Near in front of a bbolt Far in front of a SQL
// Backing).
type NearFar[T any] struct {
	near, far, backing trunk.Trunk[T]
	policy             WritePolicy
}

// NewNearFar builds a NearFar over the given tiers. near or far may be
// nil to skip that tier entirely (a two-tier Near->Backing or
// Far->Backing configuration).
func NewNearFar[T any](near, far, backing trunk.Trunk[T], policy WritePolicy) *NearFar[T] {
	return &NearFar[T]{near: near, far: far, backing: backing, policy: policy}
}

func (nf *NearFar[T]) Stash(ctx context.Context, n nut.Nut[T]) error {
	if err := nf.backing.Stash(ctx, n); err != nil {
		return err
	}
	switch nf.policy {
	case WriteThrough:
		if nf.near != nil {
			if err := nf.near.Stash(ctx, n); err != nil {
				return err
			}
		}
		if nf.far != nil {
			if err := nf.far.Stash(ctx, n); err != nil {
				return err
			}
		}
	case Invalidate:
		if nf.near != nil {
			_ = nf.near.Toss(ctx, n.ID)
		}
		if nf.far != nil {
			_ = nf.far.Toss(ctx, n.ID)
		}
	case WriteAround:
		// Backing already has it; Near/Far are left alone.
	}
	return nil
}

func (nf *NearFar[T]) Crack(ctx context.Context, id string) (nut.Nut[T], bool, error) {
	if nf.near != nil {
		if n, ok, err := nf.near.Crack(ctx, id); err == nil && ok {
			return n, true, nil
		}
	}
	if nf.far != nil {
		if n, ok, err := nf.far.Crack(ctx, id); err == nil && ok {
			if nf.near != nil {
				_ = nf.near.Stash(ctx, n)
			}
			return n, true, nil
		}
	}
	n, ok, err := nf.backing.Crack(ctx, id)
	if err != nil || !ok {
		return nut.Nut[T]{}, ok, err
	}
	if nf.far != nil {
		_ = nf.far.Stash(ctx, n)
	}
	if nf.near != nil {
		_ = nf.near.Stash(ctx, n)
	}
	return n, true, nil
}

func (nf *NearFar[T]) Toss(ctx context.Context, id string) error {
	if err := nf.backing.Toss(ctx, id); err != nil {
		return err
	}
	if nf.near != nil {
		_ = nf.near.Toss(ctx, id)
	}
	if nf.far != nil {
		_ = nf.far.Toss(ctx, id)
	}
	return nil
}

func (nf *NearFar[T]) CrackAll(ctx context.Context) ([]nut.Nut[T], error) {
	return nf.backing.CrackAll(ctx)
}

func (nf *NearFar[T]) GetHistory(ctx context.Context, id string) ([]nut.Nut[T], error) {
	return nf.backing.GetHistory(ctx, id)
}

func (nf *NearFar[T]) ExportChanges(ctx context.Context) ([]nut.Nut[T], error) {
	return nf.backing.ExportChanges(ctx)
}

func (nf *NearFar[T]) ImportChanges(ctx context.Context, changes []nut.Nut[T]) error {
	return nf.backing.ImportChanges(ctx, changes)
}

func (nf *NearFar[T]) Capabilities() trunk.Capabilities {
	caps := nf.backing.Capabilities()
	caps.TrunkType = trunk.TypeComposed
	return caps
}

func (nf *NearFar[T]) Roots() []root.Root     { return nf.backing.Roots() }
func (nf *NearFar[T]) AddRoot(r root.Root)    { nf.backing.AddRoot(r) }
func (nf *NearFar[T]) RemoveRoot(name string) { nf.backing.RemoveRoot(name) }

// Dispose disposes Backing and both configured tiers, collecting (not
// short-circuiting on) individual failures.
func (nf *NearFar[T]) Dispose() error {
	var first error
	record := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if nf.near != nil {
		record(nf.near.Dispose())
	}
	if nf.far != nil {
		record(nf.far.Dispose())
	}
	record(nf.backing.Dispose())
	return first
}
