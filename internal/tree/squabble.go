package tree

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/acorndb/acorndb/internal/nut"
	"github.com/acorndb/acorndb/pkg/acornerr"
	"github.com/acorndb/acorndb/pkg/metrics"
)

// Direction tells Squabble how to pick a winner between the Nut already
// in the Tree and one arriving from replication.
type Direction int

const (
	// PreferLocal always keeps the existing Nut.
	PreferLocal Direction = iota
	// PreferRemote always adopts the incoming Nut.
	PreferRemote
	// UseJudge defers to the Tree's configured judge.
	UseJudge
)

func (d Direction) String() string {
	switch d {
	case PreferLocal:
		return "prefer_local"
	case PreferRemote:
		return "prefer_remote"
	default:
		return "judge"
	}
}

// Squabble reconciles id's current Nut with an incoming one, the entry
// point replication calls on every received Stash/Update. If id is
// unknown locally the incoming Nut is adopted outright. Otherwise the
// winner is decided by direction; if the existing Nut wins, Squabble is
// a no-op.
func (t *Tree[T]) Squabble(ctx context.Context, id string, incoming nut.Nut[T], direction Direction) error {
	t.cacheMu.RLock()
	existing, ok := t.cache[id]
	t.cacheMu.RUnlock()

	if !ok {
		// Evicted from the cache does not mean unknown: check the trunk
		// before deciding there is nothing to squabble with. A blob that
		// no longer decodes reads as absent, so the incoming Nut wins.
		var err error
		existing, ok, err = t.trunk.Crack(ctx, id)
		if err != nil {
			if !errors.Is(err, acornerr.ErrDeserialization) {
				return fmt.Errorf("acorndb: squabble load %q: %w", id, err)
			}
			t.logger.Warn().Err(err).Str("id", id).Msg("treating undecodable document as absent")
			ok = false
		}
	}
	if !ok {
		metrics.SquabblesTotal.WithLabelValues(direction.String(), "adopted").Inc()
		return t.adopt(ctx, id, incoming)
	}

	var winner nut.Nut[T]
	var winnerIsExisting bool
	switch direction {
	case PreferLocal:
		winner, winnerIsExisting = existing, true
	case PreferRemote:
		winner, winnerIsExisting = incoming, false
	default:
		winner = t.judge(existing, incoming)
		winnerIsExisting = reflect.DeepEqual(winner, existing)
	}

	if winnerIsExisting {
		metrics.SquabblesTotal.WithLabelValues(direction.String(), "existing_wins").Inc()
		return nil
	}
	metrics.SquabblesTotal.WithLabelValues(direction.String(), "incoming_wins").Inc()
	return t.adopt(ctx, id, winner)
}

// adopt writes winner into the cache and trunk as the authoritative
// value for id, maintaining indexes and firing a Squabble event, but
// without emitting a fresh replication leaf (the caller either already
// knows this came from one, or is establishing it for the first time
// from an export/import, neither of which should re-enter the mesh).
func (t *Tree[T]) adopt(ctx context.Context, id string, n nut.Nut[T]) error {
	n.ID = id

	if err := t.trunk.Stash(ctx, n); err != nil {
		return fmt.Errorf("acorndb: squabble adopt %q: %w", id, err)
	}

	t.cacheMu.Lock()
	t.cache[id] = n
	t.cacheMu.Unlock()
	t.strategy.Touch(id)

	if err := t.identityIndex.Put(id, id); err != nil {
		t.logger.Warn().Err(err).Str("id", id).Msg("identity index update failed")
	}
	if err := t.updateIndexes(id, n.Payload); err != nil {
		return err
	}

	t.publish(Event[T]{Type: EventSquabble, ID: id, Nut: n})
	return nil
}

// UndoSquabble restores id to its most recent superseded version, if
// the trunk supports history. It is a no-op when the trunk does not, or
// when no older version exists to restore.
func (t *Tree[T]) UndoSquabble(ctx context.Context, id string) error {
	hist, err := t.trunk.GetHistory(ctx, id)
	if err != nil {
		if errors.Is(err, acornerr.ErrHistoryUnsupported) {
			return nil
		}
		return fmt.Errorf("acorndb: undo squabble %q: %w", id, err)
	}
	if len(hist) == 0 {
		return nil
	}

	restored := hist[len(hist)-1]
	return t.adopt(ctx, id, restored)
}
