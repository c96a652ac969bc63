package compose

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/acorndb/acorndb/internal/nut"
	"github.com/acorndb/acorndb/internal/root"
	"github.com/acorndb/acorndb/internal/trunk"
	"github.com/acorndb/acorndb/pkg/log"
	"github.com/acorndb/acorndb/pkg/metrics"
)

// MigratePredicate reports whether n is old enough (or otherwise
// qualifies) to move from Hot to Cold. Tiered calls it during its
// background sweep. NewTiered takes one as a parameter and supplies no
// default; ByAge builds one that checks age against a duration.
type MigratePredicate[T any] func(n nut.Nut[T], now time.Time) bool

// ByAge returns a MigratePredicate that migrates any Nut whose Timestamp
// is older than after.
func ByAge[T any](after time.Duration) MigratePredicate[T] {
	return func(n nut.Nut[T], now time.Time) bool {
		return now.Sub(n.Timestamp) > after
	}
}

// Tiered keeps recently-written documents in a fast Hot trunk and
// migrates aging ones to a Cold trunk on a ticker-driven background
// sweep. Writes always land in Hot; Crack checks Hot first, falling
// through to Cold without promoting back (a cold read does not make a
// document hot again, since hotness here tracks write recency, not
// access recency).
type Tiered[T any] struct {
	hot, cold trunk.Trunk[T]
	shouldMove MigratePredicate[T]

	sweepEvery time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once
	logger     zerolog.Logger
}

// NewTiered builds a Tiered trunk and starts its background migration
// sweep running every sweepEvery.
func NewTiered[T any](hot, cold trunk.Trunk[T], shouldMove MigratePredicate[T], sweepEvery time.Duration) *Tiered[T] {
	tr := &Tiered[T]{
		hot:        hot,
		cold:       cold,
		shouldMove: shouldMove,
		sweepEvery: sweepEvery,
		stopCh:     make(chan struct{}),
		logger:     log.WithComponent("trunk.tiered"),
	}
	go tr.run()
	return tr
}

func (t *Tiered[T]) run() {
	ticker := time.NewTicker(t.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := t.sweep(context.Background()); err != nil {
				t.logger.Error().Err(err).Msg("tier migration sweep failed")
			}
		case <-t.stopCh:
			return
		}
	}
}

func (t *Tiered[T]) sweep(ctx context.Context) error {
	hotNuts, err := t.hot.CrackAll(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, n := range hotNuts {
		if !t.shouldMove(n, now) {
			continue
		}
		if err := t.cold.Stash(ctx, n); err != nil {
			t.logger.Warn().Err(err).Str("id", n.ID).Msg("failed to migrate document to cold tier")
			continue
		}
		metrics.TierMigrationsTotal.Inc()
		if err := t.hot.Toss(ctx, n.ID); err != nil {
			t.logger.Warn().Err(err).Str("id", n.ID).Msg("migrated document but failed to evict from hot tier")
		}
	}
	return nil
}

func (t *Tiered[T]) Stash(ctx context.Context, n nut.Nut[T]) error {
	return t.hot.Stash(ctx, n)
}

func (t *Tiered[T]) Crack(ctx context.Context, id string) (nut.Nut[T], bool, error) {
	if n, ok, err := t.hot.Crack(ctx, id); err == nil && ok {
		return n, true, nil
	}
	return t.cold.Crack(ctx, id)
}

func (t *Tiered[T]) Toss(ctx context.Context, id string) error {
	hotErr := t.hot.Toss(ctx, id)
	coldErr := t.cold.Toss(ctx, id)
	if hotErr != nil {
		return hotErr
	}
	return coldErr
}

func (t *Tiered[T]) CrackAll(ctx context.Context) ([]nut.Nut[T], error) {
	hot, err := t.hot.CrackAll(ctx)
	if err != nil {
		return nil, err
	}
	cold, err := t.cold.CrackAll(ctx)
	if err != nil {
		return nil, err
	}
	return append(hot, cold...), nil
}

func (t *Tiered[T]) GetHistory(ctx context.Context, id string) ([]nut.Nut[T], error) {
	if hist, err := t.hot.GetHistory(ctx, id); err == nil && len(hist) > 0 {
		return hist, nil
	}
	return t.cold.GetHistory(ctx, id)
}

func (t *Tiered[T]) ExportChanges(ctx context.Context) ([]nut.Nut[T], error) {
	return t.CrackAll(ctx)
}

func (t *Tiered[T]) ImportChanges(ctx context.Context, changes []nut.Nut[T]) error {
	return t.hot.ImportChanges(ctx, changes)
}

func (t *Tiered[T]) Capabilities() trunk.Capabilities {
	caps := t.hot.Capabilities()
	caps.TrunkType = trunk.TypeComposed
	return caps
}

func (t *Tiered[T]) Roots() []root.Root     { return t.hot.Roots() }
func (t *Tiered[T]) AddRoot(r root.Root)    { t.hot.AddRoot(r) }
func (t *Tiered[T]) RemoveRoot(name string) { t.hot.RemoveRoot(name) }

// Dispose stops the background sweep and disposes both tiers.
func (t *Tiered[T]) Dispose() error {
	t.stopOnce.Do(func() { close(t.stopCh) })
	hotErr := t.hot.Dispose()
	coldErr := t.cold.Dispose()
	if hotErr != nil {
		return hotErr
	}
	return coldErr
}
