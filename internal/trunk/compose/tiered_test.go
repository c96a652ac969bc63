package compose

import (
	"context"
	"testing"
	"time"

	"github.com/acorndb/acorndb/internal/trunk/memory"
)

func TestTieredStashGoesToHot(t *testing.T) {
	ctx := context.Background()
	hot := memory.New[doc]()
	cold := memory.New[doc]()
	tr := NewTiered[doc](hot, cold, ByAge[doc](time.Hour), time.Hour)
	defer tr.Dispose()

	if err := tr.Stash(ctx, mustNut(t, "a", "alice")); err != nil {
		t.Fatalf("stash: %v", err)
	}
	if _, ok, _ := hot.Crack(ctx, "a"); !ok {
		t.Fatalf("expected fresh write to land in hot tier")
	}
	if _, ok, _ := cold.Crack(ctx, "a"); ok {
		t.Fatalf("expected fresh write absent from cold tier")
	}
}

func TestTieredSweepMigratesAgedDocuments(t *testing.T) {
	ctx := context.Background()
	hot := memory.New[doc]()
	cold := memory.New[doc]()

	old := mustNut(t, "a", "alice")
	old.Timestamp = time.Now().UTC().Add(-time.Hour)
	if err := hot.Stash(ctx, old); err != nil {
		t.Fatalf("seed hot: %v", err)
	}

	tr := &Tiered[doc]{hot: hot, cold: cold, shouldMove: ByAge[doc](time.Minute)}
	if err := tr.sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if _, ok, _ := hot.Crack(ctx, "a"); ok {
		t.Fatalf("expected aged document evicted from hot tier")
	}
	n, ok, err := cold.Crack(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("expected aged document migrated to cold tier, ok=%v err=%v", ok, err)
	}
	if n.Payload.Name != "alice" {
		t.Fatalf("expected payload preserved across migration, got %+v", n.Payload)
	}
}

func TestTieredCrackFallsThroughToColdWithoutPromoting(t *testing.T) {
	ctx := context.Background()
	hot := memory.New[doc]()
	cold := memory.New[doc]()
	if err := cold.Stash(ctx, mustNut(t, "a", "alice")); err != nil {
		t.Fatalf("seed cold: %v", err)
	}
	tr := &Tiered[doc]{hot: hot, cold: cold, shouldMove: ByAge[doc](time.Hour)}

	n, ok, err := tr.Crack(ctx, "a")
	if err != nil || !ok || n.Payload.Name != "alice" {
		t.Fatalf("expected crack to fall through to cold, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := hot.Crack(ctx, "a"); ok {
		t.Fatalf("expected cold read not promoted into hot tier")
	}
}
