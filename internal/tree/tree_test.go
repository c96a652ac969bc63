package tree

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/acorndb/acorndb/internal/index"
	"github.com/acorndb/acorndb/internal/ledger"
	"github.com/acorndb/acorndb/internal/nut"
	"github.com/acorndb/acorndb/internal/root"
	"github.com/acorndb/acorndb/internal/trunk"
	"github.com/acorndb/acorndb/internal/trunk/memory"
	"github.com/acorndb/acorndb/pkg/acornerr"
)

type user struct {
	ID   string
	Name string
}

func TestTreeStashExtractsIDAndCracksBack(t *testing.T) {
	ctx := context.Background()
	tr := New[user](memory.New[user]())
	defer tr.Dispose()

	n, err := tr.Stash(ctx, user{ID: "u1", Name: "Alice"})
	if err != nil {
		t.Fatalf("stash: %v", err)
	}
	if n.Version != 1 {
		t.Fatalf("expected version 1, got %d", n.Version)
	}
	if n.Timestamp.After(time.Now().UTC()) {
		t.Fatalf("expected timestamp <= now")
	}

	got, ok, err := tr.Crack(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("crack: ok=%v err=%v", ok, err)
	}
	if got.Payload.Name != "Alice" {
		t.Fatalf("expected Alice, got %+v", got.Payload)
	}
}

func TestTreeStashWithoutIDableFieldFails(t *testing.T) {
	tr := New[int](memory.New[int]())
	defer tr.Dispose()

	if _, err := tr.Stash(context.Background(), 42); !errors.Is(err, acornerr.ErrIDUndetectable) {
		t.Fatalf("expected ErrIDUndetectable, got %v", err)
	}
}

func TestTreeStashIDSupersedesVersion(t *testing.T) {
	ctx := context.Background()
	tr := New[user](memory.New[user]())
	defer tr.Dispose()

	if _, err := tr.StashID(ctx, "u1", user{ID: "u1", Name: "v1"}); err != nil {
		t.Fatalf("stash 1: %v", err)
	}
	n2, err := tr.StashID(ctx, "u1", user{ID: "u1", Name: "v2"})
	if err != nil {
		t.Fatalf("stash 2: %v", err)
	}
	if n2.Version != 2 {
		t.Fatalf("expected version 2, got %d", n2.Version)
	}
}

func TestTreeToss(t *testing.T) {
	ctx := context.Background()
	tr := New[user](memory.New[user]())
	defer tr.Dispose()

	if _, err := tr.StashID(ctx, "u1", user{ID: "u1", Name: "Alice"}); err != nil {
		t.Fatalf("stash: %v", err)
	}
	if err := tr.Toss(ctx, "u1", true); err != nil {
		t.Fatalf("toss: %v", err)
	}
	_, ok, err := tr.Crack(ctx, "u1")
	if err != nil {
		t.Fatalf("crack after toss: %v", err)
	}
	if ok {
		t.Fatalf("expected tossed id absent")
	}
}

func TestTreeTTLExpiryMakesDocAbsent(t *testing.T) {
	ctx := context.Background()
	tr := New[user](memory.New[user]())
	defer tr.Dispose()

	past := time.Now().UTC().Add(-time.Hour)
	if _, err := tr.StashTTL(ctx, "u1", user{ID: "u1", Name: "Alice"}, past); err != nil {
		t.Fatalf("stash: %v", err)
	}

	_, ok, err := tr.Crack(ctx, "u1")
	if err != nil {
		t.Fatalf("crack: %v", err)
	}
	if ok {
		t.Fatalf("expected expired document to read as absent")
	}

	all, err := tr.CrackAll(ctx)
	if err != nil {
		t.Fatalf("crack all: %v", err)
	}
	for _, got := range all {
		if got.ID == "u1" {
			t.Fatalf("expected expired document omitted from CrackAll")
		}
	}
}

func TestTreeSubscriberFiresAfterCommit(t *testing.T) {
	ctx := context.Background()
	tr := New[user](memory.New[user]())
	defer tr.Dispose()

	var events []EventType
	unsub := tr.Subscribe(func(ev Event[user]) { events = append(events, ev.Type) })
	defer unsub()

	if _, err := tr.StashID(ctx, "u1", user{ID: "u1", Name: "Alice"}); err != nil {
		t.Fatalf("stash: %v", err)
	}
	if err := tr.Toss(ctx, "u1", true); err != nil {
		t.Fatalf("toss: %v", err)
	}

	if len(events) != 2 || events[0] != EventStash || events[1] != EventToss {
		t.Fatalf("expected [stash toss], got %v", events)
	}
}

func TestTreeUniqueIndexViolationPropagates(t *testing.T) {
	ctx := context.Background()
	tr := New[user](memory.New[user]())
	defer tr.Dispose()

	idx := index.NewMemory[string]("name", true)
	AddIndex[user, string](tr, idx, func(u user) (string, bool) { return u.Name, true })

	if _, err := tr.StashID(ctx, "u1", user{ID: "u1", Name: "Alice"}); err != nil {
		t.Fatalf("stash u1: %v", err)
	}
	_, err := tr.StashID(ctx, "u2", user{ID: "u2", Name: "Alice"})
	if !errors.Is(err, acornerr.ErrUniqueConstraintViolation) {
		t.Fatalf("expected unique constraint violation, got %v", err)
	}
}

func TestTreeNonUniqueIndexLookup(t *testing.T) {
	ctx := context.Background()
	tr := New[user](memory.New[user]())
	defer tr.Dispose()

	idx := index.NewMemory[string]("name", false)
	AddIndex[user, string](tr, idx, func(u user) (string, bool) { return u.Name, true })

	if _, err := tr.StashID(ctx, "u1", user{ID: "u1", Name: "Alice"}); err != nil {
		t.Fatalf("stash u1: %v", err)
	}
	if _, err := tr.StashID(ctx, "u2", user{ID: "u2", Name: "Alice"}); err != nil {
		t.Fatalf("stash u2: %v", err)
	}

	ids := idx.Lookup("Alice")
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids indexed under Alice, got %v", ids)
	}

	if err := tr.Toss(ctx, "u1", true); err != nil {
		t.Fatalf("toss: %v", err)
	}
	ids = idx.Lookup("Alice")
	if len(ids) != 1 || ids[0] != "u2" {
		t.Fatalf("expected only u2 indexed after toss, got %v", ids)
	}
}

func TestTreeExportChangesSince(t *testing.T) {
	ctx := context.Background()
	tr := New[user](memory.New[user]())
	defer tr.Dispose()

	if _, err := tr.StashID(ctx, "u1", user{ID: "u1", Name: "Alice"}); err != nil {
		t.Fatalf("stash: %v", err)
	}
	cutoff := time.Now().UTC()
	time.Sleep(time.Millisecond)
	if _, err := tr.StashID(ctx, "u2", user{ID: "u2", Name: "Bob"}); err != nil {
		t.Fatalf("stash: %v", err)
	}

	changes, err := tr.ExportChangesSince(ctx, cutoff)
	if err != nil {
		t.Fatalf("export since: %v", err)
	}
	if len(changes) != 1 || changes[0].ID != "u2" {
		t.Fatalf("expected only u2 in delta, got %+v", changes)
	}
}

func TestTreeExportDeltaAdvancesWatermarkBeforeDelivery(t *testing.T) {
	ctx := context.Background()
	tr := New[user](memory.New[user]())
	defer tr.Dispose()

	if _, err := tr.StashID(ctx, "u1", user{ID: "u1", Name: "Alice"}); err != nil {
		t.Fatalf("stash: %v", err)
	}

	first, err := tr.ExportDeltaChanges(ctx)
	if err != nil {
		t.Fatalf("delta 1: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 change in first delta, got %d", len(first))
	}

	// A second delta call immediately after, with no intervening
	// writes, must be empty: the watermark already moved past u1 when
	// the first call was made, regardless of whether the caller
	// finished "delivering" it.
	second, err := tr.ExportDeltaChanges(ctx)
	if err != nil {
		t.Fatalf("delta 2: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected empty second delta, got %+v", second)
	}
}

func TestTreeStashDeniedByPolicySuppressesEvent(t *testing.T) {
	ctx := context.Background()

	log := ledger.NewMemoryLog(nil)
	denyAll := ledger.Func{
		PolicyName:     "DenyAllPolicy",
		PolicyPriority: 10,
		PolicyTypeID:   "test.denyall",
		EvalFunc:       func(any) (bool, string) { return false, "all writes denied" },
	}
	if _, err := log.Append(denyAll, time.Now().UTC().Add(-time.Hour)); err != nil {
		t.Fatalf("append policy: %v", err)
	}
	engine := ledger.NewGovernedEngine(log, 1, false)

	back := memory.New[user]()
	back.AddRoot(root.NewPolicyEnforcement(engine))
	tr := New[user](back)
	defer tr.Dispose()

	var events []EventType
	unsub := tr.Subscribe(func(ev Event[user]) { events = append(events, ev.Type) })
	defer unsub()

	_, err := tr.StashID(ctx, "u1", user{ID: "u1", Name: "Alice"})
	if !errors.Is(err, acornerr.ErrPolicyViolation) {
		t.Fatalf("expected policy violation, got %v", err)
	}
	if !strings.Contains(err.Error(), "DenyAllPolicy") {
		t.Fatalf("expected error to name the denying policy, got %v", err)
	}

	if len(events) != 0 {
		t.Fatalf("expected no event for a denied stash, got %v", events)
	}
	if _, ok, _ := tr.Crack(ctx, "u1"); ok {
		t.Fatalf("expected denied stash to leave no document behind")
	}
}

// corruptTrunk fails every Crack with a deserialization error, standing
// in for a backend whose stored blob no longer decodes.
type corruptTrunk struct {
	trunk.Trunk[user]
}

func (corruptTrunk) Crack(context.Context, string) (nut.Nut[user], bool, error) {
	return nut.Nut[user]{}, false, fmt.Errorf("decode blob: %w", acornerr.ErrDeserialization)
}

func (corruptTrunk) Capabilities() trunk.Capabilities { return trunk.Capabilities{} }
func (corruptTrunk) Dispose() error                   { return nil }

func TestTreeCrackTreatsUndecodableDocumentAsAbsent(t *testing.T) {
	tr := New[user](corruptTrunk{})
	defer tr.Dispose()

	_, ok, err := tr.Crack(context.Background(), "u1")
	if err != nil {
		t.Fatalf("expected undecodable document to read as absent, got error %v", err)
	}
	if ok {
		t.Fatalf("expected undecodable document to be reported absent")
	}
}

func TestTreeDisposeIsIdempotent(t *testing.T) {
	tr := New[user](memory.New[user]())
	if err := tr.Dispose(); err != nil {
		t.Fatalf("dispose 1: %v", err)
	}
	if err := tr.Dispose(); err != nil {
		t.Fatalf("dispose 2: %v", err)
	}
}
