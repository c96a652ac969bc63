package tree

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/acorndb/acorndb/internal/leaf"
	"github.com/acorndb/acorndb/internal/trunk/appendlog"
	"github.com/acorndb/acorndb/internal/trunk/memory"
)

// funcSink adapts a plain function to leaf.Sink, letting tests wire a
// Tree's outgoing leaves straight into another Tree's ReceiveLeaf
// without a real transport.
type funcSink func(leaf.Leaf) error

func (f funcSink) Accept(l leaf.Leaf) error { return f(l) }

func entangleMesh(ctx context.Context, trees map[string]*Tree[user]) {
	for fromID, from := range trees {
		for toID, to := range trees {
			if fromID == toID {
				continue
			}
			to := to
			from.Entangle(toID, funcSink(func(l leaf.Leaf) error {
				return to.ReceiveLeaf(ctx, l)
			}))
		}
	}
}

func TestTreeMeshPropagatesStashToEveryPeer(t *testing.T) {
	ctx := context.Background()
	a := New[user](memory.New[user]())
	b := New[user](memory.New[user]())
	c := New[user](memory.New[user]())
	defer a.Dispose()
	defer b.Dispose()
	defer c.Dispose()

	entangleMesh(ctx, map[string]*Tree[user]{"a": a, "b": b, "c": c})

	if _, err := a.StashID(ctx, "x", user{ID: "x", Name: "v1"}); err != nil {
		t.Fatalf("stash on a: %v", err)
	}

	for name, tr := range map[string]*Tree[user]{"b": b, "c": c} {
		got, ok, err := tr.Crack(ctx, "x")
		if err != nil || !ok {
			t.Fatalf("%s did not receive x: ok=%v err=%v", name, ok, err)
		}
		if got.Payload.Name != "v1" {
			t.Fatalf("%s got wrong payload: %+v", name, got.Payload)
		}
	}
}

func TestTreeReceiveLeafDropsLoopback(t *testing.T) {
	ctx := context.Background()
	a := New[user](memory.New[user]())
	defer a.Dispose()

	l := leaf.Leaf{LeafID: "l1", OriginTreeID: a.TreeID(), Type: leaf.ChangeUpsert, Key: "x"}
	if err := a.ReceiveLeaf(ctx, l); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if _, ok, _ := a.Crack(ctx, "x"); ok {
		t.Fatalf("expected self-originated leaf not to apply")
	}
}

func TestTreeReceiveLeafDropsPastHopCount(t *testing.T) {
	ctx := context.Background()
	a := New[user](memory.New[user]())
	defer a.Dispose()

	l := leaf.Leaf{LeafID: "l1", OriginTreeID: "other", Type: leaf.ChangeUpsert, Key: "x", HopCount: leaf.MaxHopCount + 1}
	if err := a.ReceiveLeaf(ctx, l); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if _, ok, _ := a.Crack(ctx, "x"); ok {
		t.Fatalf("expected leaf past max hop count not to apply")
	}
}

func TestTreeEntangleBrokerFansOutToSubscribers(t *testing.T) {
	ctx := context.Background()
	a := New[user](memory.New[user]())
	defer a.Dispose()

	broker, handle := a.EntangleBroker("remote")
	defer a.Detangle(handle)

	ch1 := broker.Subscribe("conn-1")
	ch2 := broker.Subscribe("conn-2")
	defer broker.Unsubscribe("conn-1")
	defer broker.Unsubscribe("conn-2")

	if _, err := a.StashID(ctx, "x", user{ID: "x", Name: "v1"}); err != nil {
		t.Fatalf("stash: %v", err)
	}

	for name, ch := range map[string]<-chan leaf.Leaf{"conn-1": ch1, "conn-2": ch2} {
		select {
		case l := <-ch:
			if l.Key != "x" {
				t.Fatalf("%s received leaf for wrong key: %+v", name, l)
			}
		default:
			t.Fatalf("%s did not receive the stashed leaf", name)
		}
	}
}

func TestTreeUndoSquabbleRestoresPriorHistoryEntry(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "log.ndjson")
	back, err := appendlog.Open[user](path)
	if err != nil {
		t.Fatalf("open appendlog: %v", err)
	}
	tr := New[user](back)
	defer tr.Dispose()

	if _, err := tr.StashID(ctx, "u1", user{ID: "u1", Name: "v1"}); err != nil {
		t.Fatalf("stash v1: %v", err)
	}
	if err := back.Flush(ctx); err != nil {
		t.Fatalf("flush v1: %v", err)
	}
	if _, err := tr.StashID(ctx, "u1", user{ID: "u1", Name: "v2"}); err != nil {
		t.Fatalf("stash v2: %v", err)
	}
	if err := back.Flush(ctx); err != nil {
		t.Fatalf("flush v2: %v", err)
	}

	if err := tr.UndoSquabble(ctx, "u1"); err != nil {
		t.Fatalf("undo squabble: %v", err)
	}

	got, ok, err := tr.Crack(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("crack: ok=%v err=%v", ok, err)
	}
	if got.Payload.Name != "v1" {
		t.Fatalf("expected restored prior version v1, got %+v", got.Payload)
	}
}
