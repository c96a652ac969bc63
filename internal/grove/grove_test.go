package grove

import (
	"testing"

	"github.com/acorndb/acorndb/internal/trunk/memory"
	"github.com/acorndb/acorndb/internal/tree"
)

type widget struct {
	ID   string
	Name string
}

func TestGroveRegisterAndGetRoundTrips(t *testing.T) {
	g := New()
	tr := tree.New[widget](memory.New[widget]())
	defer tr.Dispose()

	if err := Register[widget](g, "widget", "primary", tr); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, ok := Get[widget](g, "widget", "primary")
	if !ok {
		t.Fatalf("expected tree to be found")
	}
	if got.TreeID() != tr.TreeID() {
		t.Fatalf("expected same tree id, got %s want %s", got.TreeID(), tr.TreeID())
	}
}

func TestGroveGetWrongTypeMisses(t *testing.T) {
	g := New()
	tr := tree.New[widget](memory.New[widget]())
	defer tr.Dispose()

	if err := Register[widget](g, "widget", "primary", tr); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, ok := Get[int](g, "widget", "primary"); ok {
		t.Fatalf("expected type mismatch to miss")
	}
}

func TestGroveRegisterDuplicateFails(t *testing.T) {
	g := New()
	a := tree.New[widget](memory.New[widget]())
	b := tree.New[widget](memory.New[widget]())
	defer a.Dispose()
	defer b.Dispose()

	if err := Register[widget](g, "widget", "primary", a); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := Register[widget](g, "widget", "primary", b); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestGroveListSortedByKindThenName(t *testing.T) {
	g := New()
	b := tree.New[widget](memory.New[widget]())
	a := tree.New[widget](memory.New[widget]())
	defer a.Dispose()
	defer b.Dispose()

	if err := Register[widget](g, "widget", "b", b); err != nil {
		t.Fatalf("register b: %v", err)
	}
	if err := Register[widget](g, "widget", "a", a); err != nil {
		t.Fatalf("register a: %v", err)
	}

	handles := g.List()
	if len(handles) != 2 {
		t.Fatalf("expected 2 handles, got %d", len(handles))
	}
	if handles[0].Name != "a" || handles[1].Name != "b" {
		t.Fatalf("expected sorted [a b], got %+v", handles)
	}
}

func TestGroveDisposeAllClearsRegistry(t *testing.T) {
	g := New()
	tr := tree.New[widget](memory.New[widget]())

	if err := Register[widget](g, "widget", "primary", tr); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := g.DisposeAll(); err != nil {
		t.Fatalf("dispose all: %v", err)
	}
	if g.Len() != 0 {
		t.Fatalf("expected empty registry after DisposeAll, got %d", g.Len())
	}
	if _, ok := Get[widget](g, "widget", "primary"); ok {
		t.Fatalf("expected tree gone after DisposeAll")
	}
}

func TestGroveUnregisterDoesNotDispose(t *testing.T) {
	g := New()
	tr := tree.New[widget](memory.New[widget]())
	defer tr.Dispose()

	if err := Register[widget](g, "widget", "primary", tr); err != nil {
		t.Fatalf("register: %v", err)
	}
	g.Unregister("widget", "primary")

	if _, ok := Get[widget](g, "widget", "primary"); ok {
		t.Fatalf("expected tree unregistered")
	}
	// tr itself must still be usable; Dispose below (deferred) must not error.
	if tr.Dispose() != nil {
		t.Fatalf("expected disposing an unregistered but live tree to still succeed")
	}
}
