package index

import (
	"errors"
	"testing"

	"github.com/acorndb/acorndb/pkg/acornerr"
)

func TestMemoryPutLookup(t *testing.T) {
	idx := NewMemory[int]("age", false)

	if err := idx.Put("a", 30); err != nil {
		t.Fatalf("put a: %v", err)
	}
	if err := idx.Put("b", 30); err != nil {
		t.Fatalf("put b: %v", err)
	}
	if err := idx.Put("c", 40); err != nil {
		t.Fatalf("put c: %v", err)
	}

	got := idx.Lookup(30)
	if len(got) != 2 {
		t.Fatalf("expected 2 ids at age 30, got %v", got)
	}
	if len(idx.Lookup(40)) != 1 {
		t.Fatalf("expected 1 id at age 40")
	}
	if idx.Len() != 3 {
		t.Fatalf("expected 3 indexed ids, got %d", idx.Len())
	}
}

func TestMemoryUniqueConstraint(t *testing.T) {
	idx := NewMemory[string]("email", true)

	if err := idx.Put("a", "x@example.com"); err != nil {
		t.Fatalf("put a: %v", err)
	}
	err := idx.Put("b", "x@example.com")
	if !errors.Is(err, acornerr.ErrUniqueConstraintViolation) {
		t.Fatalf("expected unique constraint violation, got %v", err)
	}

	// Re-assigning the same id to the same value is idempotent, not a
	// violation.
	if err := idx.Put("a", "x@example.com"); err != nil {
		t.Fatalf("re-put same id/value should be fine: %v", err)
	}
}

func TestMemoryUpdateMovesBucket(t *testing.T) {
	idx := NewMemory[int]("score", false)
	if err := idx.Put("a", 1); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := idx.Put("a", 2); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := idx.Lookup(1); len(got) != 0 {
		t.Fatalf("expected old bucket empty, got %v", got)
	}
	if got := idx.Lookup(2); len(got) != 1 {
		t.Fatalf("expected new bucket to hold id, got %v", got)
	}
}

func TestMemoryRemove(t *testing.T) {
	idx := NewMemory[int]("x", false)
	if err := idx.Put("a", 5); err != nil {
		t.Fatalf("put: %v", err)
	}
	idx.Remove("a")
	if idx.Len() != 0 {
		t.Fatalf("expected empty index after remove")
	}
	if got := idx.Lookup(5); len(got) != 0 {
		t.Fatalf("expected empty bucket after remove, got %v", got)
	}
}

func TestMemoryRange(t *testing.T) {
	idx := NewMemory[int]("age", false)
	for id, age := range map[string]int{"a": 10, "b": 20, "c": 30, "d": 40} {
		if err := idx.Put(id, age); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}

	got := idx.Range(15, 35)
	if len(got) != 2 {
		t.Fatalf("expected 2 ids in [15,35], got %v", got)
	}

	min, ok := idx.Min()
	if !ok || min != 10 {
		t.Fatalf("expected min 10, got %v ok=%v", min, ok)
	}
	max, ok := idx.Max()
	if !ok || max != 40 {
		t.Fatalf("expected max 40, got %v ok=%v", max, ok)
	}
}

func TestMemoryRangeEmpty(t *testing.T) {
	idx := NewMemory[int]("age", false)
	if got := idx.Range(0, 10); len(got) != 0 {
		t.Fatalf("expected empty range on empty index, got %v", got)
	}
	if _, ok := idx.Min(); ok {
		t.Fatalf("expected no min on empty index")
	}
}
