package trunk

import (
	"context"
	"sync"
	"testing"
	"time"
)

// recordingFlush collects every batch a Base hands it.
type recordingFlush struct {
	mu      sync.Mutex
	batches [][]PendingWrite
}

func (r *recordingFlush) flush(_ context.Context, batch []PendingWrite) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make([]PendingWrite, len(batch))
	copy(copied, batch)
	r.batches = append(r.batches, copied)
	return nil
}

func (r *recordingFlush) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func TestBaseFlushDrainsBuffer(t *testing.T) {
	rec := &recordingFlush{}
	b := NewBase[string](TypeMemory, 100, time.Hour, rec.flush)
	defer b.Dispose()

	b.Enqueue(PendingWrite{ID: "a", Blob: []byte("1")})
	b.Enqueue(PendingWrite{ID: "b", Blob: []byte("2")})
	if b.PendingCount() != 2 {
		t.Fatalf("expected 2 buffered writes, got %d", b.PendingCount())
	}

	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if b.PendingCount() != 0 {
		t.Fatalf("expected empty buffer after flush, got %d", b.PendingCount())
	}
	if rec.total() != 2 {
		t.Fatalf("expected 2 writes delivered, got %d", rec.total())
	}
}

func TestBaseThresholdTriggersFlush(t *testing.T) {
	rec := &recordingFlush{}
	b := NewBase[string](TypeMemory, 3, time.Hour, rec.flush)
	defer b.Dispose()

	for i, id := range []string{"a", "b", "c"} {
		b.Enqueue(PendingWrite{ID: id, Version: int64(i)})
	}

	// The threshold flush runs on its own goroutine; give it a moment.
	deadline := time.Now().Add(time.Second)
	for rec.total() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if rec.total() != 3 {
		t.Fatalf("expected threshold to flush all 3 writes, got %d", rec.total())
	}
}

func TestBaseTickerFlushes(t *testing.T) {
	rec := &recordingFlush{}
	b := NewBase[string](TypeMemory, 100, 10*time.Millisecond, rec.flush)
	defer b.Dispose()

	b.Enqueue(PendingWrite{ID: "a"})

	deadline := time.Now().Add(time.Second)
	for rec.total() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if rec.total() != 1 {
		t.Fatalf("expected ticker to flush the buffered write, got %d", rec.total())
	}
}

func TestBaseDisposeFlushesAndIsIdempotent(t *testing.T) {
	rec := &recordingFlush{}
	b := NewBase[string](TypeMemory, 100, time.Hour, rec.flush)

	b.Enqueue(PendingWrite{ID: "a"})
	if err := b.Dispose(); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if rec.total() != 1 {
		t.Fatalf("expected dispose to flush the buffered write, got %d", rec.total())
	}
	if err := b.Dispose(); err != nil {
		t.Fatalf("second dispose: %v", err)
	}
	if rec.total() != 1 {
		t.Fatalf("expected second dispose not to re-deliver, got %d", rec.total())
	}
}

func TestBaseEmptyFlushSkipsBackend(t *testing.T) {
	rec := &recordingFlush{}
	b := NewBase[string](TypeMemory, 100, time.Hour, rec.flush)
	defer b.Dispose()

	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(rec.batches) != 0 {
		t.Fatalf("expected no backend call for an empty buffer, got %d", len(rec.batches))
	}
}
