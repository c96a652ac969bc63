package trunk

import (
	"context"
	"sync"
	"time"

	"github.com/acorndb/acorndb/internal/nut"
	"github.com/acorndb/acorndb/internal/root"
	"github.com/acorndb/acorndb/internal/serial"
	"github.com/acorndb/acorndb/pkg/log"
	"github.com/acorndb/acorndb/pkg/metrics"
)

// DefaultBatchThreshold and DefaultFlushInterval are the reference
// batching defaults.
const (
	DefaultBatchThreshold = 64
	DefaultFlushInterval  = 2 * time.Second
)

// PendingWrite is one buffered mutation awaiting flush. Timestamp and
// ExpiresAt are unix microseconds; ExpiresAt zero means no expiry.
type PendingWrite struct {
	ID        string
	Blob      []byte
	Timestamp int64
	Version   int64
	ExpiresAt int64
	Deleted   bool
}

// FlushFunc durably applies a batch of pending writes; it is supplied
// by the concrete trunk embedding Base, since only that trunk knows how
// to talk to its actual backend.
type FlushFunc func(ctx context.Context, batch []PendingWrite) error

// Base is the embeddable machinery shared by every concrete Trunk:
// a pending-write buffer flushed either when it crosses batchThreshold
// or on a ticker, a root pipeline every blob passes through, and a
// JSON serializer turning Nut[T] into the bytes the pipeline and the
// backend actually handle. Dispose stops the ticker and flushes
// synchronously, exactly once.
type Base[T any] struct {
	mu             sync.Mutex
	pending        []PendingWrite
	batchThreshold int
	flush          FlushFunc
	trunkType      TrunkType

	sem    chan struct{}
	ticker *time.Ticker
	stopCh chan struct{}

	disposeOnce sync.Once

	pipeline   *root.Pipeline
	serializer serial.Serializer[nut.Nut[T]]
}

// NewBase builds a Base with the given batching parameters. A
// non-positive batchThreshold or flushInterval falls back to the
// package defaults.
func NewBase[T any](trunkType TrunkType, batchThreshold int, flushInterval time.Duration, flush FlushFunc) *Base[T] {
	if batchThreshold <= 0 {
		batchThreshold = DefaultBatchThreshold
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}

	b := &Base[T]{
		batchThreshold: batchThreshold,
		flush:          flush,
		trunkType:      trunkType,
		sem:            make(chan struct{}, 1),
		ticker:         time.NewTicker(flushInterval),
		stopCh:         make(chan struct{}),
		pipeline:       root.NewPipeline(),
		serializer:     serial.NewJSON[nut.Nut[T]](),
	}

	go b.run()
	return b
}

func (b *Base[T]) run() {
	for {
		select {
		case <-b.ticker.C:
			if err := b.Flush(context.Background()); err != nil {
				log.Logger.Warn().Err(err).Msg("trunk: periodic flush failed")
			}
		case <-b.stopCh:
			return
		}
	}
}

// Pipeline exposes the root pipeline for Roots/AddRoot/RemoveRoot.
func (b *Base[T]) Pipeline() *root.Pipeline { return b.pipeline }

// Serializer exposes the Nut[T] JSON codec shared across the pipeline
// and concrete backend.
func (b *Base[T]) Serializer() serial.Serializer[nut.Nut[T]] { return b.serializer }

// Enqueue buffers pw for the next flush, triggering an immediate
// asynchronous flush once the buffer reaches batchThreshold.
func (b *Base[T]) Enqueue(pw PendingWrite) {
	b.mu.Lock()
	b.pending = append(b.pending, pw)
	pending := len(b.pending)
	overThreshold := pending >= b.batchThreshold
	b.mu.Unlock()
	metrics.TrunkPendingWrites.WithLabelValues(string(b.trunkType)).Set(float64(pending))

	if overThreshold {
		go func() {
			if err := b.Flush(context.Background()); err != nil {
				log.Logger.Warn().Err(err).Msg("trunk: threshold flush failed")
			}
		}()
	}
}

// Flush applies every buffered write, serialized against concurrent
// flushes by a size-1 semaphore so the ticker, a threshold trigger, and
// an explicit Dispose never race each other.
func (b *Base[T]) Flush(ctx context.Context) error {
	b.sem <- struct{}{}
	defer func() { <-b.sem }()

	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()
	metrics.TrunkPendingWrites.WithLabelValues(string(b.trunkType)).Set(0)

	if len(batch) == 0 {
		return nil
	}
	timer := metrics.NewTimer()
	err := b.flush(ctx, batch)
	timer.ObserveDuration(metrics.TrunkFlushDuration)
	metrics.TrunkFlushesTotal.Inc()
	return err
}

// PendingCount reports how many writes are currently buffered, for
// tests and metrics.
func (b *Base[T]) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Dispose stops the flush ticker and synchronously flushes whatever
// remains buffered. Safe to call more than once.
func (b *Base[T]) Dispose() error {
	var err error
	b.disposeOnce.Do(func() {
		close(b.stopCh)
		b.ticker.Stop()
		err = b.Flush(context.Background())
	})
	return err
}
