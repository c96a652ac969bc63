package compose

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/acorndb/acorndb/internal/nut"
	"github.com/acorndb/acorndb/internal/root"
	"github.com/acorndb/acorndb/internal/trunk"
	"github.com/acorndb/acorndb/pkg/acornerr"
	"github.com/acorndb/acorndb/pkg/metrics"
)

// breakerState is the circuit breaker's current position.
type breakerState int

const (
	closed breakerState = iota
	open
	halfOpen
)

// ResilientConfig tunes Resilient's retry/backoff and circuit breaker.
// Name labels the breaker's state gauge; it defaults to "primary".
type ResilientConfig struct {
	Name             string
	MaxRetries       int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	FailureThreshold int           // consecutive transient failures before tripping open
	OpenDuration     time.Duration // how long the breaker stays open before trying half-open
}

// DefaultResilientConfig mirrors a conservative client-library default:
// a handful of retries with capped exponential backoff, tripping after
// five consecutive failures and cooling down for thirty seconds.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		MaxRetries:       3,
		BaseDelay:        50 * time.Millisecond,
		MaxDelay:         2 * time.Second,
		FailureThreshold: 5,
		OpenDuration:     30 * time.Second,
	}
}

// Resilient wraps a primary Trunk with retry, exponential backoff with
// jitter, and a three-state circuit breaker (Closed -> Open -> HalfOpen)
// that trips on repeated acornerr.ErrTransient failures. An optional
// Fallback trunk is consulted while the breaker is open, so reads can
// still be served (e.g. from a local cache trunk) while the primary
// recovers; non-transient errors are never retried and never count
// against the breaker, since they indicate a request that will not
// succeed no matter how many times it is sent.
type Resilient[T any] struct {
	primary  trunk.Trunk[T]
	fallback trunk.Trunk[T]
	cfg      ResilientConfig

	mu               sync.Mutex
	state            breakerState
	consecutiveFails int
	openedAt         time.Time
}

// NewResilient wraps primary with the given config. fallback may be nil.
func NewResilient[T any](primary, fallback trunk.Trunk[T], cfg ResilientConfig) *Resilient[T] {
	if cfg.Name == "" {
		cfg.Name = "primary"
	}
	r := &Resilient[T]{primary: primary, fallback: fallback, cfg: cfg}
	r.publishState()
	return r
}

// publishState mirrors the breaker position into its state gauge
// (0=closed, 1=half-open, 2=open). Caller holds r.mu, except from
// NewResilient before the value escapes.
func (r *Resilient[T]) publishState() {
	var v float64
	switch r.state {
	case open:
		v = 2
	case halfOpen:
		v = 1
	}
	metrics.CircuitBreakerState.WithLabelValues(r.cfg.Name).Set(v)
}

func (r *Resilient[T]) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case closed, halfOpen:
		return true
	default: // open
		if time.Since(r.openedAt) >= r.cfg.OpenDuration {
			r.state = halfOpen
			r.publishState()
			return true
		}
		return false
	}
}

func (r *Resilient[T]) recordSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = closed
	r.consecutiveFails = 0
	r.publishState()
}

func (r *Resilient[T]) recordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == halfOpen {
		r.state = open
		r.openedAt = time.Now()
		r.publishState()
		return
	}
	r.consecutiveFails++
	if r.consecutiveFails >= r.cfg.FailureThreshold {
		r.state = open
		r.openedAt = time.Now()
		r.publishState()
	}
}

func backoffDelay(cfg ResilientConfig, attempt int) time.Duration {
	delay := cfg.BaseDelay << attempt
	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay/2 + jitter
}

// call runs op against the primary, retrying on acornerr.ErrTransient
// with exponential backoff and jitter up to MaxRetries, and updating the
// circuit breaker on the final outcome.
func (r *Resilient[T]) call(ctx context.Context, op func() error) error {
	if !r.allow() {
		return acornerr.ErrCircuitOpen
	}

	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		lastErr = op()
		if lastErr == nil {
			r.recordSuccess()
			return nil
		}
		if !errors.Is(lastErr, acornerr.ErrTransient) {
			return lastErr
		}
		if attempt < r.cfg.MaxRetries {
			select {
			case <-time.After(backoffDelay(r.cfg, attempt)):
			case <-ctx.Done():
				r.recordFailure()
				return ctx.Err()
			}
		}
	}
	r.recordFailure()
	return lastErr
}

func (r *Resilient[T]) Stash(ctx context.Context, n nut.Nut[T]) error {
	err := r.call(ctx, func() error { return r.primary.Stash(ctx, n) })
	if err != nil && r.fallback != nil && errors.Is(err, acornerr.ErrCircuitOpen) {
		return r.fallback.Stash(ctx, n)
	}
	return err
}

func (r *Resilient[T]) Crack(ctx context.Context, id string) (nut.Nut[T], bool, error) {
	var n nut.Nut[T]
	var ok bool
	err := r.call(ctx, func() error {
		var innerErr error
		n, ok, innerErr = r.primary.Crack(ctx, id)
		return innerErr
	})
	if err != nil && r.fallback != nil && errors.Is(err, acornerr.ErrCircuitOpen) {
		return r.fallback.Crack(ctx, id)
	}
	if err != nil {
		return nut.Nut[T]{}, false, err
	}
	return n, ok, nil
}

func (r *Resilient[T]) Toss(ctx context.Context, id string) error {
	err := r.call(ctx, func() error { return r.primary.Toss(ctx, id) })
	if err != nil && r.fallback != nil && errors.Is(err, acornerr.ErrCircuitOpen) {
		return r.fallback.Toss(ctx, id)
	}
	return err
}

func (r *Resilient[T]) CrackAll(ctx context.Context) ([]nut.Nut[T], error) {
	var out []nut.Nut[T]
	err := r.call(ctx, func() error {
		var innerErr error
		out, innerErr = r.primary.CrackAll(ctx)
		return innerErr
	})
	if err != nil && r.fallback != nil && errors.Is(err, acornerr.ErrCircuitOpen) {
		return r.fallback.CrackAll(ctx)
	}
	return out, err
}

func (r *Resilient[T]) GetHistory(ctx context.Context, id string) ([]nut.Nut[T], error) {
	return r.primary.GetHistory(ctx, id)
}

func (r *Resilient[T]) ExportChanges(ctx context.Context) ([]nut.Nut[T], error) {
	return r.primary.ExportChanges(ctx)
}

func (r *Resilient[T]) ImportChanges(ctx context.Context, changes []nut.Nut[T]) error {
	return r.call(ctx, func() error { return r.primary.ImportChanges(ctx, changes) })
}

func (r *Resilient[T]) Capabilities() trunk.Capabilities {
	caps := r.primary.Capabilities()
	caps.TrunkType = trunk.TypeComposed
	return caps
}

func (r *Resilient[T]) Roots() []root.Root     { return r.primary.Roots() }
func (r *Resilient[T]) AddRoot(rt root.Root)   { r.primary.AddRoot(rt) }
func (r *Resilient[T]) RemoveRoot(name string) { r.primary.RemoveRoot(name) }

func (r *Resilient[T]) Dispose() error {
	err := r.primary.Dispose()
	if r.fallback != nil {
		if fErr := r.fallback.Dispose(); err == nil {
			err = fErr
		}
	}
	return err
}

// State reports the breaker's current position, for tests and metrics.
func (r *Resilient[T]) State() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case open:
		return "open"
	case halfOpen:
		return "half-open"
	default:
		return "closed"
	}
}
