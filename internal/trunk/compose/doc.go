// Package compose implements Trunk[T] wrappers that compose one or more
// backing trunks into a single Trunk[T], rather than storing documents
// themselves: Cached adds a bounded, TTL'd read/write cache in front of
// a backing trunk; NearFar chains a near/far/backing tier with a
// configurable write policy; Tiered migrates aging documents from a hot
// trunk to a cold one on a background schedule; Resilient adds retry,
// backoff, and a circuit breaker around a primary trunk with an optional
// fallback. All four satisfy trunk.Trunk[T] so they can be handed to
// tree.New exactly like any concrete backend.
package compose
