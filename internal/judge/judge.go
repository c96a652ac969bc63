// Package judge implements AcornDB's conflict resolution: the function a
// Tree calls when two versions of the same document collide during sync
// or a local squabble, each one required to be deterministic and to
// return one of its two inputs verbatim, never a synthesized third value.
package judge

import "github.com/acorndb/acorndb/internal/nut"

// Judge picks the winner between two competing versions of the same
// document. Implementations must be pure and total: for any (a, b) they
// must always return the same winner, and the winner must be either a
// or b.
type Judge[T any] func(a, b nut.Nut[T]) nut.Nut[T]

// Timestamp is the default judge: the later Timestamp wins; ties break
// on the higher Version, then lexicographically smaller OriginNodeID so
// every replica reaches the same verdict without additional state.
func Timestamp[T any](a, b nut.Nut[T]) nut.Nut[T] {
	if a.Timestamp.After(b.Timestamp) {
		return a
	}
	if b.Timestamp.After(a.Timestamp) {
		return b
	}
	if a.Version != b.Version {
		if a.Version > b.Version {
			return a
		}
		return b
	}
	if a.OriginNodeID <= b.OriginNodeID {
		return a
	}
	return b
}

// Version picks the higher Version field outright, falling back to
// Timestamp's tie-break rule when versions are equal.
func Version[T any](a, b nut.Nut[T]) nut.Nut[T] {
	if a.Version != b.Version {
		if a.Version > b.Version {
			return a
		}
		return b
	}
	return Timestamp(a, b)
}

// Custom adapts a caller-supplied predicate — "does a win over b?" —
// into a Judge. The predicate must be consistent (pick(a,b) == !pick(b,a)
// for a != b) for the resulting Judge to be a valid total order.
func Custom[T any](prefer func(a, b nut.Nut[T]) bool) Judge[T] {
	return func(a, b nut.Nut[T]) nut.Nut[T] {
		if prefer(a, b) {
			return a
		}
		return b
	}
}
