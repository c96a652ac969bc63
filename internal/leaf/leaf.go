// Package leaf implements AcornDB's replication events: the Leaf
// envelope that crosses the wire between Trees, the anti-loop
// propagation rules that keep a mesh of syncing Trees from replicating
// the same change forever, and the dedup cache backing those rules.
package leaf

import "time"

// ChangeType distinguishes an upsert from a delete on replication, since
// a Leaf carries no separate tombstone type.
type ChangeType string

const (
	ChangeUpsert ChangeType = "upsert"
	ChangeDelete ChangeType = "delete"
)

// Leaf is one replicated change, exchanged between Trees during sync or
// pushed eagerly over a live subscription.
type Leaf struct {
	LeafID         string
	OriginTreeID   string
	Type           ChangeType
	Key            string
	Data           []byte
	Timestamp      time.Time
	HopCount       int
	VisitedTreeIDs []string
}

// Visited reports whether treeID has already propagated this leaf.
func (l Leaf) Visited(treeID string) bool {
	for _, v := range l.VisitedTreeIDs {
		if v == treeID {
			return true
		}
	}
	return false
}

// Hop returns a copy of l with hopCount incremented and treeID appended
// to the visited set, ready to forward to the next tree in the mesh.
func (l Leaf) Hop(treeID string) Leaf {
	visited := make([]string, len(l.VisitedTreeIDs), len(l.VisitedTreeIDs)+1)
	copy(visited, l.VisitedTreeIDs)
	visited = append(visited, treeID)

	next := l
	next.HopCount++
	next.VisitedTreeIDs = visited
	return next
}

// Sink receives propagated leaves, e.g. a Tree's local apply path or a
// transport adapter forwarding to a remote node.
type Sink interface {
	Accept(leaf Leaf) error
}
