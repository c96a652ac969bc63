package tree

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/acorndb/acorndb/internal/leaf"
	"github.com/acorndb/acorndb/internal/nut"
	"github.com/acorndb/acorndb/pkg/metrics"
)

// Entangle registers sink as a replication target representing the
// remote tree remoteTreeID. Every locally-committed Stash/Toss is
// pushed to it, and it is excluded when re-propagating a leaf that
// originated at remoteTreeID (so a leaf never bounces straight back to
// where it came from). The returned handle is passed to Detangle.
func (t *Tree[T]) Entangle(remoteTreeID string, sink leaf.Sink) string {
	t.sinkMu.Lock()
	defer t.sinkMu.Unlock()

	handle := fmt.Sprintf("%s/%d", remoteTreeID, len(t.sinks))
	t.sinks[handle] = sinkHandle{remoteTreeID: remoteTreeID, sink: sink}
	return handle
}

// Detangle removes a previously entangled sink.
func (t *Tree[T]) Detangle(handle string) {
	t.sinkMu.Lock()
	defer t.sinkMu.Unlock()
	delete(t.sinks, handle)
}

// EntangleBroker builds a leaf.Broker standing in for the remote tree
// remoteTreeID and entangles it, the way a single remote peer that
// actually fans out to several local subscriber channels (one per
// downstream transport connection) gets entangled once rather than
// once per channel. The Broker runs the receiving side's anti-loop
// checks on remoteTreeID's behalf before fanning out; the returned
// Broker is where those channels Subscribe, and the handle is passed
// to Detangle to tear the whole thing down together.
func (t *Tree[T]) EntangleBroker(remoteTreeID string) (*leaf.Broker, string) {
	b := leaf.NewBroker(remoteTreeID)
	return b, t.Entangle(remoteTreeID, b)
}

// propagateLocal builds a hop-0 Leaf for a locally committed mutation
// and pushes it to every entangled sink. A delivery failure to one
// sink never blocks delivery to the others.
func (t *Tree[T]) propagateLocal(changeType leaf.ChangeType, n nut.Nut[T]) {
	data, err := json.Marshal(n)
	if err != nil {
		t.logger.Warn().Err(err).Msg("acorndb: failed to marshal leaf payload")
		return
	}

	l := leaf.Leaf{
		LeafID:       fmt.Sprintf("%s/%d", t.treeID, t.leafNo.Add(1)),
		OriginTreeID: t.treeID,
		Type:         changeType,
		Key:          n.ID,
		Data:         data,
		Timestamp:    time.Now().UTC(),
		HopCount:     0,
	}
	t.dedup.Seen(l.LeafID)

	t.sinkMu.RLock()
	handles := make([]sinkHandle, 0, len(t.sinks))
	for _, h := range t.sinks {
		handles = append(handles, h)
	}
	t.sinkMu.RUnlock()

	for _, h := range handles {
		if err := h.sink.Accept(l); err != nil {
			t.logger.Warn().Err(err).Str("leaf_id", l.LeafID).Msg("acorndb: sink delivery failed")
			continue
		}
		metrics.LeavesSentTotal.Inc()
	}
}

// ReceiveLeaf applies an incoming replicated leaf, working through the
// anti-loop checks in order: a leaf looped back to its own origin,
// already visited by this tree, past the hop cap, or already seen is
// dropped. Anything else is applied locally (without re-triggering a
// fresh propagateLocal) and re-broadcast to every sink except the one
// the leaf is flowing back toward.
func (t *Tree[T]) ReceiveLeaf(ctx context.Context, l leaf.Leaf) error {
	if l.OriginTreeID == t.treeID || l.Visited(t.treeID) || l.HopCount > leaf.MaxHopCount {
		metrics.LeavesReceivedTotal.WithLabelValues("dropped").Inc()
		return nil
	}
	if t.dedup.Seen(l.LeafID) {
		metrics.LeavesReceivedTotal.WithLabelValues("deduped").Inc()
		return nil
	}

	if err := t.applyLeaf(ctx, l); err != nil {
		metrics.LeavesReceivedTotal.WithLabelValues("failed").Inc()
		return err
	}
	metrics.LeavesReceivedTotal.WithLabelValues("applied").Inc()

	hopped := l.Hop(t.treeID)

	t.sinkMu.RLock()
	handles := make([]sinkHandle, 0, len(t.sinks))
	for _, h := range t.sinks {
		if h.remoteTreeID == l.OriginTreeID {
			continue
		}
		handles = append(handles, h)
	}
	t.sinkMu.RUnlock()

	for _, h := range handles {
		if err := h.sink.Accept(hopped); err != nil {
			t.logger.Warn().Err(err).Str("leaf_id", hopped.LeafID).Msg("acorndb: re-propagation failed")
			continue
		}
		metrics.LeavesSentTotal.Inc()
	}
	return nil
}

func (t *Tree[T]) applyLeaf(ctx context.Context, l leaf.Leaf) error {
	switch l.Type {
	case leaf.ChangeDelete:
		return t.Toss(ctx, l.Key, false)
	default:
		var n nut.Nut[T]
		if err := json.Unmarshal(l.Data, &n); err != nil {
			return fmt.Errorf("acorndb: decode leaf payload: %w", err)
		}
		return t.Squabble(ctx, l.Key, n, UseJudge)
	}
}

// ExportChanges returns every live Nut currently known to the trunk.
func (t *Tree[T]) ExportChanges(ctx context.Context) ([]nut.Nut[T], error) {
	changes, err := t.trunk.ExportChanges(ctx)
	if err != nil {
		return nil, err
	}
	return filterExpired(changes), nil
}

// ExportChangesSince returns every live Nut whose Timestamp is strictly
// after ts.
func (t *Tree[T]) ExportChangesSince(ctx context.Context, ts time.Time) ([]nut.Nut[T], error) {
	all, err := t.ExportChanges(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]nut.Nut[T], 0, len(all))
	for _, n := range all {
		if n.Timestamp.After(ts) {
			out = append(out, n)
		}
	}
	return out, nil
}

// ExportDeltaChanges returns every live Nut changed since the last
// recorded sync watermark. The watermark advances immediately, before
// the caller has necessarily finished delivering the batch: a crash
// mid-delivery loses at most one batch rather than replaying it on
// every retry.
func (t *Tree[T]) ExportDeltaChanges(ctx context.Context) ([]nut.Nut[T], error) {
	t.syncMu.Lock()
	since := t.lastSync
	t.lastSync = time.Now().UTC()
	t.syncMu.Unlock()
	return t.ExportChangesSince(ctx, since)
}

// MarkSyncCompleted lets a caller that manages its own delivery
// confirmation explicitly advance the watermark to now, independent of
// ExportDeltaChanges's own auto-advance.
func (t *Tree[T]) MarkSyncCompleted() {
	t.syncMu.Lock()
	t.lastSync = time.Now().UTC()
	t.syncMu.Unlock()
}

func filterExpired[T any](in []nut.Nut[T]) []nut.Nut[T] {
	now := time.Now().UTC()
	out := make([]nut.Nut[T], 0, len(in))
	for _, n := range in {
		if !n.Expired(now) {
			out = append(out, n)
		}
	}
	return out
}
