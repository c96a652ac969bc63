package leaf

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/acorndb/acorndb/pkg/log"
	"github.com/acorndb/acorndb/pkg/metrics"
)

// MaxHopCount is the reference bound on how many trees a leaf may cross
// before the mesh refuses to propagate it further.
const MaxHopCount = 10

// subscriberBuffer bounds how many pending leaves a slow subscriber can
// accumulate before new publishes to it are dropped rather than
// blocking the publisher.
const subscriberBuffer = 256

// Broker implements Sink on behalf of one receiving tree and fans the
// leaves that survive its anti-loop checks out to subscribers —
// several downstream transports (websocket clients, a gRPC stream
// fan-out, etc.) sharing one entangled slot. A leaf that already
// visited the represented tree, that has exceeded MaxHopCount, that
// originated at that tree (a true loopback), or that was already seen
// is dropped rather than re-propagated. Tree.EntangleBroker builds one
// scoped to the remote peer's tree id; a peer that only ever needs one
// channel can implement Sink itself instead.
type Broker struct {
	mu          sync.RWMutex
	selfTreeID  string
	dedup       *DedupCache
	subscribers map[string]chan Leaf
	logger      zerolog.Logger
}

// NewBroker builds a Broker for the tree identified by selfTreeID.
func NewBroker(selfTreeID string) *Broker {
	return &Broker{
		selfTreeID:  selfTreeID,
		dedup:       NewDedupCache(DefaultDedupCapacity),
		subscribers: make(map[string]chan Leaf),
		logger:      log.WithComponent("leaf-broker").With().Str("tree_id", selfTreeID).Logger(),
	}
}

// Subscribe registers a channel that receives every leaf the broker
// decides to propagate, keyed by an arbitrary subscriber id (so
// Unsubscribe can target it later).
func (b *Broker) Subscribe(subscriberID string) <-chan Leaf {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Leaf, subscriberBuffer)
	b.subscribers[subscriberID] = ch
	return ch
}

// Unsubscribe removes and closes a previously registered subscriber
// channel.
func (b *Broker) Unsubscribe(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[subscriberID]; ok {
		delete(b.subscribers, subscriberID)
		close(ch)
	}
}

// Accept implements Sink: it runs a leaf through the anti-loop checks
// and, if it survives, hops it to this tree and fans it out. Dropping a
// leaf for anti-loop reasons is expected mesh traffic, not a delivery
// failure, so Accept always returns nil; Subscribe is how a caller
// observes what actually got through.
func (b *Broker) Accept(l Leaf) error {
	if l.OriginTreeID == b.selfTreeID {
		b.logger.Debug().Str("leaf_id", l.LeafID).Msg("dropping self-originated leaf")
		return nil
	}
	if l.Visited(b.selfTreeID) {
		b.logger.Debug().Str("leaf_id", l.LeafID).Msg("dropping already-visited leaf")
		return nil
	}
	if l.HopCount > MaxHopCount {
		b.logger.Warn().Str("leaf_id", l.LeafID).Int("hops", l.HopCount).Msg("dropping leaf past max hop count")
		return nil
	}
	if b.dedup.Seen(l.LeafID) {
		return nil
	}

	hopped := l.Hop(b.selfTreeID)
	b.broadcast(hopped)
	return nil
}

// broadcast fans leaf out to every subscriber without blocking; a
// subscriber whose buffer is full simply misses this leaf, the same
// non-blocking drop-on-full policy the reference event broker uses.
func (b *Broker) broadcast(l Leaf) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- l:
		default:
			metrics.LeavesDroppedTotal.Inc()
			b.logger.Warn().Str("subscriber", id).Str("leaf_id", l.LeafID).Msg("subscriber buffer full, dropping leaf")
		}
	}
}
