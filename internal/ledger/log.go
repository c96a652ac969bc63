package ledger

import (
	"sort"
	"sync"
	"time"
)

// Log is the abstract, thread-safe policy ledger. Writes are serialized.
// MemoryLog lets readers run concurrently; FileLog serializes reads and
// writes alike under a single mutex.
type Log interface {
	Append(policy Policy, effectiveAt time.Time) (*Seal, error)
	GetPolicyAt(ts time.Time) (Policy, bool)
	GetAllSeals() []*Seal
	VerifyChain() error
}

// ActivePolicies derives the set of distinct named policies whose most
// recent seal (by effective_at, <= now) exists in the log: the "every
// active policy" view PolicyEnforcement evaluates. As now advances this
// view can only grow or replace entries with later versions, never
// shrink, which is the monotonicity callers rely on; the single-entry
// GetPolicyAt is the wrong primitive for that because it never holds
// more than one policy at a time.
func ActivePolicies(log Log, now time.Time) []Policy {
	seals := log.GetAllSeals()
	latest := make(map[string]*Seal)
	for _, s := range seals {
		if s.EffectiveAt.After(now) {
			continue
		}
		cur, ok := latest[s.PolicyName]
		if !ok || s.EffectiveAt.After(cur.EffectiveAt) || (s.EffectiveAt.Equal(cur.EffectiveAt) && s.Index > cur.Index) {
			latest[s.PolicyName] = s
		}
	}

	names := make([]string, 0, len(latest))
	for name := range latest {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Policy, 0, len(names))
	for _, name := range names {
		out = append(out, latest[name].Policy)
	}
	return out
}

// MemoryLog is an entirely in-memory Log. Its verification result is
// cached until the next Append.
type MemoryLog struct {
	mu     sync.RWMutex
	signer Signer
	seals  []*Seal

	verifyCached bool
	verifyErr    error
}

// NewMemoryLog builds an empty in-memory log using the given signer.
func NewMemoryLog(signer Signer) *MemoryLog {
	if signer == nil {
		signer = SHA256Signer{}
	}
	return &MemoryLog{signer: signer}
}

func (l *MemoryLog) Append(policy Policy, effectiveAt time.Time) (*Seal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var previous *Seal
	if len(l.seals) > 0 {
		previous = l.seals[len(l.seals)-1]
	}

	seal, err := NewSeal(len(l.seals), policy, effectiveAt, previous, l.signer, [32]byte{})
	if err != nil {
		return nil, err
	}
	l.seals = append(l.seals, seal)
	l.verifyCached = false
	return seal, nil
}

func (l *MemoryLog) GetPolicyAt(ts time.Time) (Policy, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx := sort.Search(len(l.seals), func(i int) bool {
		return l.seals[i].EffectiveAt.After(ts)
	})
	if idx == 0 {
		return nil, false
	}
	return l.seals[idx-1].Policy, true
}

func (l *MemoryLog) GetAllSeals() []*Seal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Seal, len(l.seals))
	copy(out, l.seals)
	return out
}

func (l *MemoryLog) VerifyChain() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.verifyCached {
		return l.verifyErr
	}

	var previous *Seal
	for _, s := range l.seals {
		if err := s.VerifyLink(previous, l.signer); err != nil {
			l.verifyErr = err
			l.verifyCached = true
			return err
		}
		previous = s
	}
	l.verifyErr = nil
	l.verifyCached = true
	return nil
}

// InvalidateChainCache forces the next VerifyChain call to recompute.
func (l *MemoryLog) InvalidateChainCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verifyCached = false
}
