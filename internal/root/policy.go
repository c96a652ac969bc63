package root

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/acorndb/acorndb/internal/ledger"
	"github.com/acorndb/acorndb/pkg/acornerr"
)

// PolicyEnforcement is the governed-ledger-backed root: on write it
// evaluates the payload against every active policy at or above its
// enforcement threshold and fails the stash on the first denial; on
// read it enforces TTL expiry and any tag-access policies before the
// bytes reach the caller. It never transforms the bytes themselves.
type PolicyEnforcement struct {
	sequence int
	engine   *ledger.GovernedEngine

	mu    sync.Mutex
	chain *ChainState // cached chain verdict; nil until the first check or after InvalidateChainCache
}

// NewPolicyEnforcement wires a PolicyEnforcement root to engine, at the
// reference SequencePolicyEnforcement unless overridden with
// WithSequence.
func NewPolicyEnforcement(engine *ledger.GovernedEngine) *PolicyEnforcement {
	return &PolicyEnforcement{sequence: SequencePolicyEnforcement, engine: engine}
}

func (p *PolicyEnforcement) WithSequence(seq int) *PolicyEnforcement {
	p.sequence = seq
	return p
}

func (p *PolicyEnforcement) Name() string  { return "policy-enforcement" }
func (p *PolicyEnforcement) Sequence() int { return p.sequence }

// verifyChainOnce runs the ledger chain check once for this root unless
// InvalidateChainCache is called, caching the verdict on the root and
// recording it on ctx, so later stash/crack calls don't re-verify.
func (p *PolicyEnforcement) verifyChainOnce(ctx *Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.chain == nil {
		err := p.engine.VerifyChain()
		p.chain = &ChainState{Verified: true, CheckedAt: time.Now(), Err: err}
	}
	ctx.ChainState = p.chain
	return p.chain.Err
}

// InvalidateChainCache forces the next stash or crack to re-verify the
// ledger chain instead of trusting the cached verdict.
func (p *PolicyEnforcement) InvalidateChainCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chain = nil
}

// extractPayload pulls the document payload out of a serialized Nut
// envelope so policies judge what the caller stashed, not the envelope
// bookkeeping around it. Bytes that are not an envelope (no "payload"
// key) are evaluated as-is.
func extractPayload(data []byte) (payload any, expiresAt *time.Time, err error) {
	var envelope struct {
		Payload   json.RawMessage `json:"payload"`
		ExpiresAt *time.Time      `json:"expires_at"`
	}
	if jsonErr := json.Unmarshal(data, &envelope); jsonErr == nil && envelope.Payload != nil {
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return nil, nil, fmt.Errorf("acorndb: policy enforcement could not parse payload: %w", err)
		}
		return payload, envelope.ExpiresAt, nil
	}

	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil, fmt.Errorf("acorndb: policy enforcement could not parse payload: %w", err)
	}
	return payload, envelope.ExpiresAt, nil
}

func (p *PolicyEnforcement) OnStash(data []byte, ctx *Context) ([]byte, error) {
	if err := p.verifyChainOnce(ctx); err != nil {
		return nil, fmt.Errorf("acorndb: policy ledger chain integrity check failed: %w", err)
	}

	payload, _, err := extractPayload(data)
	if err != nil {
		return nil, err
	}
	if err := p.engine.Enforce(payload, time.Now()); err != nil {
		return nil, err
	}

	ctx.Sign("policy-enforcement")
	return data, nil
}

func (p *PolicyEnforcement) OnCrack(data []byte, ctx *Context) ([]byte, error) {
	if err := p.verifyChainOnce(ctx); err != nil {
		return nil, fmt.Errorf("acorndb: policy ledger chain integrity check failed: %w", err)
	}

	payload, expiresAt, err := extractPayload(data)
	if err != nil {
		return nil, err
	}
	if expiresAt != nil && time.Now().After(*expiresAt) {
		return nil, fmt.Errorf("acorndb: %w: document expired at %s", acornerr.ErrPolicyViolation, expiresAt)
	}
	if err := p.engine.Enforce(payload, time.Now()); err != nil {
		return nil, err
	}

	return data, nil
}
