package ledger

import (
	"fmt"
	"time"

	"github.com/acorndb/acorndb/pkg/acornerr"
	"github.com/acorndb/acorndb/pkg/metrics"
)

// GovernedEngine decorates a Log with the enforcement surface the
// PolicyEnforcement root calls on every stash/crack: it evaluates a
// payload against every currently active policy at or above a priority
// threshold, and fails closed on the first denial (or on any chain
// integrity failure, if AppendPolicy was asked to check first).
type GovernedEngine struct {
	log                  Log
	enforcementThreshold int
	verifyOnAppend       bool
}

// NewGovernedEngine wraps log. If verifyOnAppend is true, AppendPolicy
// re-verifies the whole chain before accepting a new seal, trading
// append latency for an early tamper alarm instead of discovering it at
// the next read.
func NewGovernedEngine(log Log, enforcementThreshold int, verifyOnAppend bool) *GovernedEngine {
	return &GovernedEngine{log: log, enforcementThreshold: enforcementThreshold, verifyOnAppend: verifyOnAppend}
}

// AppendPolicy adds policy to the ledger, optionally checking chain
// integrity first so a corrupted log is caught before it accrues a new,
// validly-signed entry on top of a broken link.
func (g *GovernedEngine) AppendPolicy(policy Policy, effectiveAt time.Time) (*Seal, error) {
	if g.verifyOnAppend {
		if err := g.log.VerifyChain(); err != nil {
			return nil, fmt.Errorf("ledger: refusing append on broken chain: %w", err)
		}
	}
	return g.log.Append(policy, effectiveAt)
}

// Enforce evaluates payload against every active policy (per
// ActivePolicies) at or above the enforcement threshold, in policy-name
// order, and returns the first denial as
// a *acornerr.PolicyViolation. A nil return means the payload passed
// every applicable policy.
func (g *GovernedEngine) Enforce(payload any, now time.Time) error {
	for _, p := range ActivePolicies(g.log, now) {
		if p.Priority() < g.enforcementThreshold {
			continue
		}
		ok, reason := p.Evaluate(payload)
		if !ok {
			metrics.PolicyEvaluationsTotal.WithLabelValues("deny").Inc()
			metrics.PolicyViolationsTotal.WithLabelValues(p.Name()).Inc()
			return &acornerr.PolicyViolation{PolicyName: p.Name(), Reason: reason}
		}
		metrics.PolicyEvaluationsTotal.WithLabelValues("allow").Inc()
	}
	return nil
}

// ActivePolicies exposes the derived active-policy view for callers
// (e.g. administrative inspection) that don't need full enforcement.
func (g *GovernedEngine) ActivePolicies(now time.Time) []Policy {
	return ActivePolicies(g.log, now)
}

// VerifyChain delegates to the underlying log.
func (g *GovernedEngine) VerifyChain() error {
	if err := g.log.VerifyChain(); err != nil {
		metrics.LedgerChainIntegrityFailures.Inc()
		return err
	}
	return nil
}

// GetAllSeals delegates to the underlying log.
func (g *GovernedEngine) GetAllSeals() []*Seal {
	return g.log.GetAllSeals()
}

// GetPolicyAt delegates to the underlying log.
func (g *GovernedEngine) GetPolicyAt(ts time.Time) (Policy, bool) {
	return g.log.GetPolicyAt(ts)
}
