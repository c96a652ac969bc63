package root

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/acorndb/acorndb/internal/ledger"
)

func TestPolicyEnforcementAllowsAndDenies(t *testing.T) {
	log := ledger.NewMemoryLog(nil)
	deny := ledger.Func{
		PolicyName:     "no-embargoed",
		PolicyPriority: 5,
		PolicyTypeID:   "test.embargo",
		EvalFunc: func(payload any) (bool, string) {
			m, ok := payload.(map[string]any)
			if !ok {
				return true, ""
			}
			if status, _ := m["status"].(string); status == "embargoed" {
				return false, "status is embargoed"
			}
			return true, ""
		},
	}
	if _, err := log.Append(deny, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("append policy: %v", err)
	}

	engine := ledger.NewGovernedEngine(log, 1, false)
	pr := NewPolicyEnforcement(engine)

	ok, _ := json.Marshal(map[string]any{"status": "active"})
	ctx := NewContext(OpWrite, "doc-1", "tester")
	if _, err := pr.OnStash(ok, ctx); err != nil {
		t.Fatalf("expected allowed payload to pass, got %v", err)
	}

	bad, _ := json.Marshal(map[string]any{"status": "embargoed"})
	ctx2 := NewContext(OpWrite, "doc-2", "tester")
	if _, err := pr.OnStash(bad, ctx2); err == nil {
		t.Fatalf("expected embargoed payload to be denied")
	}
}

func TestPolicyEnforcementTTLOnRead(t *testing.T) {
	log := ledger.NewMemoryLog(nil)
	engine := ledger.NewGovernedEngine(log, 1, false)
	pr := NewPolicyEnforcement(engine)

	past := time.Now().Add(-time.Minute)
	data, _ := json.Marshal(map[string]any{"expires_at": past})

	ctx := NewContext(OpRead, "doc-1", "tester")
	if _, err := pr.OnCrack(data, ctx); err == nil {
		t.Fatalf("expected expired document to be rejected on read")
	}
}

func TestPolicyEnforcementChainCacheInvalidation(t *testing.T) {
	log := ledger.NewMemoryLog(nil)
	engine := ledger.NewGovernedEngine(log, 1, false)
	pr := NewPolicyEnforcement(engine)

	data, _ := json.Marshal(map[string]any{"status": "active"})
	ctx := NewContext(OpWrite, "doc-1", "tester")
	if _, err := pr.OnStash(data, ctx); err != nil {
		t.Fatalf("first stash: %v", err)
	}
	if !ctx.ChainState.Verified {
		t.Fatalf("expected chain state to be marked verified")
	}

	pr.InvalidateChainCache()
	ctx2 := NewContext(OpWrite, "doc-2", "tester")
	if _, err := pr.OnStash(data, ctx2); err != nil {
		t.Fatalf("stash after invalidation: %v", err)
	}
}
