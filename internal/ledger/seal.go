package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/acorndb/acorndb/pkg/acornerr"
)

// Seal is one entry in the tamper-evident policy ledger.
type Seal struct {
	Index         int
	PolicyTypeID  string
	PolicyName    string
	PolicyDesc    string
	PolicyPrio    int
	EffectiveAt   time.Time
	PreviousHash  [32]byte
	RootChainHash [32]byte
	Signature     [32]byte

	// Policy is the live, evaluable policy this seal carries. It is not
	// part of the signed payload (only its metadata is); it is kept so
	// GovernedEngine can run Evaluate without a side lookup table.
	Policy Policy
}

// canonicalPayload is the fixed-order structure signed for each seal.
type canonicalPayload struct {
	Index         int    `json:"index"`
	PolicyTypeID  string `json:"policy_type_id"`
	PolicyName    string `json:"policy_name"`
	PolicyDesc    string `json:"policy_description"`
	PolicyPrio    int    `json:"policy_priority"`
	EffectiveAt   string `json:"effective_at"`
	PreviousHash  string `json:"previous_hash"`
	RootChainHash string `json:"root_chain_hash"`
}

func (s *Seal) canonicalBytes() ([]byte, error) {
	p := canonicalPayload{
		Index:         s.Index,
		PolicyTypeID:  s.PolicyTypeID,
		PolicyName:    s.PolicyName,
		PolicyDesc:    s.PolicyDesc,
		PolicyPrio:    s.PolicyPrio,
		EffectiveAt:   s.EffectiveAt.UTC().Format(time.RFC3339Nano),
		PreviousHash:  fmt.Sprintf("%x", s.PreviousHash),
		RootChainHash: fmt.Sprintf("%x", s.RootChainHash),
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("ledger: canonicalize seal: %w", err)
	}
	return b, nil
}

// NewSeal constructs the next seal in the chain. previous is nil for the
// genesis entry (previous_hash = all zeros).
func NewSeal(index int, policy Policy, effectiveAt time.Time, previous *Seal, signer Signer, rootChainHash [32]byte) (*Seal, error) {
	var prevHash [32]byte
	if previous != nil {
		prevHash = previous.Signature
		if effectiveAt.Before(previous.EffectiveAt) {
			return nil, fmt.Errorf("ledger: effective_at must be non-decreasing (got %s after %s)", effectiveAt, previous.EffectiveAt)
		}
	}

	s := &Seal{
		Index:         index,
		PolicyTypeID:  policy.TypeID(),
		PolicyName:    policy.Name(),
		PolicyDesc:    policy.Description(),
		PolicyPrio:    policy.Priority(),
		EffectiveAt:   effectiveAt.UTC(),
		PreviousHash:  prevHash,
		RootChainHash: rootChainHash,
		Policy:        policy,
	}

	payload, err := s.canonicalBytes()
	if err != nil {
		return nil, err
	}
	s.Signature = signer.Sign(payload)
	return s, nil
}

// VerifyLink checks this seal's signature and its link to previous.
func (s *Seal) VerifyLink(previous *Seal, signer Signer) error {
	var wantPrevHash [32]byte
	if previous != nil {
		wantPrevHash = previous.Signature
		if s.EffectiveAt.Before(previous.EffectiveAt) {
			return &acornerr.ChainIntegrity{Index: s.Index, Reason: "effective_at decreased"}
		}
	}
	if s.PreviousHash != wantPrevHash {
		return &acornerr.ChainIntegrity{Index: s.Index, Reason: "previous_hash mismatch"}
	}

	payload, err := s.canonicalBytes()
	if err != nil {
		return &acornerr.ChainIntegrity{Index: s.Index, Reason: err.Error()}
	}
	if !signer.Verify(payload, s.Signature) {
		return &acornerr.ChainIntegrity{Index: s.Index, Reason: "signature mismatch"}
	}
	return nil
}
