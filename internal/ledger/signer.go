package ledger

import (
	"crypto/sha256"
	"crypto/subtle"
)

// Signer produces and checks the tamper-evidence signature over a seal's
// canonical payload.
type Signer interface {
	Sign(data []byte) [32]byte
	Verify(data []byte, sig [32]byte) bool
}

// SHA256Signer is the reference signer: keyless integrity via SHA-256,
// verified in constant time.
type SHA256Signer struct{}

func (SHA256Signer) Sign(data []byte) [32]byte {
	return sha256.Sum256(data)
}

func (SHA256Signer) Verify(data []byte, sig [32]byte) bool {
	got := sha256.Sum256(data)
	return subtle.ConstantTimeCompare(got[:], sig[:]) == 1
}
