package root

import (
	"fmt"

	"github.com/acorndb/acorndb/internal/security"
)

// Encryption is the reference AES-256-GCM root. The nonce travels with the
// ciphertext (security.Cipher's Seal/Open layout), so no sidecar state is
// required.
type Encryption struct {
	sequence int
	cipher   *security.Cipher
}

// NewEncryption builds an encryption root from a pre-derived 32-byte key.
func NewEncryption(key []byte) (*Encryption, error) {
	c, err := security.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &Encryption{sequence: SequenceEncryption, cipher: c}, nil
}

// NewEncryptionFromPassword builds an encryption root deriving its key via
// PBKDF2-HMAC-SHA256 (>=100k iterations) from a password and salt.
func NewEncryptionFromPassword(password string, salt []byte, iterations int) (*Encryption, error) {
	c, err := security.NewCipherFromPassword(password, salt, iterations)
	if err != nil {
		return nil, err
	}
	return &Encryption{sequence: SequenceEncryption, cipher: c}, nil
}

func (e *Encryption) Name() string  { return "encryption" }
func (e *Encryption) Sequence() int { return e.sequence }
func (e *Encryption) WithSequence(seq int) *Encryption {
	e.sequence = seq
	return e
}

func (e *Encryption) OnStash(data []byte, ctx *Context) ([]byte, error) {
	blob, err := e.cipher.Seal(data)
	if err != nil {
		return nil, fmt.Errorf("encryption on_stash: %w", err)
	}
	ctx.Sign("aes-256-gcm")
	return blob, nil
}

func (e *Encryption) OnCrack(data []byte, ctx *Context) ([]byte, error) {
	plain, err := e.cipher.Open(data)
	if err != nil {
		return nil, fmt.Errorf("encryption on_crack: %w", err)
	}
	return plain, nil
}
