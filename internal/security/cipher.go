// Package security holds the authenticated-encryption primitive used by
// the root pipeline's EncryptionRoot. It is deliberately independent of the
// document model so it can be unit-tested (and reused) on its own.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// PBKDF2Iterations is the minimum iteration count accepted for
// password-derived keys.
const PBKDF2Iterations = 100_000

// Cipher performs AES-256-GCM authenticated encryption. The ciphertext
// layout is nonce || sealed, so the nonce never needs separate storage.
type Cipher struct {
	key []byte
}

// NewCipher builds a Cipher from a raw 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("security: key must be %d bytes for AES-256, got %d", KeySize, len(key))
	}
	return &Cipher{key: key}, nil
}

// NewCipherFromPassword derives a 32-byte key from a password and salt
// using PBKDF2-HMAC-SHA256 with at least PBKDF2Iterations rounds.
func NewCipherFromPassword(password string, salt []byte, iterations int) (*Cipher, error) {
	if password == "" {
		return nil, fmt.Errorf("security: password cannot be empty")
	}
	if iterations < PBKDF2Iterations {
		iterations = PBKDF2Iterations
	}
	key := pbkdf2.Key([]byte(password), salt, iterations, KeySize, sha256.New)
	return NewCipher(key)
}

// NewSalt returns a fresh random salt suitable for NewCipherFromPassword.
func NewSalt(size int) ([]byte, error) {
	salt := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("security: failed to generate salt: %w", err)
	}
	return salt, nil
}

// Seal encrypts plaintext, returning nonce||ciphertext||tag.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	gcm, err := c.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal.
func (c *Cipher) Open(blob []byte) ([]byte, error) {
	gcm, err := c.gcm()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(blob) < nonceSize {
		return nil, fmt.Errorf("security: ciphertext too short")
	}

	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("security: failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func (c *Cipher) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("security: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: failed to create GCM: %w", err)
	}
	return gcm, nil
}
