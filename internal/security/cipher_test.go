package security

import (
	"bytes"
	"testing"
)

func TestNewCipher(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{"valid 32-byte key", make([]byte, 32), false},
		{"invalid short key", make([]byte, 16), true},
		{"invalid long key", make([]byte, 64), true},
		{"empty key", []byte{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCipher(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewCipher() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && c == nil {
				t.Error("NewCipher() returned nil without error")
			}
		})
	}
}

func TestSealOpenRoundtrip(t *testing.T) {
	key := make([]byte, 32)
	copy(key, []byte("test-encryption-key-32-bytes-!!"))
	c, err := NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"simple string", []byte("hello world")},
		{"json data", []byte(`{"a":1}`)},
		{"binary data", []byte{0x00, 0x01, 0xFF, 0xFE}},
		{"large data", bytes.Repeat([]byte("x"), 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := c.Seal(tt.plaintext)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if bytes.Equal(blob, tt.plaintext) {
				t.Error("ciphertext should not equal plaintext")
			}

			out, err := c.Open(blob)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !bytes.Equal(out, tt.plaintext) {
				t.Errorf("Open() = %v, want %v", out, tt.plaintext)
			}
		})
	}
}

func TestOpenWrongKey(t *testing.T) {
	key1 := make([]byte, 32)
	copy(key1, []byte("key-one-32-bytes-long-!!!!!!!!!!"))
	key2 := make([]byte, 32)
	copy(key2, []byte("key-two-32-bytes-long-!!!!!!!!!!"))

	c1, _ := NewCipher(key1)
	c2, _ := NewCipher(key2)

	blob, err := c1.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if _, err := c2.Open(blob); err == nil {
		t.Error("Open() should fail with wrong key")
	}
}

func TestOpenTooShort(t *testing.T) {
	c, _ := NewCipher(make([]byte, 32))
	if _, err := c.Open([]byte{0x01, 0x02}); err == nil {
		t.Error("Open() should fail on too-short input")
	}
}

func TestNewCipherFromPassword(t *testing.T) {
	salt, err := NewSalt(16)
	if err != nil {
		t.Fatalf("NewSalt() error = %v", err)
	}

	c1, err := NewCipherFromPassword("hunter2", salt, 0)
	if err != nil {
		t.Fatalf("NewCipherFromPassword() error = %v", err)
	}
	c2, err := NewCipherFromPassword("hunter2", salt, 0)
	if err != nil {
		t.Fatalf("NewCipherFromPassword() error = %v", err)
	}

	blob, err := c1.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	out, err := c2.Open(blob)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if string(out) != "payload" {
		t.Errorf("Open() = %q, want %q", out, "payload")
	}
}

func TestNewCipherFromPasswordEmpty(t *testing.T) {
	if _, err := NewCipherFromPassword("", nil, 0); err == nil {
		t.Error("expected error for empty password")
	}
}
