package nut

import (
	"errors"
	"testing"
	"time"

	"github.com/acorndb/acorndb/pkg/acornerr"
)

type user struct {
	ID   string
	Name string
}

type keyed struct {
	Key  string
	Name string
}

type custom struct{ name string }

func (c custom) AcornID() string { return "custom-" + c.name }

func TestExtractID(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
		wantErr error
	}{
		{"identifiable", custom{name: "a"}, "custom-a", nil},
		{"reflected ID field", user{ID: "u1", Name: "Alice"}, "u1", nil},
		{"reflected Key field", keyed{Key: "k1", Name: "x"}, "k1", nil},
		{"pointer to struct", &user{ID: "u2"}, "u2", nil},
		{"no id", struct{ Name string }{Name: "x"}, "", acornerr.ErrIDUndetectable},
		{"nil pointer", (*user)(nil), "", acornerr.ErrIDUndetectable},
		{"not a struct", 42, "", acornerr.ErrIDUndetectable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractID(tt.payload)
			if !errors.Is(err, tt.wantErr) && (err != nil) != (tt.wantErr != nil) {
				t.Fatalf("ExtractID() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewAndSupersede(t *testing.T) {
	n, err := New("u1", user{ID: "u1", Name: "Alice"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if n.Version != 1 {
		t.Errorf("Version = %d, want 1", n.Version)
	}
	if n.Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp not UTC")
	}

	n2 := Supersede(n, user{ID: "u1", Name: "Bob"})
	if n2.Version != 2 {
		t.Errorf("Version = %d, want 2", n2.Version)
	}
	if n2.Payload.Name != "Bob" {
		t.Errorf("Payload not superseded")
	}
}

func TestNewEmptyID(t *testing.T) {
	if _, err := New("", user{}); !errors.Is(err, acornerr.ErrIDInvalid) {
		t.Errorf("New() error = %v, want ErrIDInvalid", err)
	}
}

func TestExpired(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	n := Nut[int]{ExpiresAt: &past}
	if !n.Expired(time.Now()) {
		t.Error("expected expired")
	}

	future := time.Now().Add(time.Hour)
	n2 := Nut[int]{ExpiresAt: &future}
	if n2.Expired(time.Now()) {
		t.Error("expected not expired")
	}

	n3 := Nut[int]{}
	if n3.Expired(time.Now()) {
		t.Error("nil ExpiresAt should never be expired")
	}
}
