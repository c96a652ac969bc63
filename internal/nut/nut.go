// Package nut defines the Nut document envelope: the immutable-ish record
// every Tree stores, and the identity-extraction rules Stash uses when the
// caller does not supply an id explicitly.
package nut

import (
	"reflect"
	"time"

	"github.com/acorndb/acorndb/pkg/acornerr"
)

// Identifiable lets a payload type declare its own id without reflection.
type Identifiable interface {
	AcornID() string
}

// Nut is the envelope around a stashed payload of type T.
type Nut[T any] struct {
	ID      string `json:"id"`
	Payload T      `json:"payload"`

	Timestamp time.Time  `json:"timestamp"`
	Version   int64      `json:"version"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// Replication metadata.
	ChangeID     string `json:"change_id,omitempty"`
	OriginNodeID string `json:"origin_node_id,omitempty"`
	HopCount     int    `json:"hop_count,omitempty"`
}

// Expired reports whether the Nut's TTL has passed relative to now.
func (n Nut[T]) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && n.ExpiresAt.Before(now)
}

// New builds a Nut with timestamp=now and version=1. Callers that are
// superseding an existing Nut should use Supersede instead so the version
// counter advances correctly.
func New[T any](id string, payload T) (Nut[T], error) {
	if id == "" {
		return Nut[T]{}, acornerr.ErrIDInvalid
	}
	return Nut[T]{
		ID:        id,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Version:   1,
	}, nil
}

// Supersede builds the next version of an existing Nut with a new payload.
func Supersede[T any](previous Nut[T], payload T) Nut[T] {
	next := previous
	next.Payload = payload
	next.Timestamp = time.Now().UTC()
	next.Version = previous.Version + 1
	return next
}

// ExtractID resolves a document id for a Stash call that omitted one,
// trying in order: the Identifiable interface, then a reflected exported
// field named ID, Id, or Key holding a non-empty string. Returns
// acornerr.ErrIDUndetectable if none apply.
func ExtractID(payload any) (string, error) {
	if ident, ok := payload.(Identifiable); ok {
		if id := ident.AcornID(); id != "" {
			return id, nil
		}
		return "", acornerr.ErrIDUndetectable
	}

	v := reflect.ValueOf(payload)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "", acornerr.ErrIDUndetectable
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", acornerr.ErrIDUndetectable
	}

	for _, name := range []string{"ID", "Id", "Key"} {
		field := v.FieldByName(name)
		if field.IsValid() && field.Kind() == reflect.String && field.CanInterface() {
			if id := field.String(); id != "" {
				return id, nil
			}
		}
	}
	return "", acornerr.ErrIDUndetectable
}
