// Package serial defines the Serializer contract Trunks use to turn a Nut
// into bytes and back. The reference implementation is JSON, matching the
// encoding every backend in this repository already speaks on disk.
package serial

import (
	"encoding/json"
	"fmt"

	"github.com/acorndb/acorndb/pkg/acornerr"
)

// Serializer converts a value of type T to and from bytes.
type Serializer[T any] interface {
	Serialize(v T) ([]byte, error)
	Deserialize(data []byte) (T, error)
}

// JSON is the default Serializer, backed by encoding/json.
type JSON[T any] struct{}

// NewJSON constructs a JSON serializer for T.
func NewJSON[T any]() JSON[T] { return JSON[T]{} }

func (JSON[T]) Serialize(v T) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("acorndb: serialize: %w", err)
	}
	return b, nil
}

func (JSON[T]) Deserialize(data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", acornerr.ErrDeserialization, err)
	}
	return v, nil
}
