// Package trunk defines AcornDB's durable-backend contract: the
// Trunk[T] interface every concrete storage adapter implements, the
// Capabilities a Tree queries before calling an optional method, and a
// Base struct concrete trunks embed for shared batching/flush/root-
// pipeline behavior.
package trunk

import (
	"context"

	"github.com/acorndb/acorndb/internal/nut"
	"github.com/acorndb/acorndb/internal/root"
)

// TrunkType names a concrete backend for Capabilities reporting and
// metrics labeling.
type TrunkType string

const (
	TypeMemory    TrunkType = "memory"
	TypeFile      TrunkType = "file"
	TypeBolt      TrunkType = "bolt"
	TypeAppendLog TrunkType = "appendlog"
	TypeSQL       TrunkType = "sql"
	TypeComposed  TrunkType = "composed"
)

// Capabilities describes what a Trunk supports so a Tree can decide
// whether to call GetHistory/ExportChanges or surface
// acornerr.ErrHistoryUnsupported up front instead of at call time.
type Capabilities struct {
	SupportsHistory         bool
	SupportsSync            bool
	IsDurable               bool
	SupportsAsync           bool
	SupportsNativeIndexes   bool
	SupportsFullTextSearch  bool
	SupportsComputedIndexes bool
	TrunkType               TrunkType
}

// Trunk is the storage contract every concrete backend implements, over
// a document payload type T. Every persisted Nut passes through the
// trunk's root pipeline on the way in and out, so Stash/Crack always
// deal in live Nut[T] values, never raw bytes.
type Trunk[T any] interface {
	Stash(ctx context.Context, n nut.Nut[T]) error
	Crack(ctx context.Context, id string) (nut.Nut[T], bool, error)
	Toss(ctx context.Context, id string) error
	CrackAll(ctx context.Context) ([]nut.Nut[T], error)
	GetHistory(ctx context.Context, id string) ([]nut.Nut[T], error)
	ExportChanges(ctx context.Context) ([]nut.Nut[T], error)
	ImportChanges(ctx context.Context, changes []nut.Nut[T]) error
	Capabilities() Capabilities
	Roots() []root.Root
	AddRoot(r root.Root)
	RemoveRoot(name string)
	Dispose() error
}
