// Package file implements AcornDB's durable single-file-per-document
// trunk: each id becomes one file under a type-scoped directory,
// replaced atomically by writing to a temp file, fsyncing, then
// renaming over the destination, so a document is never observed
// half-written.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/acorndb/acorndb/internal/nut"
	"github.com/acorndb/acorndb/internal/root"
	"github.com/acorndb/acorndb/internal/trunk"
	"github.com/acorndb/acorndb/pkg/acornerr"
	"github.com/acorndb/acorndb/pkg/log"
)

// Trunk persists each document as {dir}/{id}.acorn.
type Trunk[T any] struct {
	base *trunk.Base[T]
	dir  string
	mu   sync.RWMutex
}

// New builds a file trunk rooted at dir, creating it if necessary.
func New[T any](dir string) (*Trunk[T], error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("acorndb: create trunk dir: %w", err)
	}
	t := &Trunk[T]{dir: dir}
	t.base = trunk.NewBase[T](trunk.TypeFile, trunk.DefaultBatchThreshold, trunk.DefaultFlushInterval, t.applyBatch)
	return t, nil
}

func (t *Trunk[T]) pathFor(id string) string {
	return filepath.Join(t.dir, escapeID(id)+".acorn")
}

// escapeID keeps ids with path separators from escaping the trunk's
// directory; it is not full URL escaping, just enough to keep one
// document per filename.
func escapeID(id string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "__")
	return r.Replace(id)
}

func (t *Trunk[T]) applyBatch(_ context.Context, batch []trunk.PendingWrite) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, pw := range batch {
		path := t.pathFor(pw.ID)
		if pw.Deleted {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("acorndb: remove %s: %w", path, err)
			}
			continue
		}
		if err := writeAtomic(path, pw.Blob); err != nil {
			return err
		}
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("acorndb: create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("acorndb: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("acorndb: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("acorndb: close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("acorndb: rename into place: %w", err)
	}
	return nil
}

func (t *Trunk[T]) decode(blob []byte) (nut.Nut[T], error) {
	ctx := root.NewContext(root.OpRead, "", "trunk:file")
	raw, err := t.base.Pipeline().Crack(blob, ctx)
	if err != nil {
		return nut.Nut[T]{}, err
	}
	return t.base.Serializer().Deserialize(raw)
}

func (t *Trunk[T]) encode(n nut.Nut[T]) ([]byte, error) {
	raw, err := t.base.Serializer().Serialize(n)
	if err != nil {
		return nil, err
	}
	ctx := root.NewContext(root.OpWrite, n.ID, "trunk:file")
	return t.base.Pipeline().Stash(raw, ctx)
}

func (t *Trunk[T]) Stash(_ context.Context, n nut.Nut[T]) error {
	if n.ID == "" {
		return acornerr.ErrIDInvalid
	}
	blob, err := t.encode(n)
	if err != nil {
		return err
	}
	t.base.Enqueue(trunk.PendingWrite{ID: n.ID, Blob: blob, Timestamp: n.Timestamp.UnixMicro(), Version: n.Version})
	return nil
}

func (t *Trunk[T]) Crack(_ context.Context, id string) (nut.Nut[T], bool, error) {
	t.mu.RLock()
	blob, err := os.ReadFile(t.pathFor(id))
	t.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nut.Nut[T]{}, false, nil
		}
		return nut.Nut[T]{}, false, fmt.Errorf("acorndb: read %s: %w", id, err)
	}
	n, err := t.decode(blob)
	if err != nil {
		return nut.Nut[T]{}, false, err
	}
	return n, true, nil
}

func (t *Trunk[T]) Toss(_ context.Context, id string) error {
	t.base.Enqueue(trunk.PendingWrite{ID: id, Deleted: true})
	return nil
}

func (t *Trunk[T]) CrackAll(ctx context.Context) ([]nut.Nut[T], error) {
	t.mu.RLock()
	entries, err := os.ReadDir(t.dir)
	t.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("acorndb: list trunk dir: %w", err)
	}

	var out []nut.Nut[T]
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".acorn") {
			continue
		}
		blob, err := os.ReadFile(filepath.Join(t.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("acorndb: read %s: %w", e.Name(), err)
		}
		n, err := t.decode(blob)
		if err != nil {
			// One undecodable document must not break the whole scan.
			if errors.Is(err, acornerr.ErrDeserialization) {
				log.Logger.Warn().Err(err).Str("file", e.Name()).Msg("acorndb: skipping undecodable document")
				continue
			}
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (t *Trunk[T]) GetHistory(context.Context, string) ([]nut.Nut[T], error) {
	return nil, acornerr.ErrHistoryUnsupported
}

func (t *Trunk[T]) ExportChanges(ctx context.Context) ([]nut.Nut[T], error) {
	return t.CrackAll(ctx)
}

func (t *Trunk[T]) ImportChanges(ctx context.Context, changes []nut.Nut[T]) error {
	for _, n := range changes {
		if err := t.Stash(ctx, n); err != nil {
			return err
		}
	}
	return t.base.Flush(ctx)
}

func (t *Trunk[T]) Capabilities() trunk.Capabilities {
	return trunk.Capabilities{
		SupportsHistory: false,
		SupportsSync:    true,
		IsDurable:       true,
		SupportsAsync:   true,
		TrunkType:       trunk.TypeFile,
	}
}

func (t *Trunk[T]) Roots() []root.Root     { return t.base.Pipeline().Roots() }
func (t *Trunk[T]) AddRoot(r root.Root)    { t.base.Pipeline().Add(r) }
func (t *Trunk[T]) RemoveRoot(name string) { t.base.Pipeline().Remove(name) }
func (t *Trunk[T]) Dispose() error         { return t.base.Dispose() }
