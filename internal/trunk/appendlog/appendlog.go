// Package appendlog implements AcornDB's only trunk with full version
// history: every stash appends a new record to an on-disk newline-
// delimited JSON change log rather than overwriting in place, so
// GetHistory can replay every superseded version a document has held.
package appendlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/acorndb/acorndb/internal/nut"
	"github.com/acorndb/acorndb/internal/root"
	"github.com/acorndb/acorndb/internal/trunk"
	"github.com/acorndb/acorndb/pkg/acornerr"
	"github.com/acorndb/acorndb/pkg/log"
)

// logRecord is one line of the change log. Action tolerates the legacy
// "Save"/"Delete" spellings alongside the current "upsert"/"delete", so
// a log started by an older version of this trunk still replays.
type logRecord struct {
	Action    string `json:"action"`
	ID        string `json:"id"`
	Shell     []byte `json:"shell"`
	Timestamp int64  `json:"timestamp"`
}

func isDeleteAction(action string) bool {
	return action == "delete" || action == "Delete"
}

// Trunk is the append-only, full-history backend. Reads against
// `current` never block on a history append, since each is guarded by
// its own lock.
type Trunk[T any] struct {
	base *trunk.Base[T]

	logFile *os.File
	logMu   sync.Mutex

	currentMu sync.RWMutex
	current   map[string][]byte

	historyLocks sync.Map // id -> *sync.Mutex
	historyMu    sync.RWMutex
	history      map[string][][]byte
}

// Open opens (creating if necessary) the ndjson log at path and replays
// it to rebuild `current` and `history`. A malformed trailing line is
// skipped with a logged warning rather than aborting the load, since
// the log is a best-effort replication aid, not a tamper-evidence
// ledger.
func Open[T any](path string) (*Trunk[T], error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("acorndb: open append log: %w", err)
	}

	t := &Trunk[T]{
		logFile: f,
		current: make(map[string][]byte),
		history: make(map[string][][]byte),
	}
	t.base = trunk.NewBase[T](trunk.TypeAppendLog, trunk.DefaultBatchThreshold, trunk.DefaultFlushInterval, t.applyBatch)

	if err := t.replay(); err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

func (t *Trunk[T]) replay() error {
	if _, err := t.logFile.Seek(0, 0); err != nil {
		return fmt.Errorf("acorndb: seek append log: %w", err)
	}

	scanner := bufio.NewScanner(t.logFile)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec logRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			log.Logger.Warn().Err(err).Msg("acorndb: skipping malformed append log line")
			continue
		}
		t.apply(rec)
	}

	if _, err := t.logFile.Seek(0, 2); err != nil {
		return fmt.Errorf("acorndb: seek append log to end: %w", err)
	}
	return scanner.Err()
}

// apply folds one log record into current/history. A stash pushes the
// previous current value (if any) onto history before replacing it; a
// toss moves the current value onto history and removes it, so history
// always holds every superseded version and never the live one.
func (t *Trunk[T]) apply(rec logRecord) {
	if isDeleteAction(rec.Action) {
		t.currentMu.Lock()
		prev, had := t.current[rec.ID]
		delete(t.current, rec.ID)
		t.currentMu.Unlock()
		if had {
			t.pushHistory(rec.ID, prev)
		}
		return
	}

	t.currentMu.Lock()
	prev, had := t.current[rec.ID]
	t.current[rec.ID] = rec.Shell
	t.currentMu.Unlock()
	if had {
		t.pushHistory(rec.ID, prev)
	}
}

func (t *Trunk[T]) pushHistory(id string, blob []byte) {
	lock := t.lockFor(id)
	lock.Lock()
	t.historyMu.Lock()
	t.history[id] = append(t.history[id], blob)
	t.historyMu.Unlock()
	lock.Unlock()
}

func (t *Trunk[T]) lockFor(id string) *sync.Mutex {
	v, _ := t.historyLocks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (t *Trunk[T]) applyBatch(_ context.Context, batch []trunk.PendingWrite) error {
	t.logMu.Lock()
	defer t.logMu.Unlock()

	for _, pw := range batch {
		rec := logRecord{ID: pw.ID, Timestamp: pw.Timestamp}
		if pw.Deleted {
			rec.Action = "delete"
		} else {
			rec.Action = "upsert"
			rec.Shell = pw.Blob
		}

		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("acorndb: marshal append log record: %w", err)
		}
		line = append(line, '\n')
		if _, err := t.logFile.Write(line); err != nil {
			return fmt.Errorf("acorndb: write append log record: %w", err)
		}
		t.apply(rec)
	}
	return t.logFile.Sync()
}

func (t *Trunk[T]) decode(blob []byte) (nut.Nut[T], error) {
	ctx := root.NewContext(root.OpRead, "", "trunk:appendlog")
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
	ctx := root.NewContext(root.OpWrite, n.ID, "trunk:appendlog")
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
	t.currentMu.RLock()
	blob, ok := t.current[id]
	t.currentMu.RUnlock()
	if !ok {
		return nut.Nut[T]{}, false, nil
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

func (t *Trunk[T]) CrackAll(context.Context) ([]nut.Nut[T], error) {
	t.currentMu.RLock()
	blobs := make([][]byte, 0, len(t.current))
	for _, blob := range t.current {
		blobs = append(blobs, blob)
	}
	t.currentMu.RUnlock()

	out := make([]nut.Nut[T], 0, len(blobs))
	for _, blob := range blobs {
		n, err := t.decode(blob)
		if err != nil {
			// One undecodable document must not break the whole scan.
			if errors.Is(err, acornerr.ErrDeserialization) {
				log.Logger.Warn().Err(err).Msg("acorndb: skipping undecodable document")
				continue
			}
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// GetHistory returns every superseded version of id, oldest first. The
// live value is not included; Crack is how callers read that.
func (t *Trunk[T]) GetHistory(_ context.Context, id string) ([]nut.Nut[T], error) {
	lock := t.lockFor(id)
	lock.Lock()
	t.historyMu.RLock()
	blobs := append([][]byte(nil), t.history[id]...)
	t.historyMu.RUnlock()
	lock.Unlock()

	out := make([]nut.Nut[T], 0, len(blobs))
	for _, blob := range blobs {
		n, err := t.decode(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
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
		SupportsHistory: true,
		SupportsSync:    true,
		IsDurable:       true,
		SupportsAsync:   true,
		TrunkType:       trunk.TypeAppendLog,
	}
}

func (t *Trunk[T]) Roots() []root.Root     { return t.base.Pipeline().Roots() }
func (t *Trunk[T]) AddRoot(r root.Root)    { t.base.Pipeline().Add(r) }
func (t *Trunk[T]) RemoveRoot(name string) { t.base.Pipeline().Remove(name) }

// Flush forces pending writes to the change log immediately instead of
// waiting for the batch threshold or the flush timer, so a caller that
// needs GetHistory to reflect a just-completed Stash (e.g. Tree's
// UndoSquabble) can force the write through first.
func (t *Trunk[T]) Flush(ctx context.Context) error { return t.base.Flush(ctx) }

func (t *Trunk[T]) Dispose() error {
	if err := t.base.Dispose(); err != nil {
		return err
	}
	return t.logFile.Close()
}
