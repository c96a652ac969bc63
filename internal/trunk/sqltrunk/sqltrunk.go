// Package sqltrunk implements AcornDB's database/sql-backed trunk on
// SQLite via github.com/mattn/go-sqlite3. Open always uses the sqlite3
// driver, and the queries use SQLite's `?` placeholders, its
// `ON CONFLICT` upsert and its sqlite_master catalog; other SQL engines
// are not supported by this package.
package sqltrunk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/acorndb/acorndb/internal/index"
	"github.com/acorndb/acorndb/internal/nut"
	"github.com/acorndb/acorndb/internal/root"
	"github.com/acorndb/acorndb/internal/trunk"
	"github.com/acorndb/acorndb/pkg/acornerr"
	"github.com/acorndb/acorndb/pkg/log"

	_ "github.com/mattn/go-sqlite3"
)

// Trunk persists every document of one type in its own acorn_<type>
// table: id TEXT PRIMARY KEY, payload_blob BLOB NOT NULL, timestamp
// TIMESTAMP NOT NULL, version INTEGER NOT NULL, expires_at TIMESTAMP
// NULL. History is not tracked, matching spec.md; a Stash overwrites the
// prior row entirely via an upsert.
type Trunk[T any] struct {
	base  *trunk.Base[T]
	db    *sql.DB
	table string
}

// Open opens (creating if necessary) a SQLite database at path and
// ensures the table for this trunk's document type exists.
func Open[T any](path, typeName string) (*Trunk[T], error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("acorndb: open sql trunk: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers

	table := "acorn_" + typeName
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		payload_blob BLOB NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		version INTEGER NOT NULL,
		expires_at TIMESTAMP NULL
	)`, table)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("acorndb: create table %s: %w", table, err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_timestamp ON %s (timestamp DESC)`, table, table)
	if _, err := db.Exec(idx); err != nil {
		db.Close()
		return nil, fmt.Errorf("acorndb: create timestamp index on %s: %w", table, err)
	}

	t := &Trunk[T]{db: db, table: table}
	t.base = trunk.NewBase[T](trunk.TypeSQL, trunk.DefaultBatchThreshold, trunk.DefaultFlushInterval, t.applyBatch)
	return t, nil
}

// NativeIndex describes (but does not create) a SQL-native secondary
// index over this trunk's table, delegating to index.Native.
func (t *Trunk[T]) NativeIndex(column, jsonPath string, unique bool) *index.Native {
	return index.NewNative(t.db, t.table, "payload_blob", column, jsonPath, unique)
}

func (t *Trunk[T]) applyBatch(ctx context.Context, batch []trunk.PendingWrite) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("acorndb: begin sql batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	upsert := fmt.Sprintf(`INSERT INTO %s (id, payload_blob, timestamp, version, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload_blob = excluded.payload_blob,
			timestamp = excluded.timestamp,
			version = excluded.version,
			expires_at = excluded.expires_at`, t.table)
	del := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, t.table)

	for _, pw := range batch {
		if pw.Deleted {
			if _, err := tx.ExecContext(ctx, del, pw.ID); err != nil {
				return fmt.Errorf("acorndb: sql delete %s: %w", pw.ID, err)
			}
			continue
		}
		ts := time.UnixMicro(pw.Timestamp).UTC()
		var expires any
		if pw.ExpiresAt != 0 {
			expires = time.UnixMicro(pw.ExpiresAt).UTC()
		}
		if _, err := tx.ExecContext(ctx, upsert, pw.ID, pw.Blob, ts, pw.Version, expires); err != nil {
			return fmt.Errorf("acorndb: sql upsert %s: %w", pw.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("acorndb: commit sql batch: %w", err)
	}
	return nil
}

func (t *Trunk[T]) decode(blob []byte) (nut.Nut[T], error) {
	ctx := root.NewContext(root.OpRead, "", "trunk:sql")
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
	ctx := root.NewContext(root.OpWrite, n.ID, "trunk:sql")
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
	pw := trunk.PendingWrite{ID: n.ID, Blob: blob, Timestamp: n.Timestamp.UnixMicro(), Version: n.Version}
	if n.ExpiresAt != nil {
		pw.ExpiresAt = n.ExpiresAt.UnixMicro()
	}
	t.base.Enqueue(pw)
	return nil
}

func (t *Trunk[T]) Crack(ctx context.Context, id string) (nut.Nut[T], bool, error) {
	q := fmt.Sprintf(`SELECT payload_blob FROM %s WHERE id = ?`, t.table)
	var blob []byte
	err := t.db.QueryRowContext(ctx, q, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nut.Nut[T]{}, false, nil
	}
	if err != nil {
		return nut.Nut[T]{}, false, fmt.Errorf("acorndb: sql select %s: %w", id, err)
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
	q := fmt.Sprintf(`SELECT payload_blob FROM %s ORDER BY timestamp DESC`, t.table)
	rows, err := t.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("acorndb: sql scan %s: %w", t.table, err)
	}
	defer rows.Close()

	var out []nut.Nut[T]
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("acorndb: scan row: %w", err)
		}
		n, err := t.decode(blob)
		if err != nil {
			// One undecodable row must not break the whole scan.
			if errors.Is(err, acornerr.ErrDeserialization) {
				log.Logger.Warn().Err(err).Msg("acorndb: skipping undecodable document")
				continue
			}
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
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
		SupportsHistory:       false,
		SupportsSync:          true,
		IsDurable:             true,
		SupportsAsync:         true,
		SupportsNativeIndexes: true,
		TrunkType:             trunk.TypeSQL,
	}
}

func (t *Trunk[T]) Roots() []root.Root     { return t.base.Pipeline().Roots() }
func (t *Trunk[T]) AddRoot(r root.Root)    { t.base.Pipeline().Add(r) }
func (t *Trunk[T]) RemoveRoot(name string) { t.base.Pipeline().Remove(name) }

// Flush forces pending writes through in one transaction immediately
// instead of waiting for the batch threshold or the flush timer.
func (t *Trunk[T]) Flush(ctx context.Context) error { return t.base.Flush(ctx) }

func (t *Trunk[T]) Dispose() error {
	if err := t.base.Dispose(); err != nil {
		return err
	}
	return t.db.Close()
}
