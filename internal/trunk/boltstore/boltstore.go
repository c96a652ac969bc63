// Package boltstore implements AcornDB's embedded single-file durable
// trunk on top of go.etcd.io/bbolt: one bucket per document type,
// keyed by document id, every write wrapped in db.Update and every
// read in db.View.
package boltstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/acorndb/acorndb/internal/nut"
	"github.com/acorndb/acorndb/internal/root"
	"github.com/acorndb/acorndb/internal/trunk"
	"github.com/acorndb/acorndb/pkg/acornerr"
	"github.com/acorndb/acorndb/pkg/log"
)

// Trunk persists every document for one type in its own bbolt bucket
// inside a shared database file.
type Trunk[T any] struct {
	base   *trunk.Base[T]
	db     *bolt.DB
	bucket []byte
}

// Open opens (creating if necessary) the bbolt file at path and ensures
// bucket exists for this trunk's document type.
func Open[T any](path, bucket string) (*Trunk[T], error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("acorndb: open bolt trunk: %w", err)
	}

	bucketName := []byte(bucket)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("acorndb: create bolt bucket %s: %w", bucket, err)
	}

	t := &Trunk[T]{db: db, bucket: bucketName}
	t.base = trunk.NewBase[T](trunk.TypeBolt, trunk.DefaultBatchThreshold, trunk.DefaultFlushInterval, t.applyBatch)
	return t, nil
}

func (t *Trunk[T]) applyBatch(_ context.Context, batch []trunk.PendingWrite) error {
	return t.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(t.bucket)
		for _, pw := range batch {
			if pw.Deleted {
				if err := b.Delete([]byte(pw.ID)); err != nil {
					return fmt.Errorf("acorndb: bolt delete %s: %w", pw.ID, err)
				}
				continue
			}
			if err := b.Put([]byte(pw.ID), pw.Blob); err != nil {
				return fmt.Errorf("acorndb: bolt put %s: %w", pw.ID, err)
			}
		}
		return nil
	})
}

func (t *Trunk[T]) decode(blob []byte) (nut.Nut[T], error) {
	ctx := root.NewContext(root.OpRead, "", "trunk:bolt")
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
	ctx := root.NewContext(root.OpWrite, n.ID, "trunk:bolt")
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
	var blob []byte
	err := t.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(t.bucket).Get([]byte(id))
		if v != nil {
			blob = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nut.Nut[T]{}, false, fmt.Errorf("acorndb: bolt get %s: %w", id, err)
	}
	if blob == nil {
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
	var blobs [][]byte
	err := t.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(t.bucket).ForEach(func(_, v []byte) error {
			blobs = append(blobs, append([]byte(nil), v...))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("acorndb: bolt scan: %w", err)
	}

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
		SupportsAsync:   false,
		TrunkType:       trunk.TypeBolt,
	}
}

func (t *Trunk[T]) Roots() []root.Root     { return t.base.Pipeline().Roots() }
func (t *Trunk[T]) AddRoot(r root.Root)    { t.base.Pipeline().Add(r) }
func (t *Trunk[T]) RemoveRoot(name string) { t.base.Pipeline().Remove(name) }

func (t *Trunk[T]) Dispose() error {
	if err := t.base.Dispose(); err != nil {
		return err
	}
	return t.db.Close()
}
