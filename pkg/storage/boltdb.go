package storage

import (
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// initialMmapSize sizes the environment at 8 GiB up front. bbolt grows
// its mmap automatically, so this is advisory only: it is passed as
// Options.InitialMmapSize to avoid remaps during the first heavy
// canonization burst.
const initialMmapSize = 8 << 30

// Store is the data service's storage engine adapter. It owns one
// bbolt database file holding the six named buckets.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the environment at path, sized per
// initialMmapSize, and ensures every named bucket exists.
func Open(path string) (*Store, error) {
	dbPath := filepath.Join(path, "ledger.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		InitialMmapSize: initialMmapSize,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open environment: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return fmt.Errorf("storage: create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close performs a final sync and closes the environment.
func (s *Store) Close() error {
	if err := s.db.Sync(); err != nil {
		s.db.Close()
		return fmt.Errorf("storage: sync on close: %w", err)
	}
	return s.db.Close()
}

// Tx is a storage transaction. A Tx created with a non-nil parent shares
// the parent's live *bolt.Tx: bbolt transactions do not nest, so Commit
// and Abort are no-ops on a borrowed Tx -- only the outermost owner
// actually finalizes the underlying bolt.Tx.
type Tx struct {
	tx       *bolt.Tx
	writable bool
	owned    bool // true if this Tx must Commit/Rollback the underlying bolt.Tx
}

// Begin starts a transaction. If parent is non-nil, the returned Tx
// shares the parent's underlying bolt.Tx (a "nested" transaction that
// sees the parent's uncommitted writes) and defers commit/abort to
// whichever Tx owns it.
func (s *Store) Begin(parent *Tx, writable bool) (*Tx, error) {
	if parent != nil {
		return &Tx{tx: parent.tx, writable: parent.writable, owned: false}, nil
	}

	btx, err := s.db.Begin(writable)
	if err != nil {
		return nil, fmt.Errorf("storage: begin transaction: %w", err)
	}
	return &Tx{tx: btx, writable: writable, owned: true}, nil
}

// Commit commits the transaction. It is a no-op on a borrowed (nested) Tx.
func (t *Tx) Commit() error {
	if !t.owned {
		return nil
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit transaction: %w", err)
	}
	return nil
}

// Abort rolls back the transaction. It is a no-op on a borrowed (nested) Tx.
func (t *Tx) Abort() {
	if !t.owned {
		return
	}
	_ = t.tx.Rollback()
}

func (t *Tx) bucket(b Bucket) (*bolt.Bucket, error) {
	bk := t.tx.Bucket([]byte(b))
	if bk == nil {
		return nil, fmt.Errorf("storage: bucket %s does not exist", b)
	}
	return bk, nil
}

// Get reads a value. It returns ErrNotFound when the key is absent.
func (t *Tx) Get(b Bucket, key []byte) ([]byte, error) {
	bk, err := t.bucket(b)
	if err != nil {
		return nil, err
	}
	v := bk.Get(key)
	if v == nil {
		return nil, ErrNotFound
	}
	// bbolt's returned slice is only valid for the life of the
	// transaction; copy it so callers may hold it past Commit/Abort.
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Put writes a value. When noOverwrite is true and the key already
// exists, Put fails without modifying the bucket (emulating MDB_NOOVERWRITE).
func (t *Tx) Put(b Bucket, key, val []byte, noOverwrite bool) error {
	if !t.writable {
		return fmt.Errorf("storage: put on read-only transaction")
	}
	bk, err := t.bucket(b)
	if err != nil {
		return err
	}
	if noOverwrite && bk.Get(key) != nil {
		return fmt.Errorf("storage: put failed, key already exists")
	}
	return bk.Put(key, val)
}

// Del deletes a key. Deleting an absent key is not an error.
func (t *Tx) Del(b Bucket, key []byte) error {
	if !t.writable {
		return fmt.Errorf("storage: del on read-only transaction")
	}
	bk, err := t.bucket(b)
	if err != nil {
		return err
	}
	return bk.Delete(key)
}
