package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/worklog/internal/storage"
	"go.etcd.io/bbolt"
)

const (
	bucketEntries     = "entries"
	bucketSpans       = "spans"
	bucketIndexes     = "indexes"
	bucketIndexUUID   = "entry_uuid"
	bucketIndexDate   = "entry_date"
	bucketIndexEntry  = "span_entry"
	bucketIndexOpen   = "span_open"
	indexKeySeparator = "/"
)

var indexMarker = []byte{'1'}

// Store implements the storage.Store interface using bbolt.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store.
func Open(path string) (*Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return storage.EnsureDir(dir)
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{bucketEntries, bucketSpans, bucketIndexes} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}

		indexes := tx.Bucket([]byte(bucketIndexes))
		if indexes == nil {
			return fmt.Errorf("indexes bucket missing")
		}
		for _, name := range []string{bucketIndexUUID, bucketIndexDate, bucketIndexEntry, bucketIndexOpen} {
			if _, err := indexes.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s index: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the underlying store database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn inside a read-write bbolt transaction.
func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{ctx: ctx, tx: tx})
	})
}

// View runs fn inside a read-only bbolt transaction.
func (s *Store) View(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		return fn(&boltTx{ctx: ctx, tx: tx})
	})
}

type boltTx struct {
	ctx context.Context
	tx  *bbolt.Tx
}

// Entries returns the entry store bound to this transaction.
func (t *boltTx) Entries() storage.EntryStore { return &entryStore{t: t} }

// Spans returns the span store bound to this transaction.
func (t *boltTx) Spans() storage.SpanStore { return &spanStore{t: t} }

func (t *boltTx) check(write bool) error {
	if err := t.ctx.Err(); err != nil {
		return err
	}
	if write && !t.tx.Writable() {
		return storage.ErrReadOnly
	}
	return nil
}

func (t *boltTx) bucket(name string) (*bbolt.Bucket, error) {
	b := t.tx.Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("bucket missing: %s", name)
	}
	return b, nil
}

func (t *boltTx) index(name string) (*bbolt.Bucket, error) {
	root, err := t.bucket(bucketIndexes)
	if err != nil {
		return nil, err
	}
	b := root.Bucket([]byte(name))
	if b == nil {
		return nil, fmt.Errorf("index bucket missing: %s", name)
	}
	return b, nil
}

func marshal(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return data, nil
}

func unmarshal(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	return nil
}

// idKey renders ids zero padded so cursor order matches numeric order.
func idKey(id int64) string {
	return fmt.Sprintf("%020d", id)
}

func compositeKey(parts ...string) string {
	return strings.Join(parts, indexKeySeparator)
}

// lastKeyID parses the trailing id segment of a composite index key.
func lastKeyID(key []byte) (int64, error) {
	s := string(key)
	if i := strings.LastIndex(s, indexKeySeparator); i >= 0 {
		s = s[i+1:]
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse index key %q: %w", key, err)
	}
	return id, nil
}

func getValue[T any](t *boltTx, bucket string, key string) (*T, error) {
	if err := t.check(false); err != nil {
		return nil, err
	}
	b, err := t.bucket(bucket)
	if err != nil {
		return nil, err
	}
	value := b.Get([]byte(key))
	if value == nil {
		return nil, storage.ErrNotFound
	}
	var result T
	if err := unmarshal(value, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func putValue(t *boltTx, bucket string, key string, value any) error {
	if err := t.check(true); err != nil {
		return err
	}
	data, err := marshal(value)
	if err != nil {
		return err
	}
	b, err := t.bucket(bucket)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func nextID(t *boltTx, bucket string) (int64, error) {
	if err := t.check(true); err != nil {
		return 0, err
	}
	b, err := t.bucket(bucket)
	if err != nil {
		return 0, err
	}
	seq, err := b.NextSequence()
	if err != nil {
		return 0, fmt.Errorf("next sequence for %s: %w", bucket, err)
	}
	return int64(seq), nil
}

// scanIndex calls fn with the id encoded in every key under prefix.
func scanIndex(t *boltTx, index string, prefix string, fn func(id int64) error) error {
	if err := t.check(false); err != nil {
		return err
	}
	b, err := t.index(index)
	if err != nil {
		return err
	}
	c := b.Cursor()
	p := []byte(prefix)
	for k, _ := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
		if err := t.ctx.Err(); err != nil {
			return err
		}
		id, err := lastKeyID(k)
		if err != nil {
			return err
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}
