package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	bolt "go.etcd.io/bbolt"
)

// bboltBucket is the single bucket every BboltStore keeps its entries in.
const bboltBucket = "kv"

// BboltStore is a StorageController backed by an embedded bbolt database,
// giving the base storage layer real persistence across process restarts.
// Values are JSON-marshaled before being written; BytesUsed sums the raw
// on-disk value sizes rather than re-serializing the whole keyspace, since
// bbolt already tracks per-key bytes cheaply.
//
// Like MapStore, a BboltStore carries no size limit or eviction policy of
// its own — wrap it in NewMemoryLimited for bounded-memory semantics.
type BboltStore struct {
	db *bolt.DB
}

// NewBboltStore opens (or creates) the database at path and ensures the
// bucket exists.
func NewBboltStore(path string) (*BboltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bbolt store %q: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bboltBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bbolt bucket: %w", err)
	}
	return &BboltStore{db: db}, nil
}

// Close releases the underlying database file handle.
func (b *BboltStore) Close() error {
	return b.db.Close()
}

// Exists reports whether key is present.
func (b *BboltStore) Exists(key string) bool {
	_, ok := b.Get(key)
	return ok
}

// Set upserts key→value, marshaling value to JSON for storage.
func (b *BboltStore) Set(key string, value Value) {
	data, err := Marshal(value)
	if err != nil {
		return
	}
	_ = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bboltBucket)).Put([]byte(key), data)
	})
}

// Get returns the value for key, if present.
func (b *BboltStore) Get(key string) (Value, bool) {
	var (
		data []byte
		ok   bool
	)
	_ = b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bboltBucket)).Get([]byte(key))
		if v != nil {
			data = append([]byte(nil), v...)
			ok = true
		}
		return nil
	})
	if !ok {
		return nil, false
	}
	var value Value
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, false
	}
	return value, true
}

// Delete removes key, returning its prior value if it existed.
func (b *BboltStore) Delete(key string) (Value, bool) {
	value, ok := b.Get(key)
	if !ok {
		return nil, false
	}
	_ = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bboltBucket)).Delete([]byte(key))
	})
	return value, true
}

// Keys returns every key matching pattern, sorted.
func (b *BboltStore) Keys(pattern string) []string {
	var out []string
	_ = b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bboltBucket)).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if MatchGlob(pattern, string(k)) {
				out = append(out, string(k))
			}
		}
		return nil
	})
	sort.Strings(out)
	return out
}

// Clean removes every entry.
func (b *BboltStore) Clean() {
	_ = b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bboltBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(bboltBucket))
		return err
	})
}

// Dumps serializes every entry as a single JSON object.
func (b *BboltStore) Dumps() (string, error) {
	out := make(map[string]Value)
	for _, k := range b.Keys("*") {
		if v, ok := b.Get(k); ok {
			out[k] = v
		}
	}
	data, err := Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Loads replaces matching keys from jsonText. Malformed input is silently
// treated as empty, matching MapStore.Loads.
func (b *BboltStore) Loads(jsonText string) {
	var obj map[string]Value
	if err := json.Unmarshal([]byte(jsonText), &obj); err != nil {
		return
	}
	for k, v := range obj {
		b.Set(k, v)
	}
}

// Dump writes Dumps() to path (a plain JSON snapshot, independent of the
// bbolt file itself).
func (b *BboltStore) Dump(path string) error {
	text, err := b.Dumps()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(text), 0o600)
}

// Load reads path and calls Loads on its contents.
func (b *BboltStore) Load(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is caller-controlled
	if err != nil {
		return err
	}
	b.Loads(string(data))
	return nil
}

// BytesUsed sums the JSON-serialized size of every stored value plus its key.
func (b *BboltStore) BytesUsed() int64 {
	var total int64
	_ = b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bboltBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			total += int64(len(k) + len(v))
		}
		return nil
	})
	return total
}
