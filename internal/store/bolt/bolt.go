// Package bolt stores records as JSON values in a bbolt database, one bucket
// per entity type. Several stores can share a single database file.
package bolt

import (
	"encoding/json"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/emberfell/emberfell/internal/store"
)

// DB wraps one bbolt database file.
type DB struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the database at path. The open fails after
// a second if another process holds the file lock.
func Open(path string) (*DB, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: opening %s: %w", path, err)
	}
	return &DB{db: db}, nil
}

// Close releases the database file.
func (d *DB) Close() error {
	return d.db.Close()
}

// Bucket returns a store over the named bucket, creating it if needed.
func (d *DB) Bucket(name string) (*Store, error) {
	if name == "" {
		return nil, fmt.Errorf("bolt: empty bucket name")
	}
	err := d.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: creating bucket %q: %w", name, err)
	}
	return &Store{db: d.db, bucket: []byte(name)}, nil
}

// Store is one bucket of a shared database.
type Store struct {
	db     *bbolt.DB
	bucket []byte
}

func (s *Store) Has(key string) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		ok = tx.Bucket(s.bucket).Get([]byte(key)) != nil
		return nil
	})
	return ok, err
}

func (s *Store) Get(key string) (store.Record, error) {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(s.bucket).Get([]byte(key)); v != nil {
			raw = make([]byte, len(v))
			copy(raw, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%q: %w", key, store.ErrNotFound)
	}
	var rec store.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("bolt: decoding %q: %w", key, err)
	}
	return rec, nil
}

func (s *Store) Put(key string, rec store.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("bolt: encoding %q: %w", key, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), raw)
	})
}

func (s *Store) Delete(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

func (s *Store) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}
