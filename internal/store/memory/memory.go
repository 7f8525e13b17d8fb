// Package memory is an in-process store for tests and ephemeral entity types.
package memory

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/emberfell/emberfell/internal/store"
)

// Store keeps records in a map. Records are deep-copied on the way in and
// out, so callers never share memory with the store.
type Store struct {
	mu   sync.Mutex
	recs map[string]store.Record
}

// New creates an empty store.
func New() *Store {
	return &Store{recs: make(map[string]store.Record)}
}

func (s *Store) Has(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.recs[key]
	return ok, nil
}

func (s *Store) Get(key string) (store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[key]
	if !ok {
		return nil, fmt.Errorf("%q: %w", key, store.ErrNotFound)
	}
	return store.CloneRecord(rec), nil
}

func (s *Store) Put(key string, rec store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[key] = store.CloneRecord(rec)
	return nil
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, key)
	return nil
}

func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := slices.Collect(maps.Keys(s.recs))
	slices.Sort(keys)
	return keys, nil
}

// Len reports the number of records held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}
