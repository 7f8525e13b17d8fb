// Package store defines the persistence contract consumed by the entity core.
//
// A Store is a flat key/value collection of serialized entity records. The
// entity layer treats every call as blocking and propagates I/O errors
// unmodified; durability, locking, and retry policy belong to the adapter.
// Implementations live in subpackages (memory, jsonfile, bolt).
package store

import "errors"

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// Record is a serialized entity: one entry per top-level scalar field or
// nested blob, plus the reserved entries "uid", "flags", and "tags".
type Record = map[string]any

// CloneRecord deep-copies the JSON-compatible parts of a record so adapters
// can hand out snapshots that callers may freely mutate.
func CloneRecord(rec Record) Record {
	if rec == nil {
		return nil
	}
	return cloneValue(rec).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// Store is the capability set the entity core needs from a backing store.
type Store interface {
	// Has reports whether a record exists under key.
	Has(key string) (bool, error)
	// Get fetches the record stored under key, or ErrNotFound.
	Get(key string) (Record, error)
	// Put stores a record under key, replacing any previous record.
	Put(key string, rec Record) error
	// Delete removes the record under key. Deleting a missing key is not an
	// error.
	Delete(key string) error
	// Keys enumerates every key in the store, in no particular order.
	Keys() ([]string, error)
}
