// Package entity is the persistent-object layer of the emberfell server: a
// generic mechanism by which independent subsystems declare typed, validated,
// serializable fields on shared game objects without knowing about each
// other's fields.
//
// The pieces, leaves first: an [Attribute] is the per-field rulebook; a
// [BlobSpec] is a composable, named collection of attributes and nested
// blobs; a [Registry] merges blob specs across a type hierarchy into one
// canonical schema per [Type], generates time-ordered identifiers, and sweeps
// dirty instances to their stores; an [Entity] is the live object owning its
// value tree, identifier, storage key, and dirty flag.
//
// Execution is single-threaded and cooperative: all mutation, caching, and
// store calls happen synchronously within one control flow. The key-cache
// and pending-key sequences are read-modify-write across several steps, so
// any future move to parallel mutation must serialize access per entity.
package entity

import (
	"encoding/json"
	"reflect"
)

// unsetValue is the type of the Unset sentinel.
type unsetValue struct{}

// Unset marks an attribute that has never been assigned. It is a legitimate
// steady state for fields awaiting later initialization, compares as absent
// (see IsUnset), and never reaches an attribute's Serialize or Deserialize
// hook. On the wire it encodes as JSON null.
var Unset unsetValue

// MarshalJSON encodes the sentinel as null so that unset fields survive a
// round trip through JSON-backed stores.
func (unsetValue) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IsUnset reports whether v is the Unset sentinel (or a nil decoded from it).
func IsUnset(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(unsetValue)
	return ok
}

// Attribute is the type-level rulebook governing one field, shared by every
// instance of the schema it is registered in. All hooks are optional.
//
// Default is referenced, not copied, into each fresh instance until first
// write; never use a shared mutable value for it.
type Attribute struct {
	// Default is the initial value of the field on a fresh instance.
	Default any
	// ReadOnly rejects writes through Set with ErrReadOnly. Deserialized
	// data still lands, since persisted records are trusted.
	ReadOnly bool
	// Validate vets a candidate value before commit. It may return a
	// sanitized replacement. A non-nil error aborts the write.
	Validate func(v any, e *Entity) (any, error)
	// Finalize normalizes a validated value just before commit, e.g.
	// canonicalizing case. It always runs on the Set path.
	Finalize func(v any, e *Entity) any
	// Changed runs after a value is committed, for side effects.
	Changed func(e *Entity, old, new any)
	// Serialize converts a committed value to a storable primitive. Skipped
	// for Unset.
	Serialize func(v any) any
	// Deserialize converts a stored primitive back to a live value. Skipped
	// for Unset.
	Deserialize func(v any) (any, error)
}

func (a *Attribute) validate(v any, e *Entity) (any, error) {
	if a.Validate == nil {
		return v, nil
	}
	return a.Validate(v, e)
}

func (a *Attribute) finalize(v any, e *Entity) any {
	if a.Finalize == nil {
		return v
	}
	return a.Finalize(v, e)
}

func (a *Attribute) changed(e *Entity, old, new any) {
	if a.Changed != nil {
		a.Changed(e, old, new)
	}
}

func (a *Attribute) serialize(v any) any {
	if a.Serialize == nil {
		return v
	}
	return a.Serialize(v)
}

func (a *Attribute) deserialize(v any) (any, error) {
	if a.Deserialize == nil {
		return v, nil
	}
	return a.Deserialize(v)
}

// cloneValue deep-copies the JSON-compatible subset of values (maps, slices,
// scalars). Anything else is returned as-is.
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

// equalValues compares attribute or record values loosely: numeric types are
// normalized first so that a live int matches the float64 a JSON store hands
// back for the same record.
func equalValues(a, b any) bool {
	if IsUnset(a) || IsUnset(b) {
		return IsUnset(a) && IsUnset(b)
	}
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
