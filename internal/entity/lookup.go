package entity

import (
	"errors"
	"fmt"

	"github.com/emberfell/emberfell/internal/store"
)

// New creates an entity of this type. A nil data map yields a fresh entity
// with schema defaults and a newly minted identifier; a record (from a store
// or a clone) restores values through the trusted path and keeps its
// identifier. The entity is registered live and, when its key slot is free,
// cached under its key.
func (t *Type) New(data store.Record) (*Entity, error) {
	e := &Entity{typ: t, savable: true}
	e.flags = newFlagSet(e.MarkDirty)
	e.tags = newTagMap(e.MarkDirty)
	e.blob = t.spec.instantiate(e)
	if data != nil {
		if err := e.Deserialize(data); err != nil {
			return nil, fmt.Errorf("new %s: %w", t.name, err)
		}
	}
	if e.uid == "" {
		e.uid = t.reg.newUID(t.code)
		e.dirty = true
	}
	t.instances.add(e.uid, e)
	if c := t.keyCache(); c != nil {
		if k := e.Key(); !IsUnset(k) && !c.contains(k) {
			c.add(k, e)
		}
	}
	return e, nil
}

// materialize turns a store record into a live entity, or returns the already
// live instance carrying the record's identifier. Loaded entities start
// clean.
func (t *Type) materialize(key string, rec store.Record) (*Entity, error) {
	uid, _ := rec["uid"].(string)
	if uid == "" {
		t.reg.log.Warn("Stored record has no uid", "type", t.name, "key", key)
	} else if e, ok := t.instances.get(uid); ok {
		return e, nil
	}
	e, err := t.New(rec)
	if err != nil {
		return nil, err
	}
	e.dirty = false
	return e, nil
}

// Load resolves a key to an entity: first the live caches, then the store.
// Passing fromCache=false skips the cache walk and reads the store record,
// though an instance already live under the record's identifier is still
// returned rather than duplicated. A key found nowhere reports
// store.ErrNotFound.
func (t *Type) Load(key any, fromCache bool) (*Entity, error) {
	if fromCache {
		if s, ok := key.(string); ok && t.key.name() == uidKeyName {
			if e, ok := t.instances.get(s); ok {
				return e, nil
			}
		}
		if c := t.keyCache(); c != nil {
			if e, ok := c.get(key); ok {
				t.reg.metrics.cacheHit(t.name, t.key.name())
				return e, nil
			}
			t.reg.metrics.cacheMiss(t.name, t.key.name())
		}
		// The cache is bounded, so a live entity may have fallen out of it.
		for _, e := range t.instances.all() {
			if equalValues(e.Key(), key) {
				if c := t.keyCache(); c != nil {
					c.add(key, e)
				}
				return e, nil
			}
		}
	}
	if t.store == nil {
		return nil, fmt.Errorf("%s %v: %w", t.name, key, store.ErrNotFound)
	}
	s, ok := key.(string)
	if !ok || s == "" {
		return nil, fmt.Errorf("load %s: %w: %v (%T)", t.name, ErrBadKey, key, key)
	}
	rec, err := t.store.Get(s)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", t.name, s, err)
	}
	return t.materialize(s, rec)
}

// Exists reports whether any entity, live or stored, answers to key.
func (t *Type) Exists(key any) (bool, error) {
	if c := t.keyCache(); c != nil && c.contains(key) {
		return true, nil
	}
	for _, e := range t.instances.all() {
		if equalValues(e.Key(), key) {
			return true, nil
		}
	}
	if t.store == nil {
		return false, nil
	}
	s, ok := key.(string)
	if !ok {
		return false, nil
	}
	return t.store.Has(s)
}

// All returns the active live entities of this type.
func (t *Type) All() []*Entity {
	var out []*Entity
	for _, e := range t.instances.all() {
		if e.active {
			out = append(out, e)
		}
	}
	return out
}

// Match selects how Find combines multiple criteria.
type Match int

const (
	// MatchAll keeps entities satisfying every criterion.
	MatchAll Match = iota
	// MatchAny keeps entities satisfying at least one criterion.
	MatchAny
)

// Criterion is one field comparison for Find. The field name "uid" matches
// the identifier.
type Criterion struct {
	Field string
	Value any
}

// FindOptions tunes a Find. The zero value matches all criteria with no
// result limit.
type FindOptions struct {
	Match Match
	Limit int
}

func matchValues(match Match, got []bool) bool {
	if match == MatchAny {
		for _, g := range got {
			if g {
				return true
			}
		}
		return false
	}
	for _, g := range got {
		if !g {
			return false
		}
	}
	return len(got) > 0
}

func (e *Entity) matches(criteria []Criterion, match Match) bool {
	got := make([]bool, len(criteria))
	for i, c := range criteria {
		var v any
		switch c.Field {
		case uidKeyName:
			v = e.uid
		case e.typ.key.name():
			// Computed keys are not blob fields; derive them.
			v = e.Key()
		default:
			v = e.Get(c.Field)
		}
		got[i] = equalValues(v, c.Value)
	}
	return matchValues(match, got)
}

// matchRecord mirrors Entity.matches for a record still in the store. A
// computed key never appears inside the record; it is the key the record is
// stored under.
func (t *Type) matchRecord(key string, rec store.Record, criteria []Criterion, match Match) bool {
	got := make([]bool, len(criteria))
	for i, c := range criteria {
		v := rec[c.Field]
		if v == nil && c.Field == t.key.name() {
			v = key
		}
		got[i] = equalValues(v, c.Value)
	}
	return matchValues(match, got)
}

// Find returns the entities whose fields match the criteria, searching live
// instances first and then store records not represented by a live instance.
// Matching store records are materialized, so a large Find against a big
// store populates the instance table; pass a Limit to stop early.
func (t *Type) Find(criteria []Criterion, opts FindOptions) ([]*Entity, error) {
	if len(criteria) == 0 {
		return nil, fmt.Errorf("find %s: no criteria", t.name)
	}
	var out []*Entity
	seen := make(map[string]bool)
	checked := make(map[string]bool)
	for _, e := range t.instances.all() {
		if s, ok := e.Key().(string); ok {
			checked[s] = true
		}
		if !e.matches(criteria, opts.Match) {
			continue
		}
		if seen[e.uid] {
			continue
		}
		seen[e.uid] = true
		out = append(out, e)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			return out, nil
		}
	}
	if t.store == nil {
		return out, nil
	}
	keys, err := t.store.Keys()
	if err != nil {
		return out, fmt.Errorf("find %s: %w", t.name, err)
	}
	for _, k := range keys {
		if checked[k] {
			continue
		}
		rec, err := t.store.Get(k)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Deleted between Keys and Get.
				continue
			}
			return out, fmt.Errorf("find %s %q: %w", t.name, k, err)
		}
		if !t.matchRecord(k, rec, criteria, opts.Match) {
			continue
		}
		if uid, _ := rec["uid"].(string); uid != "" && seen[uid] {
			continue
		}
		e, err := t.materialize(k, rec)
		if err != nil {
			return out, err
		}
		if seen[e.uid] {
			continue
		}
		seen[e.uid] = true
		out = append(out, e)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			return out, nil
		}
	}
	return out, nil
}

// FindOne returns the single entity matching the criteria, or
// store.ErrNotFound.
func (t *Type) FindOne(criteria []Criterion, match Match) (*Entity, error) {
	found, err := t.Find(criteria, FindOptions{Match: match, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("find %s: %w", t.name, store.ErrNotFound)
	}
	return found[0], nil
}
