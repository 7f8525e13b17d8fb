package entity

import (
	"fmt"
	"log/slog"

	"github.com/emberfell/emberfell/internal/store"
)

// oldKeyTag marks an entity whose storage key changed after it was last
// saved. The value is the previous key; the next save retires that record
// before writing the new one.
const oldKeyTag = "_old_key"

// Entity is one live object: an identifier, a value tree shaped by its type's
// schema, flags, and tags. Entities are created through Type.New or Load,
// never directly.
type Entity struct {
	typ   *Type
	uid   string
	blob  *Blob
	flags *FlagSet
	tags  *TagMap

	dirty   bool
	active  bool
	savable bool
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s<%s>", e.typ.name, e.uid)
}

// Type returns the registered type this entity was created through.
func (e *Entity) Type() *Type { return e.typ }

// UID returns the identifier. It is assigned at construction and never
// changes.
func (e *Entity) UID() string { return e.uid }

// Flags returns the entity's flag set.
func (e *Entity) Flags() *FlagSet { return e.flags }

// Tags returns the entity's tag map.
func (e *Entity) Tags() *TagMap { return e.tags }

// IsDirty reports whether the entity has unsaved changes.
func (e *Entity) IsDirty() bool { return e.dirty }

// MarkDirty flags the entity for the next save sweep.
func (e *Entity) MarkDirty() { e.dirty = true }

// IsSavable reports whether a save sweep should persist this entity: it has a
// store and has not been excluded from saving.
func (e *Entity) IsSavable() bool { return e.typ.store != nil && e.savable }

// SetSavable includes or excludes the entity from save sweeps.
func (e *Entity) SetSavable(savable bool) { e.savable = savable }

// IsActive reports whether the entity participates in the world.
func (e *Entity) IsActive() bool { return e.active }

// SetActive marks the entity in or out of the world. Activity is a runtime
// property; it is not persisted.
func (e *Entity) SetActive(active bool) { e.active = active }

// Get returns the value of a top-level field, or Unset.
func (e *Entity) Get(name string) any { return e.blob.Get(name) }

// Lookup returns the value of a top-level field and whether the schema
// defines it.
func (e *Entity) Lookup(name string) (any, bool) { return e.blob.Lookup(name) }

// Set assigns a top-level field through its validation pipeline.
func (e *Entity) Set(name string, value any) error { return e.blob.Set(name, value) }

// Sub returns a nested blob by name, or nil.
func (e *Entity) Sub(name string) *Blob { return e.blob.Sub(name) }

// KeyName returns the field name the storage key lives under.
func (e *Entity) KeyName() string { return e.typ.key.name() }

// Key returns the current storage key: the computed key's derived value, the
// direct key field's value, or the identifier when the type keys by it.
func (e *Entity) Key() any {
	switch {
	case e.typ.key.computed():
		return e.typ.key.Get(e)
	case e.typ.key.name() == uidKeyName:
		return e.uid
	default:
		return e.blob.Get(e.typ.key.Field)
	}
}

// SetKey assigns a new storage key through the same pipeline as any field
// write. Types keyed by identifier have no assignable key.
func (e *Entity) SetKey(key any) error {
	switch {
	case e.typ.key.computed():
		return e.typ.key.Set(e, key)
	case e.typ.key.name() == uidKeyName:
		return fmt.Errorf("type %s: %w: key is the uid", e.typ.name, ErrReadOnly)
	default:
		return e.blob.Set(e.typ.key.Field, key)
	}
}

// keyChanged records that the storage key moved away from old: the previous
// key is remembered for retirement at the next save, and the key cache entry
// relocates to the new key. Only the first old key since the last save is
// remembered; intermediate keys never reached the store, so there is nothing
// to retire under them.
func (e *Entity) keyChanged(old any) {
	if s, ok := old.(string); ok {
		if _, pending := e.tags.Get(oldKeyTag); !pending {
			e.tags.Set(oldKeyTag, s)
		}
	}
	if c := e.typ.keyCache(); c != nil {
		c.removeIf(old, e)
		c.add(e.Key(), e)
	}
}

func (e *Entity) keyString() (string, error) {
	key := e.Key()
	s, ok := key.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s: %w: %v (%T)", e, ErrBadKey, key, key)
	}
	return s, nil
}

func (e *Entity) logger() *slog.Logger {
	return e.typ.reg.log
}

// Serialize flattens the entity into a storable record. The reserved keys
// "uid", "flags", and "tags" carry identity and annotations alongside the
// schema fields.
func (e *Entity) Serialize() (store.Record, error) {
	data, err := e.blob.Serialize()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e, err)
	}
	data["uid"] = e.uid
	data["flags"] = e.flags.List()
	data["tags"] = e.tags.Map()
	return data, nil
}

// Deserialize merges a record into the entity: the reserved keys restore
// identity, flags, and tags; everything else feeds the blob tree's trusted
// path. Field values arrive as the store produced them, without validation.
func (e *Entity) Deserialize(data store.Record) error {
	rest := make(map[string]any, len(data))
	for k, v := range data {
		switch k {
		case "uid":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("%s: uid must be a string, got %T", e.typ.name, v)
			}
			e.uid = s
		case "flags":
			switch flags := v.(type) {
			case []string:
				e.flags.Set(flags...)
			case []any:
				for _, f := range flags {
					s, ok := f.(string)
					if !ok {
						return fmt.Errorf("%s: flag must be a string, got %T", e.typ.name, f)
					}
					e.flags.Set(s)
				}
			case nil:
			default:
				return fmt.Errorf("%s: flags must be a list, got %T", e.typ.name, v)
			}
		case "tags":
			switch tags := v.(type) {
			case map[string]any:
				e.tags.replace(tags)
			case nil:
			default:
				return fmt.Errorf("%s: tags must be a map, got %T", e.typ.name, v)
			}
		default:
			rest[k] = v
		}
	}
	return e.blob.Deserialize(rest)
}

// Save writes the entity under its current key and clears the dirty mark. If
// the key changed since the last save, the record under the previous key is
// retired first so the entity never exists twice in the store.
func (e *Entity) Save() error {
	if e.typ.store == nil {
		e.logger().Warn("Can't save entity, no store", "entity", e.String())
		return fmt.Errorf("%s: %w", e, ErrNoStore)
	}
	if !e.savable {
		e.logger().Warn("Can't save entity, not savable", "entity", e.String())
		return fmt.Errorf("%s: %w", e, ErrNotSavable)
	}
	if old, ok := e.tags.Get(oldKeyTag); ok {
		if s, ok := old.(string); ok {
			has, err := e.typ.store.Has(s)
			if err != nil {
				return fmt.Errorf("%s: checking old key: %w", e, err)
			}
			if has {
				if err := e.typ.store.Delete(s); err != nil {
					return fmt.Errorf("%s: retiring old key %q: %w", e, s, err)
				}
			}
		}
		e.tags.Delete(oldKeyTag)
	}
	key, err := e.keyString()
	if err != nil {
		return err
	}
	data, err := e.Serialize()
	if err != nil {
		return err
	}
	if err := e.typ.store.Put(key, data); err != nil {
		return fmt.Errorf("%s: %w", e, err)
	}
	e.dirty = false
	e.typ.reg.metrics.entitySaved()
	return nil
}

// Revert reloads the entity from its store record, overwriting unsaved field
// changes, and clears the dirty mark. The stored record must carry the same
// identifier; a different one means the key now addresses another entity.
func (e *Entity) Revert() error {
	if e.typ.store == nil {
		return fmt.Errorf("%s: %w", e, ErrNoStore)
	}
	key, err := e.keyString()
	if err != nil {
		return err
	}
	data, err := e.typ.store.Get(key)
	if err != nil {
		return fmt.Errorf("%s: %w", e, err)
	}
	if uid, _ := data["uid"].(string); uid != e.uid {
		return fmt.Errorf("%s: record %q has uid %q: %w", e, key, uid, ErrUIDMismatch)
	}
	if err := e.Deserialize(data); err != nil {
		return err
	}
	e.dirty = false
	return nil
}

// Clone creates a new entity of the same type with the same field values but
// its own identifier, stored under newKey. The source entity is untouched.
// The key must be free in the store.
func (e *Entity) Clone(newKey any) (*Entity, error) {
	if e.typ.store == nil {
		return nil, fmt.Errorf("%s: %w", e, ErrNoStore)
	}
	ks, ok := newKey.(string)
	if !ok || ks == "" {
		return nil, fmt.Errorf("%s: clone: %w: %v (%T)", e, ErrBadKey, newKey, newKey)
	}
	has, err := e.typ.store.Has(ks)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e, err)
	}
	if has {
		return nil, fmt.Errorf("%s: clone to %q: %w", e, ks, ErrKeyExists)
	}
	data, err := e.Serialize()
	if err != nil {
		return nil, err
	}
	delete(data, "uid")
	clone, err := e.typ.New(data)
	if err != nil {
		return nil, err
	}
	if err := clone.SetKey(newKey); err != nil {
		return nil, err
	}
	// The clone inherited the source's values, not its history: it never
	// owned a record under the source's key, so there is nothing to retire.
	clone.tags.Delete(oldKeyTag)
	return clone, nil
}

// Delete removes the entity's store record. The live instance keeps its
// values; it simply no longer exists in the store.
func (e *Entity) Delete() error {
	if e.typ.store == nil {
		return fmt.Errorf("%s: %w", e, ErrNoStore)
	}
	key, err := e.keyString()
	if err != nil {
		return err
	}
	if err := e.typ.store.Delete(key); err != nil {
		return fmt.Errorf("%s: %w", e, err)
	}
	return nil
}
