package entity

import (
	"fmt"
	"maps"
)

// BlobSpec is a named, composable schema: a collection of attributes and
// nested blob specs that together define an entity type's structure. Specs
// are built once at process start and shared by every instance; they must not
// be mutated after the type is registered.
type BlobSpec struct {
	attrs map[string]*Attribute
	blobs map[string]*BlobSpec
}

// NewBlobSpec creates an empty schema.
func NewBlobSpec() *BlobSpec {
	return &BlobSpec{
		attrs: make(map[string]*Attribute),
		blobs: make(map[string]*BlobSpec),
	}
}

// RegisterAttr adds an attribute under name. The name must be unique among
// both attributes and sub-blobs of this spec.
func (s *BlobSpec) RegisterAttr(name string, attr *Attribute) error {
	if err := s.checkName(name); err != nil {
		return err
	}
	if attr == nil {
		return fmt.Errorf("register attr %q: nil attribute", name)
	}
	s.attrs[name] = attr
	return nil
}

// RegisterBlob adds a nested blob spec under name. The name must be unique
// among both attributes and sub-blobs of this spec.
func (s *BlobSpec) RegisterBlob(name string, sub *BlobSpec) error {
	if err := s.checkName(name); err != nil {
		return err
	}
	if sub == nil {
		return fmt.Errorf("register blob %q: nil spec", name)
	}
	s.blobs[name] = sub
	return nil
}

// MustRegisterAttr is RegisterAttr panicking on error, for use in schema
// builders that run at process start.
func (s *BlobSpec) MustRegisterAttr(name string, attr *Attribute) {
	if err := s.RegisterAttr(name, attr); err != nil {
		panic(err)
	}
}

// MustRegisterBlob is RegisterBlob panicking on error.
func (s *BlobSpec) MustRegisterBlob(name string, sub *BlobSpec) {
	if err := s.RegisterBlob(name, sub); err != nil {
		panic(err)
	}
}

func (s *BlobSpec) checkName(name string) error {
	if name == "" {
		return fmt.Errorf("field name must not be empty")
	}
	if _, ok := s.attrs[name]; ok {
		return fmt.Errorf("%w: attr %q", ErrDuplicateField, name)
	}
	if _, ok := s.blobs[name]; ok {
		return fmt.Errorf("%w: blob %q", ErrDuplicateField, name)
	}
	return nil
}

// merge applies o's entries over s: o's same-named attributes and sub-blobs
// win, differently-named ones accumulate. A name held as an attribute by one
// spec and as a sub-blob by the other is a structural collision.
func (s *BlobSpec) merge(o *BlobSpec) error {
	for name := range o.attrs {
		if _, ok := s.blobs[name]; ok {
			return fmt.Errorf("%w: %q is both attr and blob", ErrDuplicateField, name)
		}
	}
	for name := range o.blobs {
		if _, ok := s.attrs[name]; ok {
			return fmt.Errorf("%w: %q is both attr and blob", ErrDuplicateField, name)
		}
	}
	maps.Copy(s.attrs, o.attrs)
	maps.Copy(s.blobs, o.blobs)
	return nil
}

// instantiate builds the per-entity value tree for this schema: every field
// initialized to its attribute's default, every sub-blob instantiated in
// turn.
func (s *BlobSpec) instantiate(e *Entity) *Blob {
	b := &Blob{
		spec:   s,
		entity: e,
		values: make(map[string]any, len(s.attrs)),
		blobs:  make(map[string]*Blob, len(s.blobs)),
	}
	for name, attr := range s.attrs {
		b.values[name] = attr.Default
	}
	for name, sub := range s.blobs {
		b.blobs[name] = sub.instantiate(e)
	}
	return b
}

// Blob is the live value tree of one entity, shaped by its BlobSpec.
type Blob struct {
	spec   *BlobSpec
	entity *Entity
	values map[string]any
	blobs  map[string]*Blob
}

// Get returns the current value of the named attribute, or Unset when the
// name is unknown.
func (b *Blob) Get(name string) any {
	v, ok := b.values[name]
	if !ok {
		return Unset
	}
	return v
}

// Lookup returns the current value of the named attribute and whether the
// schema knows the name.
func (b *Blob) Lookup(name string) (any, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Sub returns the named nested blob, or nil.
func (b *Blob) Sub(name string) *Blob {
	return b.blobs[name]
}

// Set runs the full write pipeline for the named attribute: validate,
// finalize, commit, key migration, dirty mark, Changed hook. A validation
// failure leaves the previously committed value untouched.
func (b *Blob) Set(name string, value any) error {
	attr, ok := b.spec.attrs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	if attr.ReadOnly {
		return fmt.Errorf("%w: %q", ErrReadOnly, name)
	}
	if !IsUnset(value) {
		var err error
		if value, err = attr.validate(value, b.entity); err != nil {
			return &ValidationError{Name: name, Err: err}
		}
		value = attr.finalize(value, b.entity)
	}
	b.commit(name, attr, value)
	return nil
}

// setRaw commits a deserialized value: persisted data is trusted, so neither
// Validate nor Finalize runs, but key migration, dirty marking, and the
// Changed hook still apply.
func (b *Blob) setRaw(name string, value any) {
	attr, ok := b.spec.attrs[name]
	if !ok {
		return
	}
	b.commit(name, attr, value)
}

func (b *Blob) commit(name string, attr *Attribute, value any) {
	old := b.values[name]
	e := b.entity
	oldKey := e.Key()
	b.values[name] = value
	if !equalValues(e.Key(), oldKey) {
		e.keyChanged(oldKey)
	}
	e.MarkDirty()
	attr.changed(e, old, value)
}

// Serialize builds a storable mapping from every sub-blob's serialized output
// plus every scalar's serialized value. Unset scalars pass through untouched
// (they encode as null). A runtime name collision between a sub-blob key and
// a scalar key is a structural error.
func (b *Blob) Serialize() (map[string]any, error) {
	data := make(map[string]any, len(b.blobs)+len(b.values))
	for name, sub := range b.blobs {
		nested, err := sub.Serialize()
		if err != nil {
			return nil, err
		}
		data[name] = nested
	}
	for name, attr := range b.spec.attrs {
		if _, ok := data[name]; ok {
			return nil, fmt.Errorf("%w: duplicate blob key %q", ErrDuplicateField, name)
		}
		value := b.values[name]
		if !IsUnset(value) {
			value = attr.serialize(value)
		}
		data[name] = value
	}
	return data, nil
}

// Deserialize updates the value tree from a stored mapping. Known scalar keys
// go through the attribute's Deserialize hook and commit without
// re-validation; known sub-blob keys recurse; unmatched keys are logged and
// dropped so old records survive schema evolution. Null values land as Unset.
func (b *Blob) Deserialize(data map[string]any) error {
	for name, value := range data {
		if attr, ok := b.spec.attrs[name]; ok {
			if IsUnset(value) {
				b.setRaw(name, Unset)
				continue
			}
			decoded, err := attr.deserialize(value)
			if err != nil {
				return fmt.Errorf("deserialize %s: %w", name, err)
			}
			b.setRaw(name, decoded)
			continue
		}
		if sub, ok := b.blobs[name]; ok {
			nested, ok := value.(map[string]any)
			if !ok {
				b.entity.logger().Warn("Dropping malformed nested blob",
					"type", b.entity.typ.name, "field", name)
				continue
			}
			if err := sub.Deserialize(nested); err != nil {
				return err
			}
			continue
		}
		b.entity.logger().Warn("Unused data while deserializing",
			"type", b.entity.typ.name, "field", name, "value", value)
	}
	return nil
}
