package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateType indicates an entity type name is already registered.
	ErrDuplicateType = errors.New("entity type already registered")
	// ErrDuplicateCode indicates two entity types share a UID prefix code.
	ErrDuplicateCode = errors.New("uid code already registered")
	// ErrDuplicateField indicates a field name collision within a schema.
	ErrDuplicateField = errors.New("field already registered")
	// ErrUnknownField indicates a get/set against a name the schema lacks.
	ErrUnknownField = errors.New("unknown field")
	// ErrReadOnly indicates a write against a read-only attribute.
	ErrReadOnly = errors.New("attribute is read-only")
	// ErrNoStore indicates an operation that requires a bound store.
	ErrNoStore = errors.New("entity has no store")
	// ErrNotSavable indicates a save against a non-savable entity.
	ErrNotSavable = errors.New("entity is not savable")
	// ErrUIDMismatch indicates the stored record belongs to a different
	// entity than the one being reverted.
	ErrUIDMismatch = errors.New("stored uid does not match entity")
	// ErrKeyExists indicates a clone target key is already occupied.
	ErrKeyExists = errors.New("key exists in entity store")
	// ErrBadKey indicates a storage key that cannot address a store record.
	ErrBadKey = errors.New("storage key is not a string")
)

// ValidationError reports a rejected attribute write. The previously
// committed value is untouched when one is returned.
type ValidationError struct {
	Name string // attribute name
	Err  error  // the validator's rejection
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate %s: %v", e.Name, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
