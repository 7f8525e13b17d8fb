package entity

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/emberfell/emberfell/internal/store"
)

// KeySpec names an entity type's storage key. The zero value keys by
// identifier. A direct key names a single field; a computed key additionally
// supplies a getter/setter pair deriving the key from other fields (e.g. a
// room key built from its coordinates).
type KeySpec struct {
	// Field is the key's name. It indexes the key cache and, for a direct
	// key, names the attribute holding the key value.
	Field string
	// Get derives the key value from the entity. Set applies a key value
	// back onto the constituent fields. Both must be set for a computed key.
	Get func(e *Entity) any
	Set func(e *Entity, key any) error
}

const uidKeyName = "uid"

func (k KeySpec) computed() bool {
	return k.Get != nil && k.Set != nil
}

// name resolves the effective field name used to index caches.
func (k KeySpec) name() string {
	if k.Field == "" {
		return uidKeyName
	}
	return k.Field
}

// TypeDefinition describes one entity type to Registry.Register.
type TypeDefinition struct {
	// Name uniquely identifies the type in the registry.
	Name string
	// Code is the identity prefix, unique across registered types
	// (identifiers read "<code>-<timecode>").
	Code string
	// Store is the durable backing, may be nil for ephemeral types.
	Store store.Store
	// Key is the storage key specification; zero value keys by identifier.
	Key KeySpec
	// Parents are previously registered types whose schemas this type
	// inherits. More-derived registrations override same-named fields.
	Parents []*Type
	// Blob is this type's own schema contribution, merged over the parents'.
	Blob *BlobSpec
	// CacheSize bounds the key cache (default 512).
	CacheSize int
}

// Type is a registered entity type: its canonical merged schema, identity
// code, store binding, live-instance table, and key caches.
type Type struct {
	reg       *Registry
	name      string
	code      string
	store     store.Store
	key       KeySpec
	own       *BlobSpec
	spec      *BlobSpec
	parents   []*Type
	instances *instanceMap
	caches    map[string]*keyCache
	cacheSize int
}

// Name returns the registered type name.
func (t *Type) Name() string { return t.name }

// Code returns the identity prefix code.
func (t *Type) Code() string { return t.code }

// Store returns the bound store, or nil.
func (t *Type) Store() store.Store { return t.store }

// KeyName returns the effective field name the storage key is indexed under.
func (t *Type) KeyName() string { return t.key.name() }

// RegisterCache creates an additional bounded cache keyed by the named
// attribute. The cache for the storage key exists from registration.
func (t *Type) RegisterCache(keyName string, size int) error {
	if _, ok := t.caches[keyName]; ok {
		return fmt.Errorf("type %s already has cache: %s", t.name, keyName)
	}
	c, err := newKeyCache(t.reg, t.name, keyName, size)
	if err != nil {
		return err
	}
	t.caches[keyName] = c
	return nil
}

func (t *Type) keyCache() *keyCache {
	return t.caches[t.key.name()]
}

// Registry is the per-process schema registry and cache context: it owns the
// type table, the identity counter, the clock, and the logger. Construct one
// at process start and pass it to whatever registers entity types; it is not
// a singleton.
type Registry struct {
	log     *slog.Logger
	now     func() time.Time
	metrics *Metrics

	types map[string]*Type
	codes map[string]*Type

	uidMu       sync.Mutex
	uidTimecode int64
}

// New creates an empty registry. A nil logger falls back to slog.Default.
func New(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:   log,
		now:   time.Now,
		types: make(map[string]*Type),
		codes: make(map[string]*Type),
	}
}

// SetMetrics attaches engine counters. Pass nil to detach.
func (r *Registry) SetMetrics(m *Metrics) {
	r.metrics = m
}

// Type looks up a registered type by name.
func (r *Registry) Type(name string) (*Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Register adds an entity type, building its canonical schema by merging
// every ancestor's own blob exactly once (ancestors first, more-derived
// overrides) and then the type's own blob on top. Duplicate type names,
// duplicate identity codes, and field-name collisions across the merged
// schema are fatal registration errors; they cannot occur at runtime in a
// correctly wired program.
func (r *Registry) Register(def TypeDefinition) (*Type, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("register: type name must not be empty")
	}
	if def.Code == "" || strings.ContainsRune(def.Code, '-') {
		return nil, fmt.Errorf("register %s: invalid uid code %q", def.Name, def.Code)
	}
	if _, ok := r.types[def.Name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateType, def.Name)
	}
	if prev, ok := r.codes[def.Code]; ok {
		return nil, fmt.Errorf("%w: %q used by both %s and %s",
			ErrDuplicateCode, def.Code, prev.name, def.Name)
	}
	own := def.Blob
	if own == nil {
		own = NewBlobSpec()
	}
	merged, err := mergeAncestry(def.Parents, own)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", def.Name, err)
	}
	if def.CacheSize <= 0 {
		def.CacheSize = defaultCacheSize
	}
	t := &Type{
		reg:       r,
		name:      def.Name,
		code:      def.Code,
		store:     def.Store,
		key:       def.Key,
		own:       own,
		spec:      merged,
		parents:   def.Parents,
		instances: newInstanceMap(),
		caches:    make(map[string]*keyCache),
		cacheSize: def.CacheSize,
	}
	if err := t.RegisterCache(t.key.name(), def.CacheSize); err != nil {
		return nil, err
	}
	r.types[def.Name] = t
	r.codes[def.Code] = t
	return t, nil
}

// mergeAncestry folds every ancestor's own blob into one schema, tracking
// already-merged ancestors so a diamond in the parent graph applies only
// once, then lays the type's own blob on top.
func mergeAncestry(parents []*Type, own *BlobSpec) (*BlobSpec, error) {
	merged := NewBlobSpec()
	seen := make(map[*Type]bool)
	var walk func(t *Type) error
	walk = func(t *Type) error {
		for _, p := range t.parents {
			if err := walk(p); err != nil {
				return err
			}
		}
		if seen[t] {
			return nil
		}
		seen[t] = true
		return merged.merge(t.own)
	}
	for _, p := range parents {
		if err := walk(p); err != nil {
			return nil, err
		}
	}
	if err := merged.merge(own); err != nil {
		return nil, err
	}
	return merged, nil
}

// SaveAll sweeps every live instance of every registered type and saves those
// that are dirty and savable, reporting the count saved. Store failures do
// not stop the sweep; they are joined into the returned error.
func (r *Registry) SaveAll() (int, error) {
	count := 0
	var errs []error
	for _, t := range r.types {
		for _, e := range t.instances.all() {
			if e.IsSavable() && e.IsDirty() {
				if err := e.Save(); err != nil {
					errs = append(errs, fmt.Errorf("%s %s: %w", t.name, e.UID(), err))
					continue
				}
				count++
			}
		}
	}
	if count > 0 {
		r.log.Debug("Saved dirty entities", "count", count)
	}
	return count, errors.Join(errs...)
}
