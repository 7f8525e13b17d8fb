package entity

import (
	"maps"
	"slices"
)

// FlagSet is an entity's set of boolean markers. Any change marks the owning
// entity dirty.
type FlagSet struct {
	set     map[string]struct{}
	changed func()
}

func newFlagSet(changed func()) *FlagSet {
	return &FlagSet{set: make(map[string]struct{}), changed: changed}
}

// Has reports whether every given flag is set.
func (f *FlagSet) Has(flags ...string) bool {
	for _, flag := range flags {
		if _, ok := f.set[flag]; !ok {
			return false
		}
	}
	return true
}

// Set adds the given flags.
func (f *FlagSet) Set(flags ...string) {
	touched := false
	for _, flag := range flags {
		if _, ok := f.set[flag]; !ok {
			f.set[flag] = struct{}{}
			touched = true
		}
	}
	if touched {
		f.changed()
	}
}

// Clear removes the given flags.
func (f *FlagSet) Clear(flags ...string) {
	touched := false
	for _, flag := range flags {
		if _, ok := f.set[flag]; ok {
			delete(f.set, flag)
			touched = true
		}
	}
	if touched {
		f.changed()
	}
}

// Toggle flips the given flags.
func (f *FlagSet) Toggle(flags ...string) {
	for _, flag := range flags {
		if _, ok := f.set[flag]; ok {
			delete(f.set, flag)
		} else {
			f.set[flag] = struct{}{}
		}
	}
	if len(flags) > 0 {
		f.changed()
	}
}

// List returns the flags in sorted order.
func (f *FlagSet) List() []string {
	out := slices.Collect(maps.Keys(f.set))
	slices.Sort(out)
	return out
}

// TagMap is an entity's free-form annotation map. Any change marks the owning
// entity dirty. The engine reserves keys starting with "_" (currently
// "_old_key", the pending-retirement marker).
type TagMap struct {
	m       map[string]any
	changed func()
}

func newTagMap(changed func()) *TagMap {
	return &TagMap{m: make(map[string]any), changed: changed}
}

// Get returns the tag value under key.
func (t *TagMap) Get(key string) (any, bool) {
	v, ok := t.m[key]
	return v, ok
}

// Set stores a tag value under key.
func (t *TagMap) Set(key string, value any) {
	t.m[key] = value
	t.changed()
}

// Delete removes the tag under key.
func (t *TagMap) Delete(key string) {
	if _, ok := t.m[key]; ok {
		delete(t.m, key)
		t.changed()
	}
}

// Map returns a deep copy of the tags.
func (t *TagMap) Map() map[string]any {
	return cloneValue(t.m).(map[string]any)
}

// replace swaps the whole map for a deep copy of m.
func (t *TagMap) replace(m map[string]any) {
	t.m = make(map[string]any, len(m))
	for k, v := range m {
		t.m[k] = cloneValue(v)
	}
	t.changed()
}
