package entity

import (
	"weak"

	lru "github.com/hashicorp/golang-lru/v2"
)

// instanceMap is the non-owning table of live entities of one type, keyed by
// identifier. Membership alone never keeps an entity alive: entries hold weak
// pointers and are pruned lazily when a lookup or sweep finds them dead.
// Pruning happens inline on the calling flow; there is no background cleanup,
// keeping the core's single-threaded execution model intact.
type instanceMap struct {
	entries map[string]weak.Pointer[Entity]
}

func newInstanceMap() *instanceMap {
	return &instanceMap{entries: make(map[string]weak.Pointer[Entity])}
}

func (m *instanceMap) add(uid string, e *Entity) {
	m.entries[uid] = weak.Make(e)
}

func (m *instanceMap) get(uid string) (*Entity, bool) {
	p, ok := m.entries[uid]
	if !ok {
		return nil, false
	}
	e := p.Value()
	if e == nil {
		delete(m.entries, uid)
		return nil, false
	}
	return e, true
}

// all returns the currently live entities, pruning dead entries as it goes.
func (m *instanceMap) all() []*Entity {
	out := make([]*Entity, 0, len(m.entries))
	for uid, p := range m.entries {
		e := p.Value()
		if e == nil {
			delete(m.entries, uid)
			continue
		}
		out = append(out, e)
	}
	return out
}

// defaultCacheSize bounds each per-key-kind cache unless the type definition
// overrides it.
const defaultCacheSize = 512

// keyCache is one bounded LRU mapping storage key → entity for a single key
// kind. Eviction only drops the cache's own reference: liveness is the
// instance map's concern, so an evicted entity survives as long as any other
// owner references it.
type keyCache struct {
	lru *lru.Cache[any, *Entity]
	reg *Registry
}

func newKeyCache(reg *Registry, typeName, keyName string, size int) (*keyCache, error) {
	c := &keyCache{reg: reg}
	l, err := lru.NewWithEvict(size, func(any, *Entity) {
		reg.metrics.evicted(typeName, keyName)
	})
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

func (c *keyCache) add(key any, e *Entity) {
	if IsUnset(key) {
		// An unset key cannot address a record; caching under it would give
		// every keyless entity the same slot.
		return
	}
	c.lru.Add(key, e)
}

func (c *keyCache) get(key any) (*Entity, bool) {
	return c.lru.Get(key)
}

func (c *keyCache) contains(key any) bool {
	return c.lru.Contains(key)
}

// removeIf drops the cache entry under key only when it points at e, so that
// one entity relocating cannot evict another entity's slot.
func (c *keyCache) removeIf(key any, e *Entity) {
	if IsUnset(key) {
		return
	}
	if cur, ok := c.lru.Peek(key); ok && cur == e {
		c.lru.Remove(key)
	}
}

func (c *keyCache) len() int {
	return c.lru.Len()
}
