package vm

import (
	"sync"
	"sync/atomic"
)

// Inline caching for virtual and interface dispatch.
//
// Each resolved member reference used by a virtual-invoke stub carries one
// cache. Most linked call targets see a single receiver class, so the cache
// progresses Empty -> Monomorphic -> Polymorphic -> Megamorphic and stops
// caching once too many receiver classes have been observed.

// CacheState represents the current state of an inline cache.
type CacheState uint8

const (
	CacheEmpty       CacheState = iota // No cached lookup yet
	CacheMonomorphic                   // Single (class, method) cached
	CachePolymorphic                   // 2-6 entries
	CacheMegamorphic                   // Too many types, use full lookup
)

// MaxPICEntries is the maximum number of entries in a polymorphic inline cache.
const MaxPICEntries = 6

// InlineCacheEntry holds a single cached dispatch result.
type InlineCacheEntry struct {
	Class  *Class
	Method *Method
}

// InlineCache is the dispatch cache for one member reference. It is shared
// by every goroutine invoking through the reference, so updates are guarded.
type InlineCache struct {
	mu      sync.RWMutex
	state   CacheState
	entries [MaxPICEntries]InlineCacheEntry
	count   int

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Lookup checks the cache for a method matching the receiver class.
// Returns nil on miss.
func (ic *InlineCache) Lookup(class *Class) *Method {
	ic.mu.RLock()
	for i := 0; i < ic.count; i++ {
		if ic.entries[i].Class == class {
			m := ic.entries[i].Method
			ic.mu.RUnlock()
			ic.hits.Add(1)
			return m
		}
	}
	ic.mu.RUnlock()
	ic.misses.Add(1)
	return nil
}

// Update records a new (class, method) pair, potentially upgrading the state.
func (ic *InlineCache) Update(class *Class, method *Method) {
	if method == nil {
		return
	}
	ic.mu.Lock()
	defer ic.mu.Unlock()

	for i := 0; i < ic.count; i++ {
		if ic.entries[i].Class == class {
			return
		}
	}
	switch ic.state {
	case CacheEmpty:
		ic.state = CacheMonomorphic
		ic.entries[0] = InlineCacheEntry{Class: class, Method: method}
		ic.count = 1
	case CacheMonomorphic, CachePolymorphic:
		if ic.count < MaxPICEntries {
			ic.entries[ic.count] = InlineCacheEntry{Class: class, Method: method}
			ic.count++
			ic.state = CachePolymorphic
			return
		}
		ic.state = CacheMegamorphic
		for i := range ic.entries {
			ic.entries[i] = InlineCacheEntry{}
		}
		ic.count = 0
	case CacheMegamorphic:
	}
}

// State returns the current cache state.
func (ic *InlineCache) State() CacheState {
	ic.mu.RLock()
	defer ic.mu.RUnlock()
	return ic.state
}

// HitRate returns the cache hit rate as a percentage (0-100).
func (ic *InlineCache) HitRate() float64 {
	hits, misses := ic.hits.Load(), ic.misses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) * 100 / float64(total)
}

// dispatch selects the implementation of key for the receiver class,
// consulting and updating the cache.
func (ic *InlineCache) dispatch(recv *Class, key string) *Method {
	if m := ic.Lookup(recv); m != nil {
		return m
	}
	m := recv.vtable.Lookup(key)
	if m != nil && ic.State() != CacheMegamorphic {
		ic.Update(recv, m)
	}
	return m
}
