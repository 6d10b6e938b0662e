// Package reserve provides an exactly-once resolution cache. The first
// caller for a key inserts a locked placeholder, builds the value while
// holding the placeholder's lock, and publishes it with a compare-and-swap.
// Every other caller for that key blocks on the placeholder instead of
// spinning, then re-reads the slot.
package reserve

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// placeholder marks a key whose value is being built. Its mutex is held by
// the builder for the whole build.
type placeholder struct {
	mu sync.Mutex
}

// cell holds a published value. Wrapping keeps placeholders and values
// distinguishable even when V is an interface type.
type cell[V any] struct {
	val V
}

// PublishError reports that the slot no longer held the builder's own
// placeholder at publication time. That can only happen if the cache was
// modified behind the builder's back.
type PublishError struct {
	Key any
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("reserve: slot for %v changed during resolution", e.Key)
}

// Map is a concurrent key to value cache in which each value is built at
// most once per successful resolution. A failed build leaves no trace, so
// a later request retries.
type Map[K comparable, V any] struct {
	m sync.Map

	// Statistics
	builds   atomic.Uint64
	waits    atomic.Uint64
	failures atomic.Uint64
}

// Get returns the value for key, calling build if no value is present. At
// most one build per key runs at a time. build must not request the same
// key.
func (m *Map[K, V]) Get(key K, build func() (V, error)) (V, error) {
	for {
		if v, ok := m.m.Load(key); ok {
			switch x := v.(type) {
			case *cell[V]:
				return x.val, nil
			case *placeholder:
				m.waits.Add(1)
				x.mu.Lock()
				x.mu.Unlock()
				continue
			}
		}

		p := &placeholder{}
		p.mu.Lock()
		actual, loaded := m.m.LoadOrStore(key, p)
		if !loaded {
			return m.resolve(key, p, build)
		}
		p.mu.Unlock()
		switch x := actual.(type) {
		case *cell[V]:
			return x.val, nil
		case *placeholder:
			m.waits.Add(1)
			x.mu.Lock()
			x.mu.Unlock()
		}
	}
}

// resolve runs build on behalf of the reservation p and publishes the
// result. The placeholder is removed again if build fails or panics.
func (m *Map[K, V]) resolve(key K, p *placeholder, build func() (V, error)) (val V, err error) {
	published := false
	defer func() {
		if !published {
			m.m.CompareAndDelete(key, p)
			m.failures.Add(1)
		}
		p.mu.Unlock()
	}()

	m.builds.Add(1)
	val, err = build()
	if err != nil {
		var zero V
		return zero, err
	}
	if !m.m.CompareAndSwap(key, p, &cell[V]{val: val}) {
		var zero V
		return zero, &PublishError{Key: key}
	}
	published = true
	return val, nil
}

// Peek returns the published value for key without building it. Keys that
// are still being built report false.
func (m *Map[K, V]) Peek(key K) (V, bool) {
	if v, ok := m.m.Load(key); ok {
		if c, ok := v.(*cell[V]); ok {
			return c.val, true
		}
	}
	var zero V
	return zero, false
}

// Range calls fn for every published value until fn returns false.
func (m *Map[K, V]) Range(fn func(key K, val V) bool) {
	m.m.Range(func(k, v any) bool {
		c, ok := v.(*cell[V])
		if !ok {
			return true
		}
		return fn(k.(K), c.val)
	})
}

// Len returns the number of published values.
func (m *Map[K, V]) Len() int {
	n := 0
	m.Range(func(K, V) bool {
		n++
		return true
	})
	return n
}

// Stats holds reservation counters.
type Stats struct {
	Builds   uint64
	Waits    uint64
	Failures uint64
}

// Stats returns the map's counters.
func (m *Map[K, V]) Stats() Stats {
	return Stats{
		Builds:   m.builds.Load(),
		Waits:    m.waits.Load(),
		Failures: m.failures.Load(),
	}
}
