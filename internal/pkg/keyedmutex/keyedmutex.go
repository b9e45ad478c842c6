// Package keyedmutex provides per-key mutual exclusion. Lifecycle
// services lock on a service id so that "mutate entity then derive
// status" sequences against the same service serialize in-process.
package keyedmutex

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex is a set of mutexes addressed by string key. Entries are
// created on first use and removed once no goroutine holds or waits on
// them, so the map does not grow with the universe of keys.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a new keyed mutex.
func New() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*entry)}
}

// Lock acquires the mutex for key and returns the unlock function.
//
//	unlock := locks.Lock(serviceID)
//	defer unlock()
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
