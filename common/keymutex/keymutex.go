// Package keymutex provides a mutex keyed by string, used to enforce a
// single-writer-per-key discipline: operations on the same key serialize,
// operations on different keys run fully in parallel.
//
// Usage:
//
//	unlock := km.Lock(entryID)
//	defer unlock()
//	// ... mutate the entry ...
package keymutex

import "sync"

// KeyMutex is a set of mutexes addressed by key. Lock entries are created
// on demand and removed once the last holder releases, so memory stays
// proportional to the number of keys currently contended.
//
// The zero value is not usable; call New.
type KeyMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// New returns an empty KeyMutex.
func New() *KeyMutex {
	return &KeyMutex{locks: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for key, blocking while another goroutine holds
// it, and returns the matching unlock function. The unlock function must be
// called exactly once.
func (k *KeyMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
