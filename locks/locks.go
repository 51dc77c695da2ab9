// Package locks provides keyed mutual exclusion. The session is the
// unit of exclusion in the signing workflow: two concurrent fill
// requests against the same session perform read-modify-write over the
// whole record and must be serialized.
package locks

import "sync"

// KeyedMutex serializes callers per key. Distinct keys never contend.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*entry)}
}

// Lock blocks until the key's lock is held.
func (k *KeyedMutex) Lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// TryLock acquires the key's lock without blocking and reports whether
// it succeeded.
func (k *KeyedMutex) TryLock(key string) bool {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	if !e.mu.TryLock() {
		k.mu.Unlock()
		return false
	}
	e.refs++
	k.mu.Unlock()
	return true
}

// Unlock releases the key's lock. Entries are dropped from the map
// once no caller holds or waits on them. Wrap in a deferred call so
// the lock is released even when the caller panics.
func (k *KeyedMutex) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		panic("locks: unlock of unheld key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}
