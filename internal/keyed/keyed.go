package keyed

import "sync"

// Mutexes provides a mutex per string key so that mutations of distinct
// entities can proceed in parallel while mutations of the same entity are
// serialized. Locks are created lazily and retained until Remove.
type Mutexes struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an empty Mutexes registry.
func New() *Mutexes {
	return &Mutexes{locks: map[string]*sync.Mutex{}}
}

// Lock acquires the mutex associated with key, creating it on first use.
func (m *Mutexes) Lock(key string) {
	m.mu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	m.mu.Unlock()
	lock.Lock()
}

// Unlock releases the mutex associated with key. It panics when the key has
// never been locked, matching sync.Mutex semantics.
func (m *Mutexes) Unlock(key string) {
	m.mu.Lock()
	lock := m.locks[key]
	m.mu.Unlock()
	if lock == nil {
		panic("keyed: unlock of unknown key " + key)
	}
	lock.Unlock()
}

// Remove discards the mutex for key. Call only when no goroutine can still
// reference the entity, e.g. after the owning store entry was deleted.
func (m *Mutexes) Remove(key string) {
	m.mu.Lock()
	delete(m.locks, key)
	m.mu.Unlock()
}
