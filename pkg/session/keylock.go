package session

import "sync"

// KeyLock serializes processing per session ID so two messages for the
// same conversation cannot interleave, while different sessions proceed
// in parallel. Locks are created on demand and never removed; the per-ID
// footprint is one mutex, and the store's TTL bounds live IDs anyway.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyLock creates an empty lock table.
func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for id, creating it if needed, and returns the
// unlock function.
func (k *KeyLock) Lock(id string) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
