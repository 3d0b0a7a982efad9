package util

import "sync"

// KeyedMutex provides per-key mutual exclusion. A renewal and an eviction racing on
// the same subscriber must serialize; operations on different subscribers do not.
type KeyedMutex struct {
	locks sync.Map
}

// Lock acquires the mutex for the given key, creating it on first use.
// Mutexes are never evicted; the key space is bounded by the subscriber population.
func (k *KeyedMutex) Lock(key int64) {
	m, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	m.(*sync.Mutex).Lock()
}

// Unlock releases the mutex for the given key
func (k *KeyedMutex) Unlock(key int64) {
	m, ok := k.locks.Load(key)
	if !ok {
		panic("util: Unlock of unheld KeyedMutex key")
	}
	m.(*sync.Mutex).Unlock()
}
