package utils

import (
	"sync"
)

// OptionalMutex is a mutex that only locks when UseMutex is set. Single-threaded allocators embed
// one so callers can opt into internal serialization at construction time instead of wrapping
// every call in their own lock.
type OptionalMutex struct {
	Mutex    sync.Mutex
	UseMutex bool
}

// Synchronized reports whether Lock and Unlock actually lock
func (m *OptionalMutex) Synchronized() bool {
	return m.UseMutex
}

func (m *OptionalMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}

// OptionalRWMutex is the read/write form of OptionalMutex, for allocators whose lookups can share
// the lock. With UseMutex unset every method is a no-op.
type OptionalRWMutex struct {
	Mutex    sync.RWMutex
	UseMutex bool
}

func (m *OptionalRWMutex) Synchronized() bool {
	return m.UseMutex
}

func (m *OptionalRWMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalRWMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}

func (m *OptionalRWMutex) RLock() {
	if m.UseMutex {
		m.Mutex.RLock()
	}
}

func (m *OptionalRWMutex) RUnlock() {
	if m.UseMutex {
		m.Mutex.RUnlock()
	}
}
