// Package lockmgr provides per-path mutual exclusion for file mutations.
//
// Locks are created on demand, keyed by the resolved absolute path, and
// released once no goroutine references them. Injecting a Manager lets
// tests run against isolated temp files without cross-test interference.
package lockmgr

import (
	"path/filepath"
	"sync"
)

type entry struct {
	mu   sync.Mutex
	refs int
}

// Manager hands out one mutex per resolved file path.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*entry
}

// New creates an empty Manager.
func New() *Manager {
	return &Manager{locks: make(map[string]*entry)}
}

// key resolves a path to its canonical form so "./a" and "a" share a lock.
func key(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

func (m *Manager) acquire(path string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.locks[key(path)]
	if !ok {
		e = &entry{}
		m.locks[key(path)] = e
	}
	e.refs++
	return e
}

func (m *Manager) release(path string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.refs--
	if e.refs <= 0 {
		delete(m.locks, key(path))
	}
}

// WithLock runs fn while holding the exclusive lock for path. Writers
// queue rather than interleave; the lock entry is dropped once the last
// holder releases it.
func (m *Manager) WithLock(path string, fn func() error) error {
	e := m.acquire(path)
	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		m.release(path, e)
	}()
	return fn()
}

// Len returns the number of live lock entries. Used by tests to verify
// entries are released.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
