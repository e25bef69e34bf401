// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keylock provides a map of mutexes keyed by string. An entry
// exists only while some goroutine holds or waits for its lock, so the
// map stays proportional to in-flight work rather than to every key
// ever seen.
package keylock

import "sync"

// Map hands out per-key locks. The zero value is ready to use.
type Map struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu sync.Mutex
	// refs counts the holder plus waiters. Guarded by Map.mu.
	refs int
}

// Lock blocks until the lock for key is held and returns the function
// that releases it. The release function must be called exactly once.
//
//	unlock := locks.Lock(userID.String())
//	defer unlock()
func (m *Map) Lock(key string) (unlock func()) {
	m.mu.Lock()
	if m.entries == nil {
		m.entries = make(map[string]*entry)
	}
	held, ok := m.entries[key]
	if !ok {
		held = &entry{}
		m.entries[key] = held
	}
	held.refs++
	m.mu.Unlock()

	held.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			held.mu.Unlock()
			m.mu.Lock()
			held.refs--
			if held.refs == 0 {
				delete(m.entries, key)
			}
			m.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently held or awaited.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
