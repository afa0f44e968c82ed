// Package store provides the persistence collaborators for configuration
// entries.
//
// The core never assumes an on-disk format: it talks to the Store
// interface, whose loads are idempotent and whose flush is explicit. Two
// file-backed implementations ship here (a JSON document store and a TOML
// document store) plus an in-memory store for tests and embedding hosts.
//
// Load and Save never propagate errors to callers; failures are logged and
// the in-memory value wins. Flush returns its error so the host can decide
// what a failed write-back means.
package store

import (
	"reflect"
	"sync"
)

// Store persists configuration values keyed by (group, key).
type Store interface {
	// TryLoad fetches the persisted value for key within group, decoded
	// to the wanted type. found is false when nothing is persisted or
	// decoding fails.
	TryLoad(key, group string, want reflect.Type) (value any, found bool)

	// Save stages the value for key within group. It does not touch disk;
	// Flush does.
	Save(key, group string, value any)

	// Flush writes staged state to the backing medium.
	Flush() error
}

// Reloader is implemented by file-backed stores that can re-read their
// document from disk, picking up edits made outside the process. The
// runtime's file watcher reloads before reconciling entries.
type Reloader interface {
	Reload() error
}

// MemStore is an in-memory Store. Flush is a no-op. Safe for concurrent use.
type MemStore struct {
	mu     sync.RWMutex
	values map[[2]string]any

	// FlushCount is incremented by Flush; tests assert on it.
	FlushCount int
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{values: make(map[[2]string]any)}
}

// TryLoad implements Store.
func (s *MemStore) TryLoad(key, group string, want reflect.Type) (any, bool) {
	s.mu.RLock()
	v, ok := s.values[[2]string{group, key}]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if want != nil && reflect.TypeOf(v) != want {
		return nil, false
	}
	return v, true
}

// Save implements Store.
func (s *MemStore) Save(key, group string, value any) {
	s.mu.Lock()
	s.values[[2]string{group, key}] = value
	s.mu.Unlock()
}

// Flush implements Store.
func (s *MemStore) Flush() error {
	s.mu.Lock()
	s.FlushCount++
	s.mu.Unlock()
	return nil
}

// Delete removes a staged value. Used by tests to simulate absent keys.
func (s *MemStore) Delete(key, group string) {
	s.mu.Lock()
	delete(s.values, [2]string{group, key})
	s.mu.Unlock()
}
