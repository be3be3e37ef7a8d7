// Package memstore implements an in-memory [github.com/calvinalkan/cachetwo/pkg/entrycache.Backend],
// useful for tests and for deployments where persistence across restarts
// is not required.
package memstore

import (
	"fmt"
	"sync"

	"github.com/calvinalkan/cachetwo/pkg/entrycache"
)

// Store is a thread-safe K -> V map satisfying [entrycache.Backend].
//
// Store characteristics:
//   - all data lives on the heap; nothing survives a restart
//   - operations are O(1) average case
//   - Replace and Commit are no-ops; a map never lends ownership of a V
//
// Store's zero value is not usable; construct with [New].
type Store[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

// New returns an empty Store.
func New[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{data: make(map[K]V)}
}

// Contains reports whether k is present.
func (s *Store[K, V]) Contains(k K) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[k]
	return ok, nil
}

// Get retrieves the value stored for k, or a wrapped [entrycache.ErrNotPresent].
func (s *Store[K, V]) Get(k K) (V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[k]
	if !ok {
		var zero V
		return zero, fmt.Errorf("%w: %v", entrycache.ErrNotPresent, k)
	}

	return v, nil
}

// Replace is a no-op: a map never lends a V out by move, so there is
// nothing for the store to reclaim.
func (s *Store[K, V]) Replace(K, V) error {
	return nil
}

// Insert stores v under k, creating or overwriting.
func (s *Store[K, V]) Insert(k K, v V) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[k] = v
	return nil
}

// Remove deletes k. Removing an absent key is not an error.
func (s *Store[K, V]) Remove(k K) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, k)
	return nil
}

// Commit is a no-op: Insert and Remove are already immediately visible.
func (s *Store[K, V]) Commit() error {
	return nil
}

// Len reports the number of keys currently stored.
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}

var _ entrycache.Backend[string, string] = (*Store[string, string])(nil)
