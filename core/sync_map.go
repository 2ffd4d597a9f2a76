package core

import (
	"maps"
	"sync"
)

// SyncMap is a map guarded by a read-write mutex.
type SyncMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func NewSyncMap[K comparable, V any]() *SyncMap[K, V] {
	return &SyncMap[K, V]{m: make(map[K]V)}
}

func (s *SyncMap[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Update calls f with the value of key and whether it is present. When f
// reports true its value replaces the current one. The call is atomic with
// respect to other updates, and Update returns what f reported.
func (s *SyncMap[K, V]) Update(key K, f func(cur V, ok bool) (V, bool)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[key]
	next, store := f(cur, ok)
	if store {
		s.m[key] = next
	}
	return store
}

// DeleteFunc removes every entry for which del returns true.
func (s *SyncMap[K, V]) DeleteFunc(del func(K, V) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.DeleteFunc(s.m, del)
}
