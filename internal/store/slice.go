package store

import "sync"

// Slice holds one domain's normalized data. Set replaces the data wholesale
// and Clear restores the empty shape; there are no partial updates. Values
// returned by Select are shared and must be treated as read-only.
type Slice[T any] struct {
	empty func() T

	mu     sync.RWMutex
	data   T
	loaded bool
}

// NewSlice creates an unloaded slice holding empty().
func NewSlice[T any](empty func() T) *Slice[T] {
	return &Slice[T]{empty: empty, data: empty()}
}

// Set publishes data and marks the slice loaded.
func (s *Slice[T]) Set(data T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data, s.loaded = data, true
}

// Clear resets the slice to its empty shape and marks it unloaded.
func (s *Slice[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data, s.loaded = s.empty(), false
}

// Select returns the current data and whether it is loaded.
func (s *Slice[T]) Select() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data, s.loaded
}

// IsLoaded reports whether the slice holds published data.
func (s *Slice[T]) IsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

func (s *Slice[T]) selectAny() (any, bool) {
	return s.Select()
}
