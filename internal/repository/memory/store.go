package memory

import (
	"context"
	"sync"

	ierr "github.com/ledgerline/ledgerline/internal/errors"
)

// Store is a mutex-guarded map keyed by id. Items are cloned on the way in
// and out so callers never share memory with the store.
type Store[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	clone func(T) T
}

// NewStore creates a new Store
func NewStore[T any](clone func(T) T) *Store[T] {
	return &Store[T]{
		items: make(map[string]T),
		clone: clone,
	}
}

// CreateUnless inserts item under id unless the id is taken or an existing
// item satisfies conflict. It returns the stored item and whether this call
// inserted it.
func (s *Store[T]) CreateUnless(_ context.Context, id string, item T, conflict func(existing T) bool) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.items[id]; ok {
		return s.clone(existing), false
	}
	if conflict != nil {
		for _, existing := range s.items {
			if conflict(existing) {
				return s.clone(existing), false
			}
		}
	}

	s.items[id] = s.clone(item)
	return s.clone(item), true
}

// Create inserts item; an id that is already present is an ErrAlreadyExists
func (s *Store[T]) Create(ctx context.Context, id string, item T) error {
	if _, created := s.CreateUnless(ctx, id, item, nil); !created {
		return ierr.NewErrorf("item %s already exists", id).
			Mark(ierr.ErrAlreadyExists)
	}
	return nil
}

func (s *Store[T]) Get(_ context.Context, id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		var zero T
		return zero, false
	}
	return s.clone(item), true
}

// Find returns the first item match accepts
func (s *Store[T]) Find(_ context.Context, match func(T) bool) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if match(item) {
			return s.clone(item), true
		}
	}
	var zero T
	return zero, false
}

// List returns every item match accepts, unordered
func (s *Store[T]) List(_ context.Context, match func(T) bool) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]T, 0, len(s.items))
	for _, item := range s.items {
		if match == nil || match(item) {
			result = append(result, s.clone(item))
		}
	}
	return result
}

func (s *Store[T]) Count(_ context.Context, match func(T) bool) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, item := range s.items {
		if match == nil || match(item) {
			count++
		}
	}
	return count
}

// Mutate runs fn on a copy of the stored item under the write lock and
// stores the result only when fn succeeds. ok is false when id is unknown.
func (s *Store[T]) Mutate(_ context.Context, id string, fn func(current T) (T, error)) (result T, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.items[id]
	if !exists {
		return result, false, nil
	}

	next, err := fn(s.clone(current))
	if err != nil {
		return result, true, err
	}
	s.items[id] = s.clone(next)
	return s.clone(next), true, nil
}

// Clear removes all items from the store
func (s *Store[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]T)
}
