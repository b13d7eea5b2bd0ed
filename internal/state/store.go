// Package state provides observable state containers for UI-facing service state.
package state

import "sync"

// Store holds a value of T and notifies observers after every mutation.
//
// Mutations are serialized and observers run synchronously, in mutation order,
// on the goroutine that performed the mutation. Observers may call Get but must
// not call Update.
type Store[T any] struct {
	mu        sync.RWMutex
	value     T
	observers map[int]func(T)
	nextID    int

	emit sync.Mutex
}

// New returns a store seeded with initial.
func New[T any](initial T) *Store[T] {
	return &Store[T]{value: initial, observers: make(map[int]func(T))}
}

// Get returns the current value.
func (s *Store[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set replaces the value.
func (s *Store[T]) Set(v T) {
	s.Update(func(cur *T) { *cur = v })
}

// Update applies fn to the value and notifies observers with the result.
func (s *Store[T]) Update(fn func(*T)) {
	s.emit.Lock()
	defer s.emit.Unlock()

	s.mu.Lock()
	fn(&s.value)
	snapshot := s.value
	obs := make([]func(T), 0, len(s.observers))
	for id := 0; id < s.nextID; id++ {
		if o, ok := s.observers[id]; ok {
			obs = append(obs, o)
		}
	}
	s.mu.Unlock()

	for _, o := range obs {
		o(snapshot)
	}
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store[T]) Subscribe(fn func(T)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}
