// Package state holds the subscribable state containers behind a console session:
// the App store (auth, layout and notification flags) and the Favorites store, both
// persisted through storage backends.
package state

import "sync"

// Listener is called after every mutation with the new and previous state.
type Listener[T any] func(next, prev T)

// Store is a mutable, subscribable state container. Mutations are atomic with respect to
// each other; listeners run synchronously, in registration order, after each mutation.
type Store[T any] struct {
	mu        sync.Mutex
	state     T
	listeners []listenerEntry[T]
	nextID    int
}

type listenerEntry[T any] struct {
	id int
	fn Listener[T]
}

// NewStore creates a store holding initial.
func NewStore[T any](initial T) *Store[T] {
	return &Store[T]{state: initial}
}

// Get returns the current state.
func (s *Store[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Set applies fn to the current state and notifies listeners. fn must not call back
// into the store; listeners may.
func (s *Store[T]) Set(fn func(T) T) {
	s.mu.Lock()
	prev := s.state
	s.state = fn(prev)
	next := s.state
	listeners := make([]listenerEntry[T], len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn(next, prev)
	}
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store[T]) Subscribe(fn Listener[T]) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerEntry[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}
