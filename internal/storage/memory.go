package storage

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process backend. It serves the session tier: a scope lives only as long
// as its tab keeps touching it (idle scopes are evicted by StartPurge) or until Drop.
type Memory struct {
	mu     sync.Mutex
	scopes map[string]*memScope
	ttl    time.Duration
	closed bool

	wg sync.WaitGroup
}

type memScope struct {
	items    map[string]string
	lastUsed time.Time
}

// NewMemory creates a memory backend. ttl <= 0 disables idle eviction.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{scopes: make(map[string]*memScope), ttl: ttl}
}

func (m *Memory) Scope(id string) Storage {
	return &memoryStorage{backend: m, id: id}
}

// Drop discards a scope and everything in it.
func (m *Memory) Drop(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scopes, id)
}

// Len reports the number of live scopes.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scopes)
}

// Close discards every scope after the purge loop has exited. Cancel the purge context
// first.
func (m *Memory) Close() error {
	m.wg.Wait()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.scopes = make(map[string]*memScope)
	return nil
}

// StartPurge evicts idle scopes every interval until ctx is cancelled.
func (m *Memory) StartPurge(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.purge(time.Now())
			}
		}
	}()
}

func (m *Memory) purge(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.scopes {
		if now.Sub(s.lastUsed) > m.ttl {
			delete(m.scopes, id)
		}
	}
}

// scope returns the named scope, creating it when create is set. Caller holds m.mu.
func (m *Memory) scope(id string, create bool) *memScope {
	s, ok := m.scopes[id]
	if !ok {
		if !create {
			return nil
		}
		s = &memScope{items: make(map[string]string)}
		m.scopes[id] = s
	}
	s.lastUsed = time.Now()
	return s
}

type memoryStorage struct {
	backend *Memory
	id      string
}

func (s *memoryStorage) GetItem(_ context.Context, key string) (string, bool, error) {
	m := s.backend
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", false, ErrClosed
	}
	sc := m.scope(s.id, false)
	if sc == nil {
		return "", false, nil
	}
	v, ok := sc.items[key]
	return v, ok, nil
}

func (s *memoryStorage) SetItem(_ context.Context, key, value string) error {
	m := s.backend
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.scope(s.id, true).items[key] = value
	return nil
}

func (s *memoryStorage) RemoveItem(_ context.Context, key string) error {
	m := s.backend
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if sc := m.scope(s.id, false); sc != nil {
		delete(sc.items, key)
	}
	return nil
}
