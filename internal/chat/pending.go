package chat

import (
	"context"
	"sync"
	"time"
)

// PendingTTL is how long a clear-history confirmation token stays valid.
const PendingTTL = 15 * time.Minute

// pendingClear is a clear-history request awaiting confirm or cancel.
type pendingClear struct {
	Generation uint64
	CreatedAt  time.Time
}

// pendingStore is a thread-safe in-memory token store with TTL expiry.
type pendingStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	actions map[string]pendingClear
}

func newPendingStore(ttl time.Duration) *pendingStore {
	return &pendingStore{ttl: ttl, now: time.Now, actions: make(map[string]pendingClear)}
}

func (s *pendingStore) put(token string, a pendingClear) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[token] = a
}

// take removes and returns the entry for token if it exists and has not expired.
func (s *pendingStore) take(token string) (pendingClear, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actions[token]
	if !ok {
		return pendingClear{}, false
	}
	delete(s.actions, token)
	if s.now().Sub(a.CreatedAt) > s.ttl {
		return pendingClear{}, false
	}
	return a, true
}

func (s *pendingStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.actions)
}

func (s *pendingStore) purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for token, a := range s.actions {
		if now.Sub(a.CreatedAt) > s.ttl {
			delete(s.actions, token)
		}
	}
}

// startPurge evicts expired entries every interval until ctx is done. wg tracks the goroutine.
func (s *pendingStore) startPurge(ctx context.Context, wg *sync.WaitGroup, interval time.Duration) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.purge()
			}
		}
	}()
}
