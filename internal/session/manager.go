package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"secops-console/internal/chat"
	"secops-console/internal/metrics"
	"secops-console/internal/state"
	"secops-console/internal/storage"

	"go.uber.org/zap"
)

// DefaultIdleTTL is how long an untouched session stays in memory.
const DefaultIdleTTL = 30 * time.Minute

var (
	ErrMissingID      = errors.New("session: client and tab ids are required")
	ErrClientMismatch = errors.New("session: tab belongs to another client")
)

// TabBackend is the session-tier backend; Drop discards a closed tab's scope.
type TabBackend interface {
	storage.Backend
	Drop(id string)
}

// Options configures a Manager.
type Options struct {
	Durable   storage.Backend
	Tabs      TabBackend
	Accounts  Accounts
	Tokens    TokenIssuer
	Responder chat.Responder
	Chat      chat.Options
	IdleTTL   time.Duration
	Log       *zap.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Manager owns every live Session, keyed by tab id.
type Manager struct {
	opts Options

	mu       sync.Mutex
	sessions map[string]*Session

	wg sync.WaitGroup
}

func NewManager(opts Options) *Manager {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{opts: opts, sessions: make(map[string]*Session)}
}

// Open returns the tab's session, building it on first use. A new session resolves its
// storage strategy from the client's durable keep-logged-in flag and starts hydrating
// both stores; callers wait on App.Hydrated() when they need settled state.
func (m *Manager) Open(ctx context.Context, clientID, tabID string) (*Session, error) {
	if clientID == "" || tabID == "" {
		return nil, ErrMissingID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[tabID]; ok {
		if s.ClientID != clientID {
			return nil, ErrClientMismatch
		}
		s.Touch()
		return s, nil
	}

	s := m.build(context.WithoutCancel(ctx), clientID, tabID)
	m.sessions[tabID] = s
	m.opts.Metrics.SessionOpened()
	m.opts.Log.Debug("session opened",
		zap.String("client_id", clientID), zap.String("tab_id", tabID), zap.String("tier", string(s.App.Tier())))
	return s, nil
}

func (m *Manager) build(ctx context.Context, clientID, tabID string) *Session {
	log := m.opts.Log.With(zap.String("tab_id", tabID))
	durable := m.opts.Durable.Scope(clientID)
	tab := m.opts.Tabs.Scope(tabID)

	strategy, err := state.ResolveStrategy(ctx, durable, tab)
	if err != nil {
		log.Warn("storage tier fell back to session", zap.Error(err))
	}

	s := &Session{
		ClientID: clientID,
		TabID:    tabID,
		durable:  durable,
		accounts: m.opts.Accounts,
		tokens:   m.opts.Tokens,
		log:      log,
		metrics:  m.opts.Metrics,
		now:      m.opts.Now,
		bus:      newBus(),
	}
	s.lastSeen = m.opts.Now()
	notifier := state.NotifierFunc(s.Notify)

	chatOpts := m.opts.Chat
	if m.opts.Responder != nil {
		chatOpts.Responder = m.opts.Responder
	}
	chatOpts.Log = log

	s.App = state.NewAppStore(ctx, strategy, notifier, log)
	s.Favorites = state.NewFavoritesStore(ctx, durable, notifier, log)
	s.Chat = chat.NewPanel(chatOpts)

	s.unsubs = append(s.unsubs,
		s.App.Subscribe(func(next, _ state.AppState) {
			s.bus.publish(Event{Type: EventState, Data: next})
		}),
		s.Favorites.Subscribe(func(next, _ state.FavoritesState) {
			s.bus.publish(Event{Type: EventFavorites, Data: next.Favorites})
		}),
		s.Chat.Subscribe(func(ev chat.Event) {
			s.bus.publish(Event{Type: EventChat, Data: ev})
		}),
	)
	return s
}

// Get returns a live session without creating one.
func (m *Manager) Get(tabID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tabID]
	return s, ok
}

// Len is the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close ends a tab's session and discards its session-tier storage. Durable storage
// is kept.
func (m *Manager) Close(tabID string) {
	m.mu.Lock()
	s, ok := m.sessions[tabID]
	delete(m.sessions, tabID)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.closeSession(s)
	m.opts.Tabs.Drop(tabID)
}

func (m *Manager) closeSession(s *Session) {
	s.Close()
	m.opts.Metrics.SessionClosed()
	m.opts.Log.Debug("session closed", zap.String("tab_id", s.TabID))
}

func (m *Manager) snapshot() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// NotifyThreats posts a new-threat alert to every panel and raises the unread count on
// sessions whose notification panel is closed.
func (m *Manager) NotifyThreats(delta, total int) {
	if delta <= 0 {
		return
	}
	text := fmt.Sprintf("신규 위협 %d건 탐지 (누적 %d건)", delta, total)
	for _, s := range m.snapshot() {
		s.Chat.Notify("🚨", text)
		if !s.App.Get().IsNotificationOpen {
			s.App.AddUnread(delta)
		}
	}
}

// Purge closes sessions idle for longer than the TTL. Their session-tier storage is
// left to the backend's own eviction.
func (m *Manager) Purge(now time.Time) int {
	var idle []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastSeen()) > m.opts.IdleTTL {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, s := range idle {
		m.closeSession(s)
	}
	return len(idle)
}

// StartPurge runs Purge every interval until ctx is done. Shutdown waits for it.
func (m *Manager) StartPurge(ctx context.Context, interval time.Duration) {
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
				if n := m.Purge(m.opts.Now()); n > 0 {
					m.opts.Log.Info("purged idle sessions", zap.Int("count", n))
				}
			}
		}
	}()
}

// Shutdown closes every session and waits for the purge loop. Cancel its context first.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		m.closeSession(s)
	}
	m.wg.Wait()
}
