package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"secops-console/internal/storage"

	"go.uber.org/zap"
)

// ErrUnknownSection is returned for section keys outside the four sidebar groups.
var ErrUnknownSection = errors.New("unknown sidebar section")

// User is the signed-in employee's profile.
type User struct {
	EmpNumber string `json:"emp_number"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Section identifies a collapsible sidebar group.
type Section string

const (
	SectionFavorites  Section = "favorites"
	SectionSummary    Section = "summary"
	SectionMonitoring Section = "monitoring"
	SectionAttack     Section = "attack"
)

// OpenSections records which sidebar groups are expanded.
type OpenSections struct {
	Favorites  bool `json:"favorites"`
	Summary    bool `json:"summary"`
	Monitoring bool `json:"monitoring"`
	Attack     bool `json:"attack"`
}

// Toggle flips key and returns the result.
func (o OpenSections) Toggle(key Section) (OpenSections, error) {
	switch key {
	case SectionFavorites:
		o.Favorites = !o.Favorites
	case SectionSummary:
		o.Summary = !o.Summary
	case SectionMonitoring:
		o.Monitoring = !o.Monitoring
	case SectionAttack:
		o.Attack = !o.Attack
	default:
		return o, fmt.Errorf("%w: %q", ErrUnknownSection, key)
	}
	return o, nil
}

// IsOpen reports whether key is expanded.
func (o OpenSections) IsOpen(key Section) bool {
	switch key {
	case SectionFavorites:
		return o.Favorites
	case SectionSummary:
		return o.Summary
	case SectionMonitoring:
		return o.Monitoring
	case SectionAttack:
		return o.Attack
	}
	return false
}

// AppState is the per-session auth, layout and notification state.
//
// Invariants: IsLoggedIn == (User != nil); HasUnread == (UnreadCount > 0).
type AppState struct {
	IsLoggedIn         bool         `json:"isLoggedIn"`
	User               *User        `json:"user"`
	IsSidebarCollapsed bool         `json:"isSidebarCollapsed"`
	HasHydrated        bool         `json:"-"`
	OpenSections       OpenSections `json:"openSections"`
	IsNotificationOpen bool         `json:"isNotificationOpen"`
	HasUnread          bool         `json:"hasUnread"`
	UnreadCount        int          `json:"unreadCount"`
}

// DefaultAppState is the construction-time state.
func DefaultAppState() AppState {
	return AppState{
		OpenSections: OpenSections{
			Favorites:  true,
			Summary:    true,
			Monitoring: true,
			Attack:     true,
		},
		IsNotificationOpen: true,
	}
}

// repair restores the two invariants on state read back from storage.
func (s AppState) repair() AppState {
	if s.User != nil && strings.TrimSpace(s.User.EmpNumber) == "" {
		s.User = nil
	}
	s.IsLoggedIn = s.User != nil
	if s.UnreadCount < 0 {
		s.UnreadCount = 0
	}
	s.HasUnread = s.UnreadCount > 0
	return s
}

// AppStore owns AppState for one session.
type AppStore struct {
	store    *Store[AppState]
	persist  *Persisted[AppState]
	strategy *Strategy
	notifier Notifier
	log      *zap.Logger

	mu   sync.Mutex
	tier Tier
}

// NewAppStore builds the store with defaults, bound to the strategy's initial tier, and
// starts rehydration in the background. HasHydrated becomes true when it finishes.
func NewAppStore(ctx context.Context, strategy *Strategy, notifier Notifier, log *zap.Logger) *AppStore {
	if notifier == nil {
		notifier = Discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &AppStore{
		store:    NewStore(DefaultAppState()),
		strategy: strategy,
		notifier: notifier,
		log:      log,
		tier:     strategy.Initial(),
	}
	s.persist = Persist(s.store, PersistOptions[AppState]{
		Name:   storage.KeyAppState,
		Target: strategy.Storage(s.tier),
		OnRehydrate: func(st AppState) AppState {
			st = st.repair()
			st.HasHydrated = true
			return st
		},
		Log: log,
	})
	s.persist.StartHydration(ctx)
	return s
}

// Get returns the current state.
func (s *AppStore) Get() AppState { return s.store.Get() }

// Subscribe registers a listener; see Store.Subscribe.
func (s *AppStore) Subscribe(fn Listener[AppState]) func() { return s.store.Subscribe(fn) }

// Hydrated is closed once rehydration has finished.
func (s *AppStore) Hydrated() <-chan struct{} { return s.persist.Done() }

// Tier is the storage tier the state is currently written to.
func (s *AppStore) Tier() Tier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tier
}

// Login records the signed-in user. A profile without an employee number is rejected with
// a warning and leaves the state untouched.
func (s *AppStore) Login(u *User) bool {
	if u == nil || strings.TrimSpace(u.EmpNumber) == "" {
		s.log.Warn("login rejected: profile has no employee number")
		return false
	}
	user := *u
	s.store.Set(func(st AppState) AppState {
		st.IsLoggedIn = true
		st.User = &user
		return st
	})
	return true
}

// Logout resets the state to its defaults in one update, forgets the keep-logged-in and
// saved-id preferences, and raises a success toast. Favorites are not touched.
func (s *AppStore) Logout(ctx context.Context) {
	s.store.Set(func(st AppState) AppState {
		next := DefaultAppState()
		next.HasHydrated = st.HasHydrated
		return next
	})

	durable := s.strategy.Durable()
	for _, key := range []string{storage.KeyKeepLoggedIn, storage.KeySavedEmployeeID} {
		if err := durable.RemoveItem(ctx, key); err != nil {
			s.log.Warn("logout: failed to clear preference", zap.String("key", key), zap.Error(err))
		}
	}
	s.notifier.Notify(NewToast(ToastSuccess, "로그아웃되었습니다."))
}

// UpdateUser shallow-merges the non-empty fields of u into the current profile. It is
// ignored while logged out.
func (s *AppStore) UpdateUser(u User) {
	s.store.Set(func(st AppState) AppState {
		if st.User == nil {
			return st
		}
		merged := *st.User
		if u.EmpNumber != "" {
			merged.EmpNumber = u.EmpNumber
		}
		if u.Name != "" {
			merged.Name = u.Name
		}
		if u.Email != "" {
			merged.Email = u.Email
		}
		if u.Phone != "" {
			merged.Phone = u.Phone
		}
		st.User = &merged
		return st
	})
}

func (s *AppStore) ToggleSidebarCollapsed() {
	s.store.Set(func(st AppState) AppState {
		st.IsSidebarCollapsed = !st.IsSidebarCollapsed
		return st
	})
}

// ToggleSectionOpen flips one sidebar group.
func (s *AppStore) ToggleSectionOpen(key Section) error {
	if _, err := (OpenSections{}).Toggle(key); err != nil {
		return err
	}
	s.store.Set(func(st AppState) AppState {
		st.OpenSections, _ = st.OpenSections.Toggle(key)
		return st
	})
	return nil
}

// ToggleNotificationOpen flips the notification panel. Read-state is not changed here;
// the session reacts to the panel opening separately.
func (s *AppStore) ToggleNotificationOpen() {
	s.store.Set(func(st AppState) AppState {
		st.IsNotificationOpen = !st.IsNotificationOpen
		return st
	})
}

// SetUnreadCount sets the unread counter; negative values clamp to zero.
func (s *AppStore) SetUnreadCount(n int) {
	if n < 0 {
		n = 0
	}
	s.store.Set(func(st AppState) AppState {
		st.UnreadCount = n
		st.HasUnread = n > 0
		return st
	})
}

// AddUnread increments the unread counter by n (n <= 0 is a no-op).
func (s *AppStore) AddUnread(n int) {
	if n <= 0 {
		return
	}
	s.store.Set(func(st AppState) AppState {
		st.UnreadCount += n
		st.HasUnread = true
		return st
	})
}

func (s *AppStore) MarkAllAsRead() {
	s.store.Set(func(st AppState) AppState {
		st.UnreadCount = 0
		st.HasUnread = false
		return st
	})
}

// Rebind migrates the persisted state to tier t. It is a no-op when already there.
func (s *AppStore) Rebind(ctx context.Context, t Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tier == t {
		return nil
	}
	if err := s.persist.Rebind(ctx, s.strategy.Storage(t)); err != nil {
		return fmt.Errorf("rebind app state to %s storage: %w", t, err)
	}
	s.log.Debug("app state rebound", zap.String("from", string(s.tier)), zap.String("to", string(t)))
	s.tier = t
	return nil
}

// Close detaches persistence.
func (s *AppStore) Close() { s.persist.Close() }
