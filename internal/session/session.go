// Package session owns the per-tab containers: each Session holds its own App store,
// Favorites store, toast stream and chat panel, and the Manager hands them out by tab id.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"secops-console/internal/app"
	"secops-console/internal/chat"
	"secops-console/internal/metrics"
	"secops-console/internal/shell"
	"secops-console/internal/state"
	"secops-console/internal/storage"

	"go.uber.org/zap"
)

// MinPasswordLength is the login form's client-side floor.
const MinPasswordLength = 8

// Login form and flow messages.
const (
	msgLoginForm     = "사원번호와 6자리 이상의 비밀번호를 입력해주세요."
	msgLoginOK       = "로그인 성공!"
	msgProfileFailed = "사용자 정보를 불러오지 못했습니다."
	msgServerFailed  = "서버와 통신 중 오류가 발생했습니다."
)

var (
	ErrLoginForm     = errors.New(msgLoginForm)
	ErrLoginRejected = errors.New("login rejected")
)

// Accounts is the part of the account service the login flow calls.
type Accounts interface {
	AuthenticateUser(ctx context.Context, req app.LoginRequest) (*app.UserResult, error)
	GetProfile(ctx context.Context, empNumber string) (*app.UserResult, error)
}

// TokenIssuer signs access tokens and resolves them back to an employee number.
type TokenIssuer interface {
	Issue(empNumber string) (string, error)
	Subject(token string) (string, error)
}

// UIEvent is an explicit user interaction the session reacts to.
type UIEvent string

// PanelOpened is raised when the notification panel becomes visible.
const PanelOpened UIEvent = "panel_opened"

// EventType tags what changed in an Event.
type EventType string

const (
	EventState     EventType = "state"
	EventFavorites EventType = "favorites"
	EventToast     EventType = "toast"
	EventChat      EventType = "chat"
)

// Event is pushed to a tab's live connections.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// LoginForm is what the login page submits.
type LoginForm struct {
	EmpNumber    string `json:"emp_number"`
	Password     string `json:"password"`
	KeepLoggedIn bool   `json:"keep_logged_in"`
	SaveID       bool   `json:"save_id"`
}

// LoginFormDefaults pre-fills the login page from durable preferences.
type LoginFormDefaults struct {
	EmpNumber    string `json:"emp_number"`
	SaveID       bool   `json:"save_id"`
	KeepLoggedIn bool   `json:"keep_logged_in"`
}

// Session is one tab's state. The stores and the panel are safe for concurrent use.
type Session struct {
	ClientID string
	TabID    string

	App       *state.AppStore
	Favorites *state.FavoritesStore
	Chat      *chat.Panel

	durable  storage.Storage
	accounts Accounts
	tokens   TokenIssuer
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	bus    *bus
	unsubs []func()

	mu       sync.Mutex
	lastSeen time.Time
}

// Subscribe registers fn for every event of this tab.
func (s *Session) Subscribe(fn func(Event)) func() { return s.bus.subscribe(fn) }

// Notify raises a toast on this tab.
func (s *Session) Notify(t state.Toast) {
	s.bus.publish(Event{Type: EventToast, Data: t})
}

// Touch records activity, keeping the session from idle eviction.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Handle applies a UI event.
func (s *Session) Handle(ev UIEvent) {
	switch ev {
	case PanelOpened:
		s.App.MarkAllAsRead()
	default:
		s.log.Debug("ignoring unknown ui event", zap.String("event", string(ev)))
	}
}

// ToggleNotificationPanel flips the panel and reports whether it is now open. Opening
// it raises PanelOpened.
func (s *Session) ToggleNotificationPanel() bool {
	s.App.ToggleNotificationOpen()
	open := s.App.Get().IsNotificationOpen
	if open {
		s.Handle(PanelOpened)
	}
	return open
}

// ToggleFavorite adds or removes a route from favorites once the saved list has been
// restored. Home cannot be a favorite.
func (s *Session) ToggleFavorite(ctx context.Context, key string) (bool, error) {
	if !shell.CanFavorite(key) {
		s.metrics.FavoriteToggle("invalid")
		return false, state.ErrInvalidFavorite
	}
	select {
	case <-s.Favorites.Hydrated():
	case <-ctx.Done():
		return false, ctx.Err()
	}
	added, err := s.Favorites.ToggleFavorite(key)
	switch {
	case errors.Is(err, state.ErrFavoritesFull):
		s.metrics.FavoriteToggle("full")
	case err != nil:
		s.metrics.FavoriteToggle("invalid")
	case added:
		s.metrics.FavoriteToggle("added")
	default:
		s.metrics.FavoriteToggle("removed")
	}
	return added, err
}

// SendChat posts a user message to the panel.
func (s *Session) SendChat(text string) (chat.Message, error) {
	m, err := s.Chat.Send(text)
	if err == nil {
		s.metrics.ChatMessage()
	}
	return m, err
}

// LoginFormDefaults reads the saved id and keep-logged-in flag.
func (s *Session) LoginFormDefaults(ctx context.Context) (LoginFormDefaults, error) {
	var d LoginFormDefaults
	id, ok, err := s.durable.GetItem(ctx, storage.KeySavedEmployeeID)
	if err != nil {
		return d, fmt.Errorf("read saved id: %w", err)
	}
	if ok && id != "" {
		d.EmpNumber, d.SaveID = id, true
	}
	keep, _, err := s.durable.GetItem(ctx, storage.KeyKeepLoggedIn)
	if err != nil {
		return d, fmt.Errorf("read keep-logged-in: %w", err)
	}
	d.KeepLoggedIn = keep == "true"
	return d, nil
}

// Login runs the login page flow: form checks, credential check, profile fetch, store
// login, preference writes, and a rebind of the App store to the tier the keep-logged-in
// choice selects. Every outcome raises a toast.
func (s *Session) Login(ctx context.Context, form LoginForm) (state.User, error) {
	form.EmpNumber = strings.TrimSpace(form.EmpNumber)
	if form.EmpNumber == "" || len(form.Password) < MinPasswordLength {
		s.metrics.LoginAttempt("invalid")
		s.Notify(state.NewToast(state.ToastError, msgLoginForm))
		return state.User{}, ErrLoginForm
	}

	if err := s.WaitHydrated(ctx); err != nil {
		return state.User{}, err
	}
	if _, err := s.accounts.AuthenticateUser(ctx, app.LoginRequest{EmpNumber: form.EmpNumber, Password: form.Password}); err != nil {
		return state.User{}, s.loginFailed(err)
	}
	token, err := s.tokens.Issue(form.EmpNumber)
	if err != nil {
		return state.User{}, s.loginFailed(err)
	}
	if err := s.durable.SetItem(ctx, storage.KeyAccessToken, token); err != nil {
		return state.User{}, s.loginFailed(err)
	}

	// The profile is fetched the way the page does it: by presenting the fresh token.
	sub, err := s.tokens.Subject(token)
	if err != nil {
		return state.User{}, s.profileFailed(err)
	}
	profile, err := s.accounts.GetProfile(ctx, sub)
	if err != nil {
		return state.User{}, s.profileFailed(err)
	}
	user := state.User{EmpNumber: profile.EmpNumber, Name: profile.Name, Email: profile.Email, Phone: profile.Phone}
	if !s.App.Login(&user) {
		return state.User{}, s.profileFailed(errors.New("profile has no employee number"))
	}

	if err := s.durable.SetItem(ctx, storage.KeyKeepLoggedIn, strconv.FormatBool(form.KeepLoggedIn)); err != nil {
		s.log.Warn("login: failed to save keep-logged-in", zap.Error(err))
	}
	if form.SaveID {
		err = s.durable.SetItem(ctx, storage.KeySavedEmployeeID, form.EmpNumber)
	} else {
		err = s.durable.RemoveItem(ctx, storage.KeySavedEmployeeID)
	}
	if err != nil {
		s.log.Warn("login: failed to update saved id", zap.Error(err))
	}
	if err := s.App.Rebind(ctx, state.TierFor(form.KeepLoggedIn)); err != nil {
		s.log.Warn("login: rebind failed", zap.Error(err))
	}

	s.metrics.LoginAttempt("ok")
	s.Notify(state.NewToast(state.ToastSuccess, msgLoginOK))
	return user, nil
}

func (s *Session) loginFailed(err error) error {
	detail := msgServerFailed
	var appErr *app.Error
	var valErr *app.ValidationError
	switch {
	case errors.As(err, &appErr):
		detail = appErr.Detail
		s.metrics.LoginAttempt("rejected")
	case errors.As(err, &valErr):
		detail = strings.Join(valErr.Messages, ", ")
		s.metrics.LoginAttempt("rejected")
	default:
		s.log.Error("login failed", zap.Error(err))
		s.metrics.LoginAttempt("error")
	}
	s.Notify(state.NewToast(state.ToastError, detail))
	return fmt.Errorf("%w: %s", ErrLoginRejected, detail)
}

func (s *Session) profileFailed(err error) error {
	s.log.Warn("login: profile fetch failed", zap.Error(err))
	s.metrics.LoginAttempt("error")
	s.Notify(state.NewToast(state.ToastError, msgProfileFailed))
	return fmt.Errorf("%w: %s", ErrLoginRejected, msgProfileFailed)
}

// AccessToken returns the stored token, if any.
func (s *Session) AccessToken(ctx context.Context) (string, bool) {
	tok, ok, err := s.durable.GetItem(ctx, storage.KeyAccessToken)
	if err != nil {
		s.log.Warn("read access token", zap.Error(err))
		return "", false
	}
	return tok, ok && tok != ""
}

// WaitHydrated blocks until both stores have rehydrated or ctx ends.
func (s *Session) WaitHydrated(ctx context.Context) error {
	for _, done := range []<-chan struct{}{s.App.Hydrated(), s.Favorites.Hydrated()} {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Logout drops the stored tokens, resets the App store and moves it back to the session
// tier. It returns where the browser goes next. Nothing changes if ctx ends before the
// stores have rehydrated.
func (s *Session) Logout(ctx context.Context) (string, error) {
	if err := s.WaitHydrated(ctx); err != nil {
		s.log.Warn("logout before hydration finished", zap.Error(err))
		return "", err
	}
	for _, key := range []string{storage.KeyAccessToken, storage.KeyRefreshToken} {
		if err := s.durable.RemoveItem(ctx, key); err != nil {
			s.log.Warn("logout: failed to remove token", zap.String("key", key), zap.Error(err))
		}
	}
	s.App.Logout(ctx)
	if err := s.App.Rebind(ctx, state.TierSession); err != nil {
		s.log.Warn("logout: rebind failed", zap.Error(err))
	}
	target, _ := shell.MenuTarget(shell.MenuLogout)
	return target, nil
}

// Close stops the panel's timers and detaches the stores.
func (s *Session) Close() {
	for _, u := range s.unsubs {
		u()
	}
	s.Chat.Close()
	s.App.Close()
	s.Favorites.Close()
}

// bus fans events out to a tab's subscribers, synchronously and in subscription order.
type bus struct {
	mu     sync.Mutex
	subs   map[int]func(Event)
	order  []int
	nextID int
}

func newBus() *bus { return &bus{subs: make(map[int]func(Event))} }

func (b *bus) subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[id] = fn
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (b *bus) publish(ev Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.subs[id])
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
