package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"secops-console/internal/storage"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// toastRecorder collects toasts for assertions.
type toastRecorder struct {
	mu     sync.Mutex
	toasts []Toast
}

func (r *toastRecorder) Notify(t Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

func (r *toastRecorder) last() Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.toasts) == 0 {
		return Toast{}
	}
	return r.toasts[len(r.toasts)-1]
}

// failingStorage fails every call.
type failingStorage struct{}

var errBackendDown = errors.New("backend down")

func (failingStorage) GetItem(context.Context, string) (string, bool, error) {
	return "", false, errBackendDown
}
func (failingStorage) SetItem(context.Context, string, string) error { return errBackendDown }
func (failingStorage) RemoveItem(context.Context, string) error     { return errBackendDown }

type fixture struct {
	durable storage.Storage
	session storage.Storage
	toasts  *toastRecorder
}

func newFixture() *fixture {
	return &fixture{
		durable: storage.NewMemory(0).Scope("client"),
		session: storage.NewMemory(0).Scope("tab"),
		toasts:  &toastRecorder{},
	}
}

func (f *fixture) appStore(t *testing.T) *AppStore {
	t.Helper()
	strategy, err := ResolveStrategy(context.Background(), f.durable, f.session)
	require.NoError(t, err)
	s := NewAppStore(context.Background(), strategy, f.toasts, zap.NewNop())
	<-s.Hydrated()
	t.Cleanup(s.Close)
	return s
}

func (f *fixture) favorites(t *testing.T) *FavoritesStore {
	t.Helper()
	s := NewFavoritesStore(context.Background(), f.durable, f.toasts, zap.NewNop())
	<-s.Hydrated()
	t.Cleanup(s.Close)
	return s
}

func readEnvelope(t *testing.T, st storage.Storage, key string, into any) bool {
	t.Helper()
	raw, ok, err := st.GetItem(context.Background(), key)
	require.NoError(t, err)
	if !ok {
		return false
	}
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, 0, env.Version)
	require.NoError(t, json.Unmarshal(env.State, into))
	return true
}

// ── Store ──────────────────────────────────────────────────────────────────

func TestStore_ListenersRunInOrderAndUnsubscribe(t *testing.T) {
	s := NewStore(0)
	var calls []string
	unsubA := s.Subscribe(func(next, prev int) { calls = append(calls, fmt.Sprintf("a:%d->%d", prev, next)) })
	s.Subscribe(func(next, prev int) { calls = append(calls, fmt.Sprintf("b:%d->%d", prev, next)) })

	s.Set(func(n int) int { return n + 1 })
	unsubA()
	unsubA()
	s.Set(func(n int) int { return n + 1 })

	assert.Equal(t, []string{"a:0->1", "b:0->1", "b:1->2"}, calls)
	assert.Equal(t, 2, s.Get())
}

func TestStore_ConcurrentSetsAreAtomic(t *testing.T) {
	s := NewStore(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Set(func(n int) int { return n + 1 })
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Get())
}

// ── Persist ────────────────────────────────────────────────────────────────

type sample struct {
	A int    `json:"a"`
	B string `json:"b"`
}

func TestPersist_MergesOverDefaultsAndDefersWrites(t *testing.T) {
	ctx := context.Background()
	target := storage.NewMemory(0).Scope("x")
	require.NoError(t, target.SetItem(ctx, "sample", `{"state":{"a":7},"version":0}`))

	store := NewStore(sample{A: 1, B: "default"})
	p := Persist(store, PersistOptions[sample]{Name: "sample", Target: target})
	defer p.Close()

	// Not hydrated yet: mutations stay in memory.
	store.Set(func(s sample) sample { s.B = "early"; return s })
	raw, _, _ := target.GetItem(ctx, "sample")
	assert.JSONEq(t, `{"state":{"a":7},"version":0}`, raw)

	require.NoError(t, p.Hydrate(ctx))
	assert.True(t, p.Hydrated())
	assert.Equal(t, sample{A: 7, B: "early"}, store.Get(), "persisted fields win, absent fields keep the current value")

	store.Set(func(s sample) sample { s.A = 9; return s })
	var got sample
	require.True(t, readEnvelope(t, target, "sample", &got))
	assert.Equal(t, sample{A: 9, B: "early"}, got)
}

func TestPersist_CorruptBlobKeepsDefaults(t *testing.T) {
	ctx := context.Background()
	target := storage.NewMemory(0).Scope("x")
	require.NoError(t, target.SetItem(ctx, "sample", `{not json`))

	store := NewStore(sample{A: 1})
	var rehydrated bool
	p := Persist(store, PersistOptions[sample]{
		Name:        "sample",
		Target:      target,
		OnRehydrate: func(s sample) sample { rehydrated = true; return s },
	})
	defer p.Close()

	err := p.Hydrate(ctx)
	assert.Error(t, err)
	assert.True(t, rehydrated, "rehydrate hook still fires")
	assert.True(t, p.Hydrated())
	assert.Equal(t, sample{A: 1}, store.Get())

	// The next write replaces the corrupt blob.
	store.Set(func(s sample) sample { s.A = 2; return s })
	var got sample
	require.True(t, readEnvelope(t, target, "sample", &got))
	assert.Equal(t, 2, got.A)
}

func TestPersist_FailingBackendStillHydrates(t *testing.T) {
	store := NewStore(sample{A: 1})
	p := Persist(store, PersistOptions[sample]{Name: "sample", Target: failingStorage{}})
	defer p.Close()

	assert.ErrorIs(t, p.Hydrate(context.Background()), errBackendDown)
	<-p.Done()
	assert.NotPanics(t, func() { store.Set(func(s sample) sample { s.A = 3; return s }) })
	assert.Equal(t, 3, store.Get().A)
}

func TestPersist_HydrateRunsOnce(t *testing.T) {
	ctx := context.Background()
	target := storage.NewMemory(0).Scope("x")
	store := NewStore(sample{})
	var hooks int
	p := Persist(store, PersistOptions[sample]{
		Name:        "sample",
		Target:      target,
		OnRehydrate: func(s sample) sample { hooks++; return s },
	})
	defer p.Close()

	require.NoError(t, p.Hydrate(ctx))
	require.NoError(t, p.Hydrate(ctx))
	assert.Equal(t, 1, hooks)
}

func TestPersist_RebindMovesBlob(t *testing.T) {
	ctx := context.Background()
	from := storage.NewMemory(0).Scope("tab")
	to := storage.NewMemory(0).Scope("client")
	store := NewStore(sample{A: 5})
	p := Persist(store, PersistOptions[sample]{Name: "sample", Target: from})
	defer p.Close()
	require.NoError(t, p.Hydrate(ctx))

	require.NoError(t, p.Rebind(ctx, to))
	_, ok, _ := from.GetItem(ctx, "sample")
	assert.False(t, ok)

	store.Set(func(s sample) sample { s.A = 6; return s })
	var got sample
	require.True(t, readEnvelope(t, to, "sample", &got))
	assert.Equal(t, 6, got.A)
}

func TestPersist_RebindBeforeHydrationKeepsBlob(t *testing.T) {
	ctx := context.Background()
	from := storage.NewMemory(0).Scope("tab")
	to := storage.NewMemory(0).Scope("client")
	require.NoError(t, from.SetItem(ctx, "sample", `{"state":{"a":7},"version":0}`))
	store := NewStore(sample{A: 1})
	p := Persist(store, PersistOptions[sample]{Name: "sample", Target: from})
	defer p.Close()

	assert.ErrorIs(t, p.Rebind(ctx, to), ErrNotHydrated)
	raw, ok, err := from.GetItem(ctx, "sample")
	require.NoError(t, err)
	require.True(t, ok, "saved state stays in the original storage")
	assert.JSONEq(t, `{"state":{"a":7},"version":0}`, raw)
	_, ok, _ = to.GetItem(ctx, "sample")
	assert.False(t, ok)

	require.NoError(t, p.Hydrate(ctx))
	assert.Equal(t, 7, store.Get().A)
}

// ── Strategy (storage target selection) ────────────────────────────────────

func TestResolveStrategy_SelectsTierFromKeepLoggedIn(t *testing.T) {
	cases := []struct {
		name  string
		value string
		set   bool
		want  Tier
	}{
		{"missing flag", "", false, TierSession},
		{"true", "true", true, TierDurable},
		{"false", "false", true, TierSession},
		{"garbage", "yes", true, TierSession},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture()
			if tc.set {
				require.NoError(t, f.durable.SetItem(ctx, storage.KeyKeepLoggedIn, tc.value))
			}
			s, err := ResolveStrategy(ctx, f.durable, f.session)
			require.NoError(t, err)
			assert.Equal(t, tc.want, s.Initial())
		})
	}
}

func TestResolveStrategy_ReadErrorFallsBackToSession(t *testing.T) {
	s, err := ResolveStrategy(context.Background(), failingStorage{}, storage.NewMemory(0).Scope("t"))
	assert.ErrorIs(t, err, errBackendDown)
	require.NotNil(t, s)
	assert.Equal(t, TierSession, s.Initial())
}

func TestAppStore_WritesToSelectedTier(t *testing.T) {
	ctx := context.Background()

	f := newFixture()
	require.NoError(t, f.durable.SetItem(ctx, storage.KeyKeepLoggedIn, "true"))
	s := f.appStore(t)
	s.ToggleSidebarCollapsed()
	var got AppState
	assert.True(t, readEnvelope(t, f.durable, storage.KeyAppState, &got))
	assert.True(t, got.IsSidebarCollapsed)
	_, ok, _ := f.session.GetItem(ctx, storage.KeyAppState)
	assert.False(t, ok)

	f = newFixture()
	s = f.appStore(t)
	s.ToggleSidebarCollapsed()
	assert.True(t, readEnvelope(t, f.session, storage.KeyAppState, &got))
	_, ok, _ = f.durable.GetItem(ctx, storage.KeyAppState)
	assert.False(t, ok)
}

// ── AppStore ───────────────────────────────────────────────────────────────

func TestAppStore_Defaults(t *testing.T) {
	s := newFixture().appStore(t)
	want := DefaultAppState()
	want.HasHydrated = true
	if diff := cmp.Diff(want, s.Get()); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestAppStore_HydrationRestoresAndRepairs(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	blob := `{"state":{"isLoggedIn":true,"user":null,"isSidebarCollapsed":true,"unreadCount":4,"hasUnread":false},"version":0}`
	require.NoError(t, f.session.SetItem(ctx, storage.KeyAppState, blob))

	st := f.appStore(t).Get()
	assert.True(t, st.HasHydrated)
	assert.True(t, st.IsSidebarCollapsed)
	assert.False(t, st.IsLoggedIn, "logged-in flag without a user is repaired")
	assert.Equal(t, 4, st.UnreadCount)
	assert.True(t, st.HasUnread)
}

func TestAppStore_LoginRejectsMissingEmpNumber(t *testing.T) {
	s := newFixture().appStore(t)
	before := s.Get()

	assert.False(t, s.Login(nil))
	assert.False(t, s.Login(&User{Name: "Kim"}))
	assert.False(t, s.Login(&User{EmpNumber: "   ", Name: "Kim"}))
	assert.Equal(t, before, s.Get())

	assert.True(t, s.Login(&User{EmpNumber: "A1234", Name: "Kim"}))
	st := s.Get()
	assert.True(t, st.IsLoggedIn)
	require.NotNil(t, st.User)
	assert.Equal(t, "A1234", st.User.EmpNumber)
}

func TestAppStore_UpdateUser(t *testing.T) {
	s := newFixture().appStore(t)

	s.UpdateUser(User{Name: "ignored"})
	assert.Nil(t, s.Get().User, "ignored while logged out")

	s.Login(&User{EmpNumber: "A1234", Name: "Kim", Email: "kim@example.com"})
	s.UpdateUser(User{Phone: "010-1234-5678"})
	assert.Equal(t, &User{EmpNumber: "A1234", Name: "Kim", Email: "kim@example.com", Phone: "010-1234-5678"}, s.Get().User)
}

func TestAppStore_UnreadConsistency(t *testing.T) {
	s := newFixture().appStore(t)
	check := func() {
		st := s.Get()
		assert.Equal(t, st.UnreadCount > 0, st.HasUnread, "unread=%d", st.UnreadCount)
		assert.GreaterOrEqual(t, st.UnreadCount, 0)
	}

	for _, n := range []int{3, 0, -2, 7} {
		s.SetUnreadCount(n)
		check()
	}
	s.AddUnread(2)
	assert.Equal(t, 9, s.Get().UnreadCount)
	check()
	s.AddUnread(-4)
	assert.Equal(t, 9, s.Get().UnreadCount)
	s.MarkAllAsRead()
	check()
	assert.Equal(t, 0, s.Get().UnreadCount)
}

func TestAppStore_ToggleSectionOpen(t *testing.T) {
	s := newFixture().appStore(t)

	require.NoError(t, s.ToggleSectionOpen(SectionAttack))
	assert.False(t, s.Get().OpenSections.Attack)
	assert.True(t, s.Get().OpenSections.Summary)
	require.NoError(t, s.ToggleSectionOpen(SectionAttack))
	assert.True(t, s.Get().OpenSections.Attack)

	err := s.ToggleSectionOpen("bogus")
	assert.ErrorIs(t, err, ErrUnknownSection)
}

func TestAppStore_ToggleNotificationOpenLeavesUnread(t *testing.T) {
	s := newFixture().appStore(t)
	s.SetUnreadCount(2)
	s.ToggleNotificationOpen()
	s.ToggleNotificationOpen()
	assert.True(t, s.Get().IsNotificationOpen)
	assert.Equal(t, 2, s.Get().UnreadCount)
}

func TestAppStore_LogoutKeepsFavorites(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	require.NoError(t, f.durable.SetItem(ctx, storage.KeyKeepLoggedIn, "true"))
	require.NoError(t, f.durable.SetItem(ctx, storage.KeySavedEmployeeID, "A1234"))

	app := f.appStore(t)
	favs := f.favorites(t)
	_, err := favs.ToggleFavorite("traffic")
	require.NoError(t, err)
	_, err = favs.ToggleFavorite("network")
	require.NoError(t, err)

	app.Login(&User{EmpNumber: "A1234", Name: "Kim"})
	app.SetUnreadCount(5)
	app.ToggleSidebarCollapsed()

	app.Logout(ctx)

	want := DefaultAppState()
	want.HasHydrated = true
	assert.Equal(t, want, app.Get())
	assert.Equal(t, []string{"traffic", "network"}, favs.Favorites())

	for _, key := range []string{storage.KeyKeepLoggedIn, storage.KeySavedEmployeeID} {
		_, ok, err := f.durable.GetItem(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}
	var persisted FavoritesState
	require.True(t, readEnvelope(t, f.durable, storage.KeyFavorites, &persisted))
	assert.Equal(t, []string{"traffic", "network"}, persisted.Favorites)
	assert.Equal(t, ToastSuccess, f.toasts.last().Kind)
	assert.Equal(t, "로그아웃되었습니다.", f.toasts.last().Message)
}

func TestAppStore_RebindBetweenTiers(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	s := f.appStore(t)
	assert.Equal(t, TierSession, s.Tier())

	s.Login(&User{EmpNumber: "A1234", Name: "Kim"})
	require.NoError(t, s.Rebind(ctx, TierDurable))
	assert.Equal(t, TierDurable, s.Tier())

	var got AppState
	require.True(t, readEnvelope(t, f.durable, storage.KeyAppState, &got))
	assert.True(t, got.IsLoggedIn)
	_, ok, _ := f.session.GetItem(ctx, storage.KeyAppState)
	assert.False(t, ok)

	require.NoError(t, s.Rebind(ctx, TierDurable), "same tier is a no-op")
	_, ok, _ = f.durable.GetItem(ctx, storage.KeyAppState)
	assert.True(t, ok)
}

// ── FavoritesStore ─────────────────────────────────────────────────────────

func TestFavorites_CapAtFive(t *testing.T) {
	f := newFixture()
	favs := f.favorites(t)
	keys := []string{"traffic", "network", "typeofNetworkTrafficAttack", "typeofSystemLogAttack", "attackIPBlocking"}
	for _, k := range keys {
		added, err := favs.ToggleFavorite(k)
		require.NoError(t, err)
		assert.True(t, added)
	}

	added, err := favs.ToggleFavorite("blockingcertainports")
	assert.ErrorIs(t, err, ErrFavoritesFull)
	assert.False(t, added)
	assert.Equal(t, keys, favs.Favorites(), "full list is unchanged")
	assert.Equal(t, ToastError, f.toasts.last().Kind)
	assert.Equal(t, "즐겨찾기는 최대 5개까지 등록 가능합니다.", f.toasts.last().Message)

	_, err = favs.ToggleFavorite("traffic")
	require.NoError(t, err)
	added, err = favs.ToggleFavorite("blockingcertainports")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Len(t, favs.Favorites(), MaxFavorites)
}

func TestFavorites_ToggleTwiceIsIdentity(t *testing.T) {
	f := newFixture()
	favs := f.favorites(t)
	_, _ = favs.ToggleFavorite("traffic")
	_, _ = favs.ToggleFavorite("network")
	before := favs.Favorites()

	for _, k := range []string{"traffic", "mypage"} {
		_, err := favs.ToggleFavorite(k)
		require.NoError(t, err)
		_, err = favs.ToggleFavorite(k)
		require.NoError(t, err)
	}
	assert.ElementsMatch(t, before, favs.Favorites())

	last := f.toasts.last()
	assert.Equal(t, "❌", last.Icon)
	assert.Equal(t, "즐겨찾기에서 제거됨", last.Message)
	assert.Equal(t, DefaultToastDuration.Milliseconds(), last.DurationMS)
}

func TestFavorites_RejectsBlankKey(t *testing.T) {
	favs := newFixture().favorites(t)
	_, err := favs.ToggleFavorite("  ")
	assert.ErrorIs(t, err, ErrInvalidFavorite)
	assert.Empty(t, favs.Favorites())
}

func TestFavorites_HydrationNormalizes(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	blob := `{"state":{"favorites":["a","b","a","","c","d","e","f","g"]},"version":0}`
	require.NoError(t, f.durable.SetItem(ctx, storage.KeyFavorites, blob))

	favs := f.favorites(t)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, favs.Favorites())
	assert.True(t, favs.Contains("c"))
	assert.False(t, favs.Contains("f"))
}
