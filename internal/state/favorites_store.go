package state

import (
	"context"
	"errors"
	"slices"
	"strings"

	"secops-console/internal/storage"

	"go.uber.org/zap"
)

// MaxFavorites caps the favorites list. Adding beyond it is refused; nothing is evicted.
const MaxFavorites = 5

var (
	ErrFavoritesFull   = errors.New("favorites list is full")
	ErrInvalidFavorite = errors.New("favorite key must be a non-empty route key")
)

// FavoritesState is the ordered list of favorite route keys.
type FavoritesState struct {
	Favorites []string `json:"favorites"`
}

// normalize drops blanks and duplicates and enforces the cap, keeping first occurrences.
func (s FavoritesState) normalize() FavoritesState {
	out := make([]string, 0, len(s.Favorites))
	for _, f := range s.Favorites {
		if strings.TrimSpace(f) == "" || slices.Contains(out, f) {
			continue
		}
		if len(out) == MaxFavorites {
			break
		}
		out = append(out, f)
	}
	return FavoritesState{Favorites: out}
}

// FavoritesStore owns the favorites list of one client. It is always persisted to durable
// storage and has its own lifecycle, independent of login state.
type FavoritesStore struct {
	store    *Store[FavoritesState]
	persist  *Persisted[FavoritesState]
	notifier Notifier
	log      *zap.Logger
}

// NewFavoritesStore builds the store and starts rehydration from durable.
func NewFavoritesStore(ctx context.Context, durable storage.Storage, notifier Notifier, log *zap.Logger) *FavoritesStore {
	if notifier == nil {
		notifier = Discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	f := &FavoritesStore{
		store:    NewStore(FavoritesState{Favorites: []string{}}),
		notifier: notifier,
		log:      log,
	}
	f.persist = Persist(f.store, PersistOptions[FavoritesState]{
		Name:        storage.KeyFavorites,
		Target:      durable,
		OnRehydrate: FavoritesState.normalize,
		Log:         log,
	})
	f.persist.StartHydration(ctx)
	return f
}

// Favorites returns a copy of the list.
func (f *FavoritesStore) Favorites() []string {
	return slices.Clone(f.store.Get().Favorites)
}

// Contains reports whether key is a favorite.
func (f *FavoritesStore) Contains(key string) bool {
	return slices.Contains(f.store.Get().Favorites, key)
}

func (f *FavoritesStore) Subscribe(fn Listener[FavoritesState]) func() {
	return f.store.Subscribe(fn)
}

// Hydrated is closed once rehydration has finished.
func (f *FavoritesStore) Hydrated() <-chan struct{} { return f.persist.Done() }

// ToggleFavorite removes key if present, otherwise appends it. Appending to a full list is
// refused with ErrFavoritesFull and an error toast. added reports the resulting membership.
func (f *FavoritesStore) ToggleFavorite(key string) (added bool, err error) {
	if strings.TrimSpace(key) == "" {
		f.log.Warn("favorite toggle rejected: empty route key")
		return false, ErrInvalidFavorite
	}

	f.store.Set(func(st FavoritesState) FavoritesState {
		if i := slices.Index(st.Favorites, key); i >= 0 {
			return FavoritesState{Favorites: slices.Delete(slices.Clone(st.Favorites), i, i+1)}
		}
		if len(st.Favorites) >= MaxFavorites {
			err = ErrFavoritesFull
			return st
		}
		added = true
		return FavoritesState{Favorites: append(slices.Clone(st.Favorites), key)}
	})

	switch {
	case err != nil:
		f.notifier.Notify(NewToast(ToastError, "즐겨찾기는 최대 5개까지 등록 가능합니다."))
	case added:
		t := NewToast(ToastInfo, "즐겨찾기에 추가됨")
		t.Icon = "⭐"
		f.notifier.Notify(t)
	default:
		t := NewToast(ToastInfo, "즐겨찾기에서 제거됨")
		t.Icon = "❌"
		f.notifier.Notify(t)
	}
	return added, err
}

// Close detaches persistence.
func (f *FavoritesStore) Close() { f.persist.Close() }
