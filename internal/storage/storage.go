// Package storage provides the key/value backends that persisted stores write to.
//
// Two tiers exist. The durable tier outlives browser restarts and is scoped per client
// (one browser). The session tier is scoped per tab and is discarded when the tab's
// session ends.
package storage

import (
	"context"
	"errors"
)

// Well-known keys.
const (
	KeyAccessToken     = "access_token"
	KeyRefreshToken    = "refresh_token"
	KeyKeepLoggedIn    = "keepLoggedIn"
	KeySavedEmployeeID = "savedEmployeeId"
	KeyAppState        = "app-storage"
	KeyFavorites       = "favorites-storage"
)

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("storage: backend closed")

// Storage is a string key/value namespace.
type Storage interface {
	// GetItem returns the value and whether the key exists.
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// Backend hands out isolated namespaces.
type Backend interface {
	Scope(id string) Storage
	Close() error
}
