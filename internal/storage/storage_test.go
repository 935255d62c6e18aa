package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"secops-console/internal/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

// exerciseBackend checks the behaviour every backend shares.
func exerciseBackend(t *testing.T, b Backend) {
	ctx := context.Background()
	a := b.Scope("client-a-" + uuid.NewString())
	other := b.Scope("client-b-" + uuid.NewString())

	_, ok, err := a.GetItem(ctx, KeyKeepLoggedIn)
	require.NoError(t, err)
	assert.False(t, ok, "fresh scope must be empty")

	require.NoError(t, a.SetItem(ctx, KeyKeepLoggedIn, "true"))
	v, ok, err := a.GetItem(ctx, KeyKeepLoggedIn)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	require.NoError(t, a.SetItem(ctx, KeyKeepLoggedIn, "false"))
	v, _, _ = a.GetItem(ctx, KeyKeepLoggedIn)
	assert.Equal(t, "false", v, "set overwrites")

	_, ok, err = other.GetItem(ctx, KeyKeepLoggedIn)
	require.NoError(t, err)
	assert.False(t, ok, "scopes are isolated")

	require.NoError(t, a.RemoveItem(ctx, KeyKeepLoggedIn))
	_, ok, _ = a.GetItem(ctx, KeyKeepLoggedIn)
	assert.False(t, ok)

	assert.NoError(t, a.RemoveItem(ctx, "never-set"), "removing a missing key is not an error")
}

func TestMemory_Contract(t *testing.T) {
	exerciseBackend(t, NewMemory(0))
}

func TestMemory_DropAndPurge(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)

	require.NoError(t, m.Scope("tab-1").SetItem(ctx, KeyAppState, "{}"))
	require.NoError(t, m.Scope("tab-2").SetItem(ctx, KeyAppState, "{}"))
	assert.Equal(t, 2, m.Len())

	m.Drop("tab-1")
	_, ok, _ := m.Scope("tab-1").GetItem(ctx, KeyAppState)
	assert.False(t, ok)

	m.purge(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 0, m.Len(), "idle scopes are purged")
}

func TestMemory_CloseWaitsForPurgeLoop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMemory(time.Millisecond)
	require.NoError(t, m.Scope("tab-1").SetItem(ctx, KeyAppState, "{}"))
	m.StartPurge(ctx, time.Millisecond)

	require.Eventually(t, func() bool { return m.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, m.Close())
}

func TestBadger_CloseWaitsForGCLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b, err := OpenBadger(BadgerConfig{InMemory: true}, zap.NewNop())
	require.NoError(t, err)
	b.StartGC(ctx, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	cancel()
	require.NoError(t, b.Close())
}

func TestMemory_Closed(t *testing.T) {
	m := NewMemory(0)
	require.NoError(t, m.Close())
	err := m.Scope("x").SetItem(context.Background(), "k", "v")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBadger_Contract(t *testing.T) {
	b, err := OpenBadger(BadgerConfig{InMemory: true}, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	exerciseBackend(t, b)
}

func TestBadger_PrefixDoesNotLeakAcrossScopes(t *testing.T) {
	b, err := OpenBadger(BadgerConfig{InMemory: true}, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.Scope("ab").SetItem(ctx, "c", "1"))
	_, ok, err := b.Scope("a").GetItem(ctx, "bc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgres_Contract(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, dbURL)
	require.NoError(t, err)
	defer pool.Close()
	_, err = db.Migrate(ctx, pool)
	require.NoError(t, err)

	exerciseBackend(t, NewPostgres(pool))
}
