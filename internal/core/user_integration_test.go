package core_test

import (
	"context"
	"os"
	"testing"

	"secops-console/internal/core"
	"secops-console/internal/db"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping live accounts.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if _, err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE TABLE users, client_storage`); err != nil {
		t.Fatalf("Failed to clean test database: %v", err)
	}
	return pool
}

func TestUserService_Lifecycle(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	svc := core.NewUserService(pool)

	u, err := svc.Create(ctx, core.NewUser{
		EmpNumber: "E1001",
		Password:  "abc123!x",
		Email:     "kim@example.com",
		Name:      "Kim",
		Phone:     "010-0000-0000",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, u.UserID)
	assert.False(t, u.IsDeleted)
	assert.True(t, core.VerifyPassword("abc123!x", u.PasswordHash))

	t.Run("DuplicateEmail", func(t *testing.T) {
		_, err := svc.Create(ctx, core.NewUser{EmpNumber: "E1002", Password: "abc123!x", Email: "kim@example.com", Name: "Lee", Phone: "1"})
		assert.ErrorIs(t, err, core.ErrEmailTaken)
	})

	t.Run("DuplicateEmpNumber", func(t *testing.T) {
		_, err := svc.Create(ctx, core.NewUser{EmpNumber: "E1001", Password: "abc123!x", Email: "lee@example.com", Name: "Lee", Phone: "1"})
		assert.ErrorIs(t, err, core.ErrEmpNumberTaken)
	})

	t.Run("UpdatePassword", func(t *testing.T) {
		updated, err := svc.UpdatePassword(ctx, u.UserID, "newpass123!")
		require.NoError(t, err)
		assert.True(t, core.VerifyPassword("newpass123!", updated.PasswordHash))
		assert.False(t, updated.UpdatedAt.Before(u.UpdatedAt))
	})

	t.Run("Deactivate", func(t *testing.T) {
		require.NoError(t, svc.Deactivate(ctx, u.UserID))
		got, err := svc.GetByEmpNumber(ctx, "E1001")
		require.NoError(t, err)
		assert.True(t, got.IsDeleted)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := svc.GetByEmpNumber(ctx, "nobody")
		assert.ErrorIs(t, err, core.ErrUserNotFound)
		assert.ErrorIs(t, svc.Deactivate(ctx, "missing-id"), core.ErrUserNotFound)
	})
}
