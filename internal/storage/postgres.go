package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a durable backend over the client_storage table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool. The pool is owned by the caller; Close is a no-op.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Scope(id string) Storage {
	return &pgStorage{pool: p.pool, scope: id}
}

func (p *Postgres) Close() error { return nil }

type pgStorage struct {
	pool  *pgxpool.Pool
	scope string
}

func (s *pgStorage) GetItem(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.pool.QueryRow(ctx,
		"SELECT value FROM client_storage WHERE scope = $1 AND key = $2", s.scope, key,
	).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s/%s: %w", s.scope, key, err)
	}
	return v, true, nil
}

func (s *pgStorage) SetItem(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO client_storage (scope, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (scope, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		s.scope, key, value,
	)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", s.scope, key, err)
	}
	return nil
}

func (s *pgStorage) RemoveItem(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx,
		"DELETE FROM client_storage WHERE scope = $1 AND key = $2", s.scope, key,
	); err != nil {
		return fmt.Errorf("remove %s/%s: %w", s.scope, key, err)
	}
	return nil
}
