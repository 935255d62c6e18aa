package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `user_id, emp_number, password_hash, email, name, phone, is_deleted, created_at, updated_at`

const pgUniqueViolation = "23505"

type userService struct {
	pool *pgxpool.Pool
}

// NewUserService constructs a UserService backed by PostgreSQL.
func NewUserService(pool *pgxpool.Pool) UserService {
	return &userService{pool: pool}
}

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	err := row.Scan(&u.UserID, &u.EmpNumber, &u.PasswordHash, &u.Email, &u.Name, &u.Phone,
		&u.IsDeleted, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *userService) Create(ctx context.Context, in NewUser) (*User, error) {
	if _, err := s.GetByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	if _, err := s.GetByEmpNumber(ctx, in.EmpNumber); err == nil {
		return nil, ErrEmpNumberTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u, err := scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (user_id, emp_number, password_hash, email, name, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		uuid.NewString(), in.EmpNumber, hash, in.Email, in.Name, in.Phone,
	))
	if err != nil {
		// Lost a race with a concurrent signup for the same identity.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if pgErr.ConstraintName == "users_email_key" {
				return nil, ErrEmailTaken
			}
			return nil, ErrEmpNumberTaken
		}
		return nil, fmt.Errorf("create user %s: %w", in.EmpNumber, err)
	}
	return u, nil
}

func (s *userService) GetByEmpNumber(ctx context.Context, empNumber string) (*User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE emp_number = $1 LIMIT 1`, empNumber))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", empNumber, err)
	}
	return u, nil
}

func (s *userService) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 LIMIT 1`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user with email %q: %w", email, err)
	}
	return u, nil
}

func (s *userService) UpdatePassword(ctx context.Context, userID, newPassword string) (*User, error) {
	hash, err := HashPassword(newPassword)
	if err != nil {
		return nil, err
	}
	u, err := scanUser(s.pool.QueryRow(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now()
		WHERE user_id = $1
		RETURNING `+userColumns,
		userID, hash,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update password for %s: %w", userID, err)
	}
	return u, nil
}

func (s *userService) Deactivate(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET is_deleted = true, updated_at = now() WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("deactivate %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
