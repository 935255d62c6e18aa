package core

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned when no account matches the lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken and ErrEmpNumberTaken report a signup conflict.
	ErrEmailTaken     = errors.New("email already registered")
	ErrEmpNumberTaken = errors.New("employee number already registered")
)

// User is an operator account. Accounts are never removed; withdrawal sets IsDeleted.
type User struct {
	UserID       string
	EmpNumber    string
	PasswordHash string
	Email        string
	Name         string
	Phone        string
	IsDeleted    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser is the input to UserService.Create. Password is plaintext; the service hashes it.
type NewUser struct {
	EmpNumber string
	Password  string
	Email     string
	Name      string
	Phone     string
}

// UserService stores operator accounts.
type UserService interface {
	// Create inserts an account. Duplicate email or employee number returns ErrEmailTaken
	// or ErrEmpNumberTaken; the email check runs first.
	Create(ctx context.Context, in NewUser) (*User, error)

	// GetByEmpNumber returns the account, withdrawn or not.
	GetByEmpNumber(ctx context.Context, empNumber string) (*User, error)

	GetByEmail(ctx context.Context, email string) (*User, error)

	// UpdatePassword replaces the password hash and bumps updated_at.
	UpdatePassword(ctx context.Context, userID, newPassword string) (*User, error)

	// Deactivate marks the account withdrawn.
	Deactivate(ctx context.Context, userID string) error
}
