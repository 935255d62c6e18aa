package app

import (
	"context"
)

// ApplicationService is the single interface all adapters (Web, CLI) call for account
// operations. Implementations contain no HTTP or display logic; failures are *Error or
// *ValidationError values that adapters translate.
type ApplicationService interface {
	// Signup creates an account. Conflicts on email or employee number are KindConflict.
	Signup(ctx context.Context, req SignupRequest) (*UserResult, error)

	// AuthenticateUser checks credentials. Unknown employee numbers and wrong passwords are
	// both KindUnauthorized with the same message; withdrawn accounts are KindForbidden.
	AuthenticateUser(ctx context.Context, req LoginRequest) (*UserResult, error)

	// GetProfile returns the active account for a token subject. Missing or withdrawn
	// accounts are KindUnauthorized.
	GetProfile(ctx context.Context, empNumber string) (*UserResult, error)

	// ChangePassword replaces the password after checking the current one, the
	// confirmation, and the new-password policy.
	ChangePassword(ctx context.Context, empNumber string, req ChangePasswordRequest) (*UserResult, error)

	// VerifyPassword re-checks the password of a signed-in user.
	VerifyPassword(ctx context.Context, empNumber, password string) error

	// Withdraw soft-deletes the account after checking its password.
	Withdraw(ctx context.Context, empNumber, password string) error
}
