package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"secops-console/internal/core"

	"github.com/go-playground/validator/v10"
)

// UserResult is the public view of an account.
type UserResult struct {
	UserID    string    `json:"user_id"`
	EmpNumber string    `json:"emp_number"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

func userResult(u *core.User) *UserResult {
	return &UserResult{
		UserID:    u.UserID,
		EmpNumber: u.EmpNumber,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		CreatedAt: u.CreatedAt,
	}
}

// ErrorKind classifies an account failure for adapters.
type ErrorKind int

const (
	KindBadRequest ErrorKind = iota + 1
	KindUnauthorized
	KindForbidden
	KindConflict
	KindNotFound
)

// Error is an account failure with a user-facing detail message.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf returns the kind of an *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// ValidationError lists field-level input problems.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages, "; ")
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return &ValidationError{Messages: msgs}
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + ": field required"
	case "email":
		return field + ": value is not a valid email address"
	case "max":
		return fmt.Sprintf("%s: at most %s characters", field, fe.Param())
	case "signup_password":
		return field + ": " + core.ErrWeakSignupPassword.Error()
	default:
		return fmt.Sprintf("%s: failed %s", field, fe.Tag())
	}
}
