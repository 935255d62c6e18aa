package app

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"secops-console/internal/core"

	"github.com/go-playground/validator/v10"
)

const (
	msgBadCredentials    = "사번 또는 비밀번호가 올바르지 않습니다."
	msgAccountDeleted    = "Account is deactivated or deleted"
	msgCredentialsFailed = "Could not validate credentials"
)

type appService struct {
	users    core.UserService
	validate *validator.Validate
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(users core.UserService) ApplicationService {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("signup_password", func(fl validator.FieldLevel) bool {
		return core.CheckSignupPassword(fl.Field().String()) == nil
	})
	return &appService{users: users, validate: v}
}

func (s *appService) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return validationError(err)
	}
	return nil
}

// Signup creates an account.
func (s *appService) Signup(ctx context.Context, req SignupRequest) (*UserResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	u, err := s.users.Create(ctx, core.NewUser{
		EmpNumber: req.EmpNumber,
		Password:  req.Password,
		Email:     req.Email,
		Name:      req.Name,
		Phone:     req.Phone,
	})
	switch {
	case errors.Is(err, core.ErrEmailTaken):
		return nil, newError(KindConflict, "Email already registered", err)
	case errors.Is(err, core.ErrEmpNumberTaken):
		return nil, newError(KindConflict, "Employee number already registered", err)
	case err != nil:
		return nil, err
	}
	return userResult(u), nil
}

// AuthenticateUser checks credentials for login.
func (s *appService) AuthenticateUser(ctx context.Context, req LoginRequest) (*UserResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	u, err := s.users.GetByEmpNumber(ctx, req.EmpNumber)
	if errors.Is(err, core.ErrUserNotFound) {
		return nil, newError(KindUnauthorized, msgBadCredentials, err)
	}
	if err != nil {
		return nil, err
	}
	if !core.VerifyPassword(req.Password, u.PasswordHash) {
		return nil, newError(KindUnauthorized, msgBadCredentials, nil)
	}
	if u.IsDeleted {
		return nil, newError(KindForbidden, msgAccountDeleted, nil)
	}
	return userResult(u), nil
}

// activeUser resolves a token subject to a live account.
func (s *appService) activeUser(ctx context.Context, empNumber string) (*core.User, error) {
	u, err := s.users.GetByEmpNumber(ctx, empNumber)
	if errors.Is(err, core.ErrUserNotFound) {
		return nil, newError(KindUnauthorized, msgCredentialsFailed, err)
	}
	if err != nil {
		return nil, err
	}
	if u.IsDeleted {
		return nil, newError(KindUnauthorized, msgCredentialsFailed, nil)
	}
	return u, nil
}

// GetProfile returns the signed-in user's profile.
func (s *appService) GetProfile(ctx context.Context, empNumber string) (*UserResult, error) {
	u, err := s.activeUser(ctx, empNumber)
	if err != nil {
		return nil, err
	}
	return userResult(u), nil
}

// ChangePassword replaces the signed-in user's password.
func (s *appService) ChangePassword(ctx context.Context, empNumber string, req ChangePasswordRequest) (*UserResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	u, err := s.activeUser(ctx, empNumber)
	if err != nil {
		return nil, err
	}
	if !core.VerifyPassword(req.CurrentPassword, u.PasswordHash) {
		return nil, newError(KindUnauthorized, "현재 비밀번호가 올바르지 않습니다.", nil)
	}
	if req.NewPassword != req.ConfirmPassword {
		return nil, newError(KindBadRequest, "새 비밀번호와 확인 비밀번호가 일치하지 않습니다.", nil)
	}
	if req.NewPassword == req.CurrentPassword {
		return nil, newError(KindBadRequest, "새 비밀번호는 현재 비밀번호와 달라야 합니다.", nil)
	}
	if err := core.CheckNewPassword(req.NewPassword); err != nil {
		return nil, newError(KindBadRequest, err.Error(), err)
	}
	updated, err := s.users.UpdatePassword(ctx, u.UserID, req.NewPassword)
	if err != nil {
		return nil, err
	}
	return userResult(updated), nil
}

// VerifyPassword re-checks the signed-in user's password.
func (s *appService) VerifyPassword(ctx context.Context, empNumber, password string) error {
	if password == "" {
		return newError(KindBadRequest, "비밀번호가 누락되었습니다.", nil)
	}
	u, err := s.activeUser(ctx, empNumber)
	if err != nil {
		return err
	}
	if !core.VerifyPassword(password, u.PasswordHash) {
		return newError(KindUnauthorized, "비밀번호가 일치하지 않습니다.", nil)
	}
	return nil
}

// Withdraw soft-deletes the signed-in user's account.
func (s *appService) Withdraw(ctx context.Context, empNumber, password string) error {
	u, err := s.activeUser(ctx, empNumber)
	if err != nil {
		return err
	}
	if !core.VerifyPassword(password, u.PasswordHash) {
		return newError(KindUnauthorized, "Incorrect password", nil)
	}
	return s.users.Deactivate(ctx, u.UserID)
}
