package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"secops-console/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memUsers is an in-memory core.UserService.
type memUsers struct {
	mu    sync.Mutex
	byEmp map[string]*core.User
}

func newMemUsers() *memUsers { return &memUsers{byEmp: map[string]*core.User{}} }

func (m *memUsers) Create(_ context.Context, in core.NewUser) (*core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmp {
		if u.Email == in.Email {
			return nil, core.ErrEmailTaken
		}
	}
	if _, ok := m.byEmp[in.EmpNumber]; ok {
		return nil, core.ErrEmpNumberTaken
	}
	hash, err := core.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &core.User{UserID: "id-" + in.EmpNumber, EmpNumber: in.EmpNumber, PasswordHash: hash,
		Email: in.Email, Name: in.Name, Phone: in.Phone, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.byEmp[in.EmpNumber] = u
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmpNumber(_ context.Context, emp string) (*core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byEmp[emp]
	if !ok {
		return nil, core.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmp {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrUserNotFound
}

func (m *memUsers) find(id string) *core.User {
	for _, u := range m.byEmp {
		if u.UserID == id {
			return u
		}
	}
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id, pw string) (*core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.find(id)
	if u == nil {
		return nil, core.ErrUserNotFound
	}
	hash, err := core.HashPassword(pw)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash
	cp := *u
	return &cp, nil
}

func (m *memUsers) Deactivate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.find(id)
	if u == nil {
		return core.ErrUserNotFound
	}
	u.IsDeleted = true
	return nil
}

func seeded(t *testing.T) ApplicationService {
	t.Helper()
	svc := NewAppService(newMemUsers())
	_, err := svc.Signup(context.Background(), SignupRequest{
		EmpNumber: "E1001", Password: "abc123!x", Name: "Kim", Email: "kim@example.com", Phone: "010",
	})
	require.NoError(t, err)
	return svc
}

func TestSignup_Validation(t *testing.T) {
	svc := NewAppService(newMemUsers())
	_, err := svc.Signup(context.Background(), SignupRequest{EmpNumber: "E1", Password: "short", Email: "nope"})

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Messages, "name: field required")
	assert.Contains(t, ve.Messages, "email: value is not a valid email address")
	assert.Contains(t, ve.Messages, "phone: field required")
	assert.Contains(t, ve.Messages, "password: "+core.ErrWeakSignupPassword.Error())
}

func TestSignup_Conflicts(t *testing.T) {
	svc := seeded(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupRequest{EmpNumber: "E2", Password: "abc123!x", Name: "Lee", Email: "kim@example.com", Phone: "1"})
	assert.Equal(t, KindConflict, KindOf(err))
	assert.ErrorIs(t, err, core.ErrEmailTaken)

	_, err = svc.Signup(ctx, SignupRequest{EmpNumber: "E1001", Password: "abc123!x", Name: "Lee", Email: "lee@example.com", Phone: "1"})
	assert.Equal(t, KindConflict, KindOf(err))
	assert.ErrorIs(t, err, core.ErrEmpNumberTaken)
}

func TestAuthenticateUser(t *testing.T) {
	svc := seeded(t)
	ctx := context.Background()

	u, err := svc.AuthenticateUser(ctx, LoginRequest{EmpNumber: "E1001", Password: "abc123!x"})
	require.NoError(t, err)
	assert.Equal(t, "Kim", u.Name)

	_, err = svc.AuthenticateUser(ctx, LoginRequest{EmpNumber: "E1001", Password: "wrong-pass"})
	assert.Equal(t, KindUnauthorized, KindOf(err))

	_, errUnknown := svc.AuthenticateUser(ctx, LoginRequest{EmpNumber: "nobody", Password: "abc123!x"})
	assert.Equal(t, KindUnauthorized, KindOf(errUnknown))
	var e1, e2 *Error
	require.ErrorAs(t, err, &e1)
	require.ErrorAs(t, errUnknown, &e2)
	assert.Equal(t, e1.Detail, e2.Detail, "unknown user and wrong password look the same")
}

func TestWithdraw_BlocksLogin(t *testing.T) {
	svc := seeded(t)
	ctx := context.Background()

	assert.Equal(t, KindUnauthorized, KindOf(svc.Withdraw(ctx, "E1001", "wrong")))
	require.NoError(t, svc.Withdraw(ctx, "E1001", "abc123!x"))

	_, err := svc.AuthenticateUser(ctx, LoginRequest{EmpNumber: "E1001", Password: "abc123!x"})
	assert.Equal(t, KindForbidden, KindOf(err))

	_, err = svc.GetProfile(ctx, "E1001")
	assert.Equal(t, KindUnauthorized, KindOf(err))
}

func TestChangePassword(t *testing.T) {
	svc := seeded(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ChangePasswordRequest
		kind ErrorKind
	}{
		{"wrong current", ChangePasswordRequest{"nope", "abcdef123!", "abcdef123!"}, KindUnauthorized},
		{"mismatch", ChangePasswordRequest{"abc123!x", "abcdef123!", "abcdef123@"}, KindBadRequest},
		{"same as current", ChangePasswordRequest{"abc123!x", "abc123!x", "abc123!x"}, KindBadRequest},
		{"weak", ChangePasswordRequest{"abc123!x", "abcdef1234", "abcdef1234"}, KindBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ChangePassword(ctx, "E1001", tt.req)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}

	_, err := svc.ChangePassword(ctx, "E1001", ChangePasswordRequest{"abc123!x", "abcdef123!", "abcdef123!"})
	require.NoError(t, err)
	assert.NoError(t, svc.VerifyPassword(ctx, "E1001", "abcdef123!"))
	assert.Equal(t, KindUnauthorized, KindOf(svc.VerifyPassword(ctx, "E1001", "abc123!x")))
	assert.Equal(t, KindBadRequest, KindOf(svc.VerifyPassword(ctx, "E1001", "")))
}
