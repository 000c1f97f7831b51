package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/tech-arch1tect/rentid/services/auth"
	"github.com/tech-arch1tect/rentid/services/jwt"
	"github.com/tech-arch1tect/rentid/services/maintenance"
	"github.com/tech-arch1tect/rentid/services/users"
	"github.com/tech-arch1tect/rentid/services/verification"
)

type mockAuthService struct {
	mock.Mock
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*auth.RegisterResult, error) {
	args := m.Called(in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.RegisterResult), args.Error(1)
}

func (m *mockAuthService) VerifyEmail(ctx context.Context, code, token string) (*auth.VerifyResult, error) {
	args := m.Called(code, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.VerifyResult), args.Error(1)
}

func (m *mockAuthService) CheckToken(ctx context.Context, token string) (bool, error) {
	args := m.Called(token)
	return args.Bool(0), args.Error(1)
}

func (m *mockAuthService) Resend(ctx context.Context, email string, purpose verification.Purpose) (*auth.IssueResult, error) {
	args := m.Called(email, purpose)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.IssueResult), args.Error(1)
}

func (m *mockAuthService) Login(ctx context.Context, in auth.LoginInput) (*auth.LoginResult, error) {
	args := m.Called(in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.LoginResult), args.Error(1)
}

func (m *mockAuthService) ForgotPassword(ctx context.Context, email string) error {
	return m.Called(email).Error(0)
}

func (m *mockAuthService) ResetPassword(ctx context.Context, in auth.ResetPasswordInput) error {
	return m.Called(in).Error(0)
}

func (m *mockAuthService) ChangePassword(ctx context.Context, userID uint, in auth.ChangePasswordInput) error {
	return m.Called(userID, in).Error(0)
}

func (m *mockAuthService) Me(ctx context.Context, userID uint) (*users.User, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*users.User), args.Error(1)
}

func (m *mockAuthService) Logout(ctx context.Context, token string) error {
	return m.Called(token).Error(0)
}

func (m *mockAuthService) Refresh(ctx context.Context, token string) (*jwt.SessionToken, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jwt.SessionToken), args.Error(1)
}

type mockMaintenance struct {
	mock.Mock
}

func (m *mockMaintenance) Cleanup(ctx context.Context) (maintenance.CleanupReport, error) {
	args := m.Called()
	return args.Get(0).(maintenance.CleanupReport), args.Error(1)
}

func (m *mockMaintenance) PurgePending(ctx context.Context) (maintenance.PurgeReport, error) {
	args := m.Called()
	return args.Get(0).(maintenance.PurgeReport), args.Error(1)
}
