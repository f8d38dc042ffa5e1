package session_test

import (
	"context"

	session "github.com/goliatone/go-session"
	"github.com/stretchr/testify/mock"
)

// MockIdentityClient implements session.IdentityClient
type MockIdentityClient struct {
	mock.Mock
}

func (m *MockIdentityClient) SignUp(ctx context.Context, req session.SignUpRequest) (session.SignUpResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(session.SignUpResult), args.Error(1)
}

func (m *MockIdentityClient) SignIn(ctx context.Context, identifier, password string) (session.AuthUser, session.Tokens, error) {
	args := m.Called(ctx, identifier, password)
	return args.Get(0).(session.AuthUser), args.Get(1).(session.Tokens), args.Error(2)
}

func (m *MockIdentityClient) ConfirmSignUp(ctx context.Context, identifier, code string) (session.ConfirmResult, error) {
	args := m.Called(ctx, identifier, code)
	return args.Get(0).(session.ConfirmResult), args.Error(1)
}

func (m *MockIdentityClient) ResendConfirmationCode(ctx context.Context, identifier string) error {
	args := m.Called(ctx, identifier)
	return args.Error(0)
}

func (m *MockIdentityClient) SignOut(ctx context.Context, accessToken string) error {
	args := m.Called(ctx, accessToken)
	return args.Error(0)
}

func (m *MockIdentityClient) GetCurrentUser(ctx context.Context, accessToken string) (session.AuthUser, error) {
	args := m.Called(ctx, accessToken)
	return args.Get(0).(session.AuthUser), args.Error(1)
}

func (m *MockIdentityClient) RefreshSession(ctx context.Context, refreshToken string) (*session.Tokens, error) {
	args := m.Called(ctx, refreshToken)
	tokens, _ := args.Get(0).(*session.Tokens)
	return tokens, args.Error(1)
}

type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Warn(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}
