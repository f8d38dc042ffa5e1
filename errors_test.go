package session_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	session "github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected session.ErrorKind
	}{
		{name: "nil", err: nil, expected: ""},
		{name: "account not confirmed", err: session.NewError(session.KindAccountNotConfirmed, "", nil), expected: session.KindAccountNotConfirmed},
		{name: "invalid code", err: session.NewError(session.KindInvalidConfirmationCode, "bad code", nil), expected: session.KindInvalidConfirmationCode},
		{name: "invalid credentials", err: session.ErrInvalidCredentials, expected: session.KindInvalidCredentials},
		{name: "session invalid", err: session.ErrSessionInvalid, expected: session.KindSessionInvalid},
		{name: "wrapped", err: fmt.Errorf("refresh: %w", session.NewError(session.KindSessionInvalid, "", nil)), expected: session.KindSessionInvalid},
		{name: "goerrors validation", err: goerrors.New("bad", goerrors.CategoryValidation), expected: session.KindValidation},
		{name: "deadline", err: context.DeadlineExceeded, expected: session.KindServiceUnavailable},
		{name: "network", err: &net.OpError{Op: "dial", Err: errors.New("refused")}, expected: session.KindServiceUnavailable},
		{name: "plain", err: errors.New("whatever"), expected: session.KindUnknown},
		{name: "unrelated goerror", err: goerrors.New("nope", goerrors.CategoryInternal), expected: session.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, session.KindOf(tt.err))
		})
	}
}

func TestNewErrorDoesNotMutateSentinel(t *testing.T) {
	cause := errors.New("root cause")
	err := session.NewError(session.KindInvalidCredentials, "custom message", cause)

	assert.Equal(t, "custom message", err.Message)
	assert.Equal(t, session.TextCodeInvalidCredentials, err.TextCode)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "invalid credentials", session.ErrInvalidCredentials.Message)
	assert.Nil(t, session.ErrInvalidCredentials.Source)
}

func TestNewErrorUnknownKindFallsBack(t *testing.T) {
	err := session.NewError(session.ErrorKind("made_up"), "", nil)
	assert.Equal(t, session.KindUnknown, session.KindOf(err))
}

func TestIsKindAndMessage(t *testing.T) {
	err := session.NewError(session.KindAccountNotConfirmed, "User is not confirmed.", nil)
	assert.True(t, session.IsKind(err, session.KindAccountNotConfirmed))
	assert.False(t, session.IsKind(nil, session.KindAccountNotConfirmed))
	assert.Equal(t, "User is not confirmed.", session.ErrorMessage(err))
	assert.Equal(t, "plain", session.ErrorMessage(errors.New("plain")))
	assert.Empty(t, session.ErrorMessage(nil))
}

func TestIsNoTokens(t *testing.T) {
	assert.True(t, session.IsNoTokens(session.ErrNoTokens))
	assert.True(t, session.IsNoTokens(fmt.Errorf("wrapped: %w", session.ErrNoTokens)))
	assert.False(t, session.IsNoTokens(errors.New("other")))
	assert.False(t, session.IsNoTokens(nil))
}

func TestErrorCode(t *testing.T) {
	assert.Empty(t, session.ErrorCode(nil))
	assert.Empty(t, session.ErrorCode(errors.New("plain")))
	assert.Equal(t, session.TextCodeSessionInvalid, session.ErrorCode(session.NewError(session.KindSessionInvalid, "", nil)))

	withCode := session.NewError(session.KindInvalidConfirmationCode, "", nil).
		WithMetadata(map[string]any{"code": "ExpiredCodeException"})
	assert.Equal(t, "ExpiredCodeException", session.ErrorCode(withCode))
	assert.Equal(t, "ExpiredCodeException", session.ErrorCode(fmt.Errorf("confirm: %w", withCode)))
}
