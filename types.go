package session

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// AuthUser is the identity returned by the provider once a session exists.
type AuthUser struct {
	ID         string
	Email      string
	Attributes map[string]string
}

// Clone returns a copy that does not share the attribute map.
func (u AuthUser) Clone() AuthUser {
	out := u
	if u.Attributes != nil {
		out.Attributes = make(map[string]string, len(u.Attributes))
		for k, v := range u.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// Tokens holds the credentials issued by the identity provider.
// ExpiresAt is an estimate used only to schedule refreshes.
type Tokens struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Empty reports whether no token material is present.
func (t Tokens) Empty() bool {
	return t.AccessToken == "" && t.IDToken == "" && t.RefreshToken == ""
}

// ExpiresWithin reports whether the tokens expire before now+window.
// Tokens without an expiry estimate are never considered expiring.
func (t Tokens) ExpiresWithin(now time.Time, window time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(window).Before(t.ExpiresAt)
}

// SignUpRequest is the payload of IdentityClient.SignUp.
type SignUpRequest struct {
	Identifier string
	Password   string
	Email      string
	Attributes map[string]string
}

// SignUpResult reports whether the account is usable right away.
type SignUpResult struct {
	Confirmed bool
	UserID    string
}

// ConfirmResult reports the outcome of a confirmation code check.
type ConfirmResult struct {
	Confirmed bool
}

// IdentityClient performs the remote identity operations.
// Failures should carry an ErrorKind, see NewError and KindOf.
type IdentityClient interface {
	SignUp(ctx context.Context, req SignUpRequest) (SignUpResult, error)
	SignIn(ctx context.Context, identifier, password string) (AuthUser, Tokens, error)
	ConfirmSignUp(ctx context.Context, identifier, code string) (ConfirmResult, error)
	ResendConfirmationCode(ctx context.Context, identifier string) error
	SignOut(ctx context.Context, accessToken string) error
	GetCurrentUser(ctx context.Context, accessToken string) (AuthUser, error)
	// RefreshSession returns nil tokens when the provider issued nothing new.
	RefreshSession(ctx context.Context, refreshToken string) (*Tokens, error)
}

// TokenStore persists the session tokens between runs.
// Get returns nil, nil when nothing is stored.
type TokenStore interface {
	Get(ctx context.Context) (*Tokens, error)
	Set(ctx context.Context, tokens Tokens) error
	Clear(ctx context.Context) error
	ExpiresAt(ctx context.Context) (time.Time, error)
}

// RefreshErrorHandler is invoked when a background refresh fails but the
// session is kept.
type RefreshErrorHandler func(ctx context.Context, err error)

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
