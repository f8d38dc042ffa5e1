package session_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	session "github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mintToken(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("irrelevant"))
	require.NoError(t, err)
	return token
}

func TestEstimateExpiryReadsExpClaim(t *testing.T) {
	issued := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	exp := issued.Add(time.Hour)
	token := mintToken(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)})

	got := session.EstimateExpiry(token, issued, time.Minute)
	assert.True(t, exp.Equal(got), "got %s", got)
}

func TestEstimateExpiryIgnoresPastExpiry(t *testing.T) {
	issued := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	exp := issued.Add(-time.Hour)
	token := mintToken(t, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)})

	got := session.EstimateExpiry(token, issued, time.Minute)
	assert.True(t, exp.Equal(got))
}

func TestEstimateExpiryFallback(t *testing.T) {
	issued := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, issued.Add(10*time.Minute), session.EstimateExpiry("opaque-token", issued, 10*time.Minute))
	assert.Equal(t, issued.Add(session.DefaultTokenTTL), session.EstimateExpiry("", issued, 0))

	noExp := mintToken(t, jwt.RegisteredClaims{Subject: "user"})
	assert.Equal(t, issued.Add(10*time.Minute), session.EstimateExpiry(noExp, issued, 10*time.Minute))
}

func TestTokensExpiresWithin(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, session.Tokens{ExpiresAt: now.Add(4 * time.Minute)}.ExpiresWithin(now, 5*time.Minute))
	assert.True(t, session.Tokens{ExpiresAt: now.Add(5 * time.Minute)}.ExpiresWithin(now, 5*time.Minute))
	assert.False(t, session.Tokens{ExpiresAt: now.Add(6 * time.Minute)}.ExpiresWithin(now, 5*time.Minute))
	assert.False(t, session.Tokens{}.ExpiresWithin(now, 5*time.Minute))
}
