package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is assumed when an access token carries no readable expiry.
const DefaultTokenTTL = 50 * time.Minute

// EstimateExpiry returns the expiry instant of accessToken. The token is
// decoded without signature verification, the provider owns validation and
// the value is only used to schedule refreshes. When no exp claim can be read
// the estimate is issuedAt+fallback.
func EstimateExpiry(accessToken string, issuedAt time.Time, fallback time.Duration) time.Time {
	if fallback <= 0 {
		fallback = DefaultTokenTTL
	}
	if accessToken == "" {
		return issuedAt.Add(fallback)
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return issuedAt.Add(fallback)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return issuedAt.Add(fallback)
	}
	return exp.Time
}

// withExpiry fills in a missing expiry estimate.
func withExpiry(t Tokens, now time.Time, fallback time.Duration) Tokens {
	if t.ExpiresAt.IsZero() {
		t.ExpiresAt = EstimateExpiry(t.AccessToken, now, fallback)
	}
	return t
}
