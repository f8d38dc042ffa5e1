package tokenstore

import (
	"strconv"
	"time"

	goerrors "github.com/goliatone/go-errors"
	session "github.com/goliatone/go-session"
)

// Keys of the persisted record. The four entries are written and removed
// together.
const (
	KeyAccessToken  = "auth_access_token"
	KeyIDToken      = "auth_id_token"
	KeyRefreshToken = "auth_refresh_token"
	KeyExpiration   = "auth_expiration"
)

// Keys lists the record keys in a stable order.
var Keys = []string{KeyAccessToken, KeyIDToken, KeyRefreshToken, KeyExpiration}

const TextCodeIncompleteRecord = "SESSION_TOKEN_RECORD_INCOMPLETE"

// ErrIncompleteRecord is returned by Decode when only part of the record is
// present or the expiry is not a number.
var ErrIncompleteRecord = goerrors.New("stored token record is incomplete", goerrors.CategoryInternal).
	WithTextCode(TextCodeIncompleteRecord).
	WithCode(goerrors.CodeConflict)

// Encode flattens tokens into the four record entries. The expiry is stored
// as unix milliseconds.
func Encode(t session.Tokens) map[string]string {
	var exp int64
	if !t.ExpiresAt.IsZero() {
		exp = t.ExpiresAt.UnixMilli()
	}
	return map[string]string{
		KeyAccessToken:  t.AccessToken,
		KeyIDToken:      t.IDToken,
		KeyRefreshToken: t.RefreshToken,
		KeyExpiration:   strconv.FormatInt(exp, 10),
	}
}

// Decode rebuilds tokens from record entries. An empty record decodes to nil
// without error.
func Decode(entries map[string]string) (*session.Tokens, error) {
	present := 0
	for _, k := range Keys {
		if _, ok := entries[k]; ok {
			present++
		}
	}
	if present == 0 {
		return nil, nil
	}
	if present != len(Keys) || entries[KeyAccessToken] == "" {
		return nil, ErrIncompleteRecord.Clone().WithMetadata(map[string]any{
			"present": present,
		})
	}

	ms, err := strconv.ParseInt(entries[KeyExpiration], 10, 64)
	if err != nil {
		clone := ErrIncompleteRecord.Clone()
		clone.Source = err
		return nil, clone
	}

	t := &session.Tokens{
		AccessToken:  entries[KeyAccessToken],
		IDToken:      entries[KeyIDToken],
		RefreshToken: entries[KeyRefreshToken],
	}
	if ms > 0 {
		t.ExpiresAt = time.UnixMilli(ms)
	}
	return t, nil
}
