package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	session "github.com/goliatone/go-session"
	"github.com/uptrace/bun"
)

// DefaultSlot is the row id used when no slot is configured.
const DefaultSlot = "default"

// SessionTokenModel is the Bun model for the persisted session tokens.
type SessionTokenModel struct {
	bun.BaseModel `bun:"table:session_tokens"`

	ID             string     `bun:"id,pk"`
	AccessToken    string     `bun:"access_token,notnull"`
	IDToken        string     `bun:"id_token"`
	RefreshToken   string     `bun:"refresh_token"`
	TokenExpiresAt *time.Time `bun:"token_expires_at"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
}

// TokenRepository implements session.TokenStore on a single table row.
type TokenRepository struct {
	db   bun.IDB
	slot string
	now  func() time.Time
}

var _ session.TokenStore = (*TokenRepository)(nil)

// TokenRepositoryOption customizes the repository.
type TokenRepositoryOption func(*TokenRepository)

// WithSlot stores the tokens under a different row id.
func WithSlot(slot string) TokenRepositoryOption {
	return func(r *TokenRepository) {
		if slot != "" {
			r.slot = slot
		}
	}
}

// WithClock injects the clock used for updated_at.
func WithClock(now func() time.Time) TokenRepositoryOption {
	return func(r *TokenRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// NewTokenRepository creates a new repository.
func NewTokenRepository(db bun.IDB, opts ...TokenRepositoryOption) *TokenRepository {
	r := &TokenRepository{db: db, slot: DefaultSlot, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// CreateSchema creates the session_tokens table if it does not exist.
func (r *TokenRepository) CreateSchema(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*SessionTokenModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "create session_tokens table")
	}
	return nil
}

// Get implements session.TokenStore.
func (r *TokenRepository) Get(ctx context.Context) (*session.Tokens, error) {
	var model SessionTokenModel
	err := r.db.NewSelect().
		Model(&model).
		Where("id = ?", r.slot).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "select session tokens")
	}
	return toTokens(&model), nil
}

// Set implements session.TokenStore.
func (r *TokenRepository) Set(ctx context.Context, tokens session.Tokens) error {
	if tokens.AccessToken == "" {
		return goerrors.New("access token is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	model := fromTokens(r.slot, tokens)
	model.UpdatedAt = r.now()

	_, err := r.db.NewInsert().
		Model(model).
		On("CONFLICT (id) DO UPDATE").
		Set("access_token = EXCLUDED.access_token").
		Set("id_token = EXCLUDED.id_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("token_expires_at = EXCLUDED.token_expires_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "upsert session tokens")
	}
	return nil
}

// Clear implements session.TokenStore.
func (r *TokenRepository) Clear(ctx context.Context) error {
	_, err := r.db.NewDelete().
		Model((*SessionTokenModel)(nil)).
		Where("id = ?", r.slot).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "delete session tokens")
	}
	return nil
}

// ExpiresAt implements session.TokenStore.
func (r *TokenRepository) ExpiresAt(ctx context.Context) (time.Time, error) {
	tokens, err := r.Get(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if tokens == nil {
		return time.Time{}, session.ErrNoTokens
	}
	return tokens.ExpiresAt, nil
}

func toTokens(m *SessionTokenModel) *session.Tokens {
	t := &session.Tokens{
		AccessToken:  m.AccessToken,
		IDToken:      m.IDToken,
		RefreshToken: m.RefreshToken,
	}
	if m.TokenExpiresAt != nil {
		t.ExpiresAt = *m.TokenExpiresAt
	}
	return t
}

func fromTokens(slot string, t session.Tokens) *SessionTokenModel {
	model := &SessionTokenModel{
		ID:           slot,
		AccessToken:  t.AccessToken,
		IDToken:      t.IDToken,
		RefreshToken: t.RefreshToken,
	}
	if !t.ExpiresAt.IsZero() {
		exp := t.ExpiresAt.UTC()
		model.TokenExpiresAt = &exp
	}
	return model
}
