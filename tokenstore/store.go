package tokenstore

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	session "github.com/goliatone/go-session"
)

// Backend persists the record entries as one unit.
type Backend interface {
	// Load returns the stored entries, or an empty map when nothing is stored.
	Load(ctx context.Context) (map[string]string, error)
	// Save replaces the stored entries.
	Save(ctx context.Context, entries map[string]string) error
	// Delete removes every entry.
	Delete(ctx context.Context) error
}

// Store implements session.TokenStore over a Backend.
type Store struct {
	backend Backend
	logger  session.Logger
}

var _ session.TokenStore = (*Store)(nil)

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the logger used to report discarded records.
func WithLogger(logger session.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New wraps backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend, logger: nopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Get returns the stored tokens. A partial record is removed and reported as
// no tokens.
func (s *Store) Get(ctx context.Context) (*session.Tokens, error) {
	entries, err := s.backend.Load(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "load session tokens")
	}

	tokens, err := Decode(entries)
	if err != nil {
		s.logger.Warn("discarding stored session tokens: %v", err)
		if derr := s.backend.Delete(ctx); derr != nil {
			return nil, goerrors.Wrap(derr, goerrors.CategoryInternal, "delete incomplete session tokens")
		}
		return nil, nil
	}
	return tokens, nil
}

// Set replaces the stored tokens.
func (s *Store) Set(ctx context.Context, tokens session.Tokens) error {
	if tokens.AccessToken == "" {
		return goerrors.New("access token is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}
	if err := s.backend.Save(ctx, Encode(tokens)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "save session tokens")
	}
	return nil
}

// Clear removes the stored tokens.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "clear session tokens")
	}
	return nil
}

// ExpiresAt returns the stored expiry estimate, or session.ErrNoTokens. It
// never writes: a partial record reads as absent and is left for Get.
func (s *Store) ExpiresAt(ctx context.Context) (time.Time, error) {
	entries, err := s.backend.Load(ctx)
	if err != nil {
		return time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "load session tokens")
	}
	tokens, err := Decode(entries)
	if err != nil || tokens == nil {
		return time.Time{}, session.ErrNoTokens
	}
	return tokens.ExpiresAt, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
