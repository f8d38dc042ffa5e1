package memory

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	session "github.com/goliatone/go-session"
	"github.com/google/uuid"
)

const (
	tokenUseAccess = "access"
	tokenUseID     = "id"
)

// Config configures the in-memory provider.
type Config struct {
	// SigningKey signs issued tokens. A random key is generated when empty.
	SigningKey []byte

	// Issuer is written to the iss claim.
	Issuer string

	// TokenTTL is the lifetime of access and id tokens.
	// Default: 1 hour.
	TokenTTL time.Duration

	// AutoConfirm marks new accounts as confirmed on sign-up.
	AutoConfirm bool

	// Codes generates confirmation codes. Default: random six digits.
	Codes func() string

	// Clock overrides time.Now.
	Clock func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Issuer:   "go-session/memory",
		TokenTTL: time.Hour,
	}
}

type account struct {
	id         string
	email      string
	password   string
	confirmed  bool
	code       string
	attributes map[string]string
	generation int
}

type tokenClaims struct {
	Email      string `json:"email,omitempty"`
	TokenUse   string `json:"token_use"`
	Generation int    `json:"gen"`
	jwt.RegisteredClaims
}

// Provider is an in-process session.IdentityClient. Accounts, codes and
// tokens live in memory; failures can be injected per operation.
type Provider struct {
	cfg Config

	mu       sync.Mutex
	accounts map[string]*account
	refresh  map[string]string
	failures map[string][]error
	calls    map[string]int
}

var _ session.IdentityClient = (*Provider)(nil)

// New creates a provider.
func New(cfg Config) (*Provider, error) {
	def := DefaultConfig()
	if cfg.Issuer == "" {
		cfg.Issuer = def.Issuer
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = def.TokenTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Codes == nil {
		cfg.Codes = randomCode
	}
	if len(cfg.SigningKey) == 0 {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("memory provider: generate signing key: %w", err)
		}
		cfg.SigningKey = key
	}

	return &Provider{
		cfg:      cfg,
		accounts: map[string]*account{},
		refresh:  map[string]string{},
		failures: map[string][]error{},
		calls:    map[string]int{},
	}, nil
}

// FailNext makes the next call to op return err. Calls queue up.
func (p *Provider) FailNext(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[op] = append(p.failures[op], err)
}

// Calls returns how many times op was invoked.
func (p *Provider) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

// PendingCode returns the confirmation code last issued to identifier.
func (p *Provider) PendingCode(identifier string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	acc, ok := p.accounts[normalize(identifier)]
	if !ok || acc.confirmed {
		return "", false
	}
	return acc.code, true
}

// RevokeRefreshTokens drops every refresh token, as if the provider expired
// the session server side.
func (p *Provider) RevokeRefreshTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refresh = map[string]string{}
}

func (p *Provider) begin(op string) error {
	p.calls[op]++
	queue := p.failures[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	p.failures[op] = queue[1:]
	return err
}

// SignUp implements session.IdentityClient.
func (p *Provider) SignUp(ctx context.Context, req session.SignUpRequest) (session.SignUpResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(session.OpSignUp); err != nil {
		return session.SignUpResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return session.SignUpResult{}, err
	}

	key := normalize(req.Identifier)
	if key == "" || req.Password == "" {
		return session.SignUpResult{}, session.NewError(session.KindUnknown, "Identifier and password are required.", nil)
	}
	if _, exists := p.accounts[key]; exists {
		return session.SignUpResult{}, session.NewError(session.KindUnknown, "An account with the given email already exists.", nil)
	}

	attrs := map[string]string{}
	for k, v := range req.Attributes {
		attrs[k] = v
	}
	email := req.Email
	if email == "" {
		email = req.Identifier
	}
	attrs["email"] = email

	acc := &account{
		id:         uuid.NewString(),
		email:      email,
		password:   req.Password,
		confirmed:  p.cfg.AutoConfirm,
		attributes: attrs,
	}
	if !acc.confirmed {
		acc.code = p.cfg.Codes()
	}
	p.accounts[key] = acc

	return session.SignUpResult{Confirmed: acc.confirmed, UserID: acc.id}, nil
}

// SignIn implements session.IdentityClient.
func (p *Provider) SignIn(ctx context.Context, identifier, password string) (session.AuthUser, session.Tokens, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(session.OpSignIn); err != nil {
		return session.AuthUser{}, session.Tokens{}, err
	}
	if err := ctx.Err(); err != nil {
		return session.AuthUser{}, session.Tokens{}, err
	}

	acc, ok := p.accounts[normalize(identifier)]
	if !ok || acc.password != password {
		return session.AuthUser{}, session.Tokens{}, session.NewError(session.KindInvalidCredentials, "Incorrect username or password.", nil)
	}
	if !acc.confirmed {
		return session.AuthUser{}, session.Tokens{}, session.NewError(session.KindAccountNotConfirmed, "User is not confirmed.", nil)
	}

	tokens, err := p.issue(acc, true)
	if err != nil {
		return session.AuthUser{}, session.Tokens{}, err
	}
	return acc.user(), tokens, nil
}

// ConfirmSignUp implements session.IdentityClient.
func (p *Provider) ConfirmSignUp(ctx context.Context, identifier, code string) (session.ConfirmResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(session.OpConfirm); err != nil {
		return session.ConfirmResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return session.ConfirmResult{}, err
	}

	acc, ok := p.accounts[normalize(identifier)]
	if !ok {
		return session.ConfirmResult{}, session.NewError(session.KindUnknown, "Username/client id combination not found.", nil)
	}
	if acc.confirmed {
		return session.ConfirmResult{Confirmed: true}, nil
	}
	if acc.code == "" || acc.code != strings.TrimSpace(code) {
		return session.ConfirmResult{}, session.NewError(session.KindInvalidConfirmationCode, "Invalid verification code provided, please try again.", nil)
	}

	acc.confirmed = true
	acc.code = ""
	return session.ConfirmResult{Confirmed: true}, nil
}

// ResendConfirmationCode implements session.IdentityClient.
func (p *Provider) ResendConfirmationCode(ctx context.Context, identifier string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(session.OpResend); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	acc, ok := p.accounts[normalize(identifier)]
	if !ok {
		return session.NewError(session.KindUnknown, "Username/client id combination not found.", nil)
	}
	if acc.confirmed {
		return session.NewError(session.KindUnknown, "User is already confirmed.", nil)
	}
	acc.code = p.cfg.Codes()
	return nil
}

// SignOut implements session.IdentityClient. Every token issued to the user
// stops working.
func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(session.OpSignOut); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	acc, err := p.verify(accessToken)
	if err != nil {
		return err
	}
	acc.generation++
	for token, owner := range p.refresh {
		if owner == normalize(acc.email) {
			delete(p.refresh, token)
		}
	}
	return nil
}

// GetCurrentUser implements session.IdentityClient.
func (p *Provider) GetCurrentUser(ctx context.Context, accessToken string) (session.AuthUser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(session.OpRestore); err != nil {
		return session.AuthUser{}, err
	}
	if err := ctx.Err(); err != nil {
		return session.AuthUser{}, err
	}

	acc, err := p.verify(accessToken)
	if err != nil {
		return session.AuthUser{}, err
	}
	return acc.user(), nil
}

// RefreshSession implements session.IdentityClient. Like most user pool
// providers it does not rotate the refresh token.
func (p *Provider) RefreshSession(ctx context.Context, refreshToken string) (*session.Tokens, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(session.OpRefresh); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	owner, ok := p.refresh[refreshToken]
	if !ok {
		return nil, session.NewError(session.KindSessionInvalid, "Invalid Refresh Token", nil)
	}
	acc, ok := p.accounts[owner]
	if !ok {
		return nil, session.NewError(session.KindSessionInvalid, "Invalid Refresh Token", nil)
	}

	tokens, err := p.issue(acc, false)
	if err != nil {
		return nil, err
	}
	return &tokens, nil
}

func (p *Provider) issue(acc *account, withRefresh bool) (session.Tokens, error) {
	now := p.cfg.Clock()
	exp := now.Add(p.cfg.TokenTTL)

	access, err := p.sign(acc, tokenUseAccess, now, exp)
	if err != nil {
		return session.Tokens{}, err
	}
	id, err := p.sign(acc, tokenUseID, now, exp)
	if err != nil {
		return session.Tokens{}, err
	}

	tokens := session.Tokens{AccessToken: access, IDToken: id, ExpiresAt: exp}
	if withRefresh {
		tokens.RefreshToken = uuid.NewString()
		p.refresh[tokens.RefreshToken] = normalize(acc.email)
	}
	return tokens, nil
}

func (p *Provider) sign(acc *account, use string, now, exp time.Time) (string, error) {
	claims := tokenClaims{
		Email:      acc.email,
		TokenUse:   use,
		Generation: acc.generation,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.id,
			Issuer:    p.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.cfg.SigningKey)
	if err != nil {
		return "", fmt.Errorf("memory provider: sign %s token: %w", use, err)
	}
	return signed, nil
}

func (p *Provider) verify(accessToken string) (*account, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(accessToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.cfg.SigningKey, nil
	}, jwt.WithTimeFunc(p.cfg.Clock), jwt.WithIssuer(p.cfg.Issuer))
	if err != nil {
		return nil, session.NewError(session.KindSessionInvalid, "Access Token has expired or is invalid", err)
	}
	if claims.TokenUse != tokenUseAccess {
		return nil, session.NewError(session.KindSessionInvalid, "Token is not an access token", nil)
	}

	acc, ok := p.accounts[normalize(claims.Email)]
	if !ok || acc.id != claims.Subject || acc.generation != claims.Generation {
		return nil, session.NewError(session.KindSessionInvalid, "Access Token has been revoked", nil)
	}
	return acc, nil
}

func (a *account) user() session.AuthUser {
	attrs := make(map[string]string, len(a.attributes)+1)
	for k, v := range a.attributes {
		attrs[k] = v
	}
	attrs["sub"] = a.id
	return session.AuthUser{ID: a.id, Email: a.email, Attributes: attrs}
}

func normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func randomCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "000000"
	}
	return fmt.Sprintf("%06d", n.Int64())
}
