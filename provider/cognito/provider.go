package cognito

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	goerrors "github.com/goliatone/go-errors"
	session "github.com/goliatone/go-session"
)

// API is the subset of the Cognito user pool client the provider calls.
type API interface {
	SignUp(ctx context.Context, in *cognitoidentityprovider.SignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.SignUpOutput, error)
	InitiateAuth(ctx context.Context, in *cognitoidentityprovider.InitiateAuthInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.InitiateAuthOutput, error)
	ConfirmSignUp(ctx context.Context, in *cognitoidentityprovider.ConfirmSignUpInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ConfirmSignUpOutput, error)
	ResendConfirmationCode(ctx context.Context, in *cognitoidentityprovider.ResendConfirmationCodeInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.ResendConfirmationCodeOutput, error)
	GlobalSignOut(ctx context.Context, in *cognitoidentityprovider.GlobalSignOutInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.GlobalSignOutOutput, error)
	GetUser(ctx context.Context, in *cognitoidentityprovider.GetUserInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.GetUserOutput, error)
}

// Option customizes the provider.
type Option func(*Provider)

// WithClock injects the clock used to turn ExpiresIn into an instant.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// Provider implements session.IdentityClient on a Cognito user pool client.
type Provider struct {
	api      API
	clientID string
	now      func() time.Time
}

var _ session.IdentityClient = (*Provider)(nil)

// New loads the default AWS configuration for cfg.Region and builds a provider.
func New(ctx context.Context, cfg Config, opts ...Option) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "load aws configuration")
	}

	return NewWithAPI(cognitoidentityprovider.NewFromConfig(awsCfg), cfg, opts...)
}

// NewWithAPI builds a provider around an existing client.
func NewWithAPI(api API, cfg Config, opts ...Option) (*Provider, error) {
	if api == nil {
		return nil, goerrors.New("cognito api client is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Provider{api: api, clientID: cfg.ClientID, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// SignUp implements session.IdentityClient.
func (p *Provider) SignUp(ctx context.Context, req session.SignUpRequest) (session.SignUpResult, error) {
	attrs := []types.AttributeType{}
	if req.Email != "" {
		attrs = append(attrs, attribute("email", req.Email))
	}
	for name, value := range req.Attributes {
		if name == "email" && req.Email != "" {
			continue
		}
		attrs = append(attrs, attribute(name, value))
	}

	out, err := p.api.SignUp(ctx, &cognitoidentityprovider.SignUpInput{
		ClientId:       aws.String(p.clientID),
		Username:       aws.String(req.Identifier),
		Password:       aws.String(req.Password),
		UserAttributes: attrs,
	})
	if err != nil {
		return session.SignUpResult{}, classifyError(session.OpSignUp, err)
	}
	if out == nil || aws.ToString(out.UserSub) == "" {
		return session.SignUpResult{}, session.NewError(session.KindUnknown, "Failed to create user.", nil)
	}

	return session.SignUpResult{
		Confirmed: out.UserConfirmed,
		UserID:    aws.ToString(out.UserSub),
	}, nil
}

// SignIn implements session.IdentityClient. The user profile is fetched with
// the new access token.
func (p *Provider) SignIn(ctx context.Context, identifier, password string) (session.AuthUser, session.Tokens, error) {
	out, err := p.api.InitiateAuth(ctx, &cognitoidentityprovider.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeUserPasswordAuth,
		ClientId: aws.String(p.clientID),
		AuthParameters: map[string]string{
			"USERNAME": identifier,
			"PASSWORD": password,
		},
	})
	if err != nil {
		return session.AuthUser{}, session.Tokens{}, classifyError(session.OpSignIn, err)
	}
	if out != nil && out.ChallengeName != "" {
		return session.AuthUser{}, session.Tokens{}, session.NewError(session.KindUnknown,
			"Additional sign in step required: "+string(out.ChallengeName), nil)
	}

	tokens, ok := p.tokens(out)
	if !ok || tokens.IDToken == "" || tokens.RefreshToken == "" {
		return session.AuthUser{}, session.Tokens{}, session.NewError(session.KindUnknown, "Invalid authentication result.", nil)
	}

	user, err := p.getUser(ctx, session.OpSignIn, tokens.AccessToken)
	if err != nil {
		return session.AuthUser{}, session.Tokens{}, err
	}
	return user, tokens, nil
}

// ConfirmSignUp implements session.IdentityClient.
func (p *Provider) ConfirmSignUp(ctx context.Context, identifier, code string) (session.ConfirmResult, error) {
	_, err := p.api.ConfirmSignUp(ctx, &cognitoidentityprovider.ConfirmSignUpInput{
		ClientId:         aws.String(p.clientID),
		Username:         aws.String(identifier),
		ConfirmationCode: aws.String(code),
	})
	if err != nil {
		return session.ConfirmResult{}, classifyError(session.OpConfirm, err)
	}
	return session.ConfirmResult{Confirmed: true}, nil
}

// ResendConfirmationCode implements session.IdentityClient.
func (p *Provider) ResendConfirmationCode(ctx context.Context, identifier string) error {
	_, err := p.api.ResendConfirmationCode(ctx, &cognitoidentityprovider.ResendConfirmationCodeInput{
		ClientId: aws.String(p.clientID),
		Username: aws.String(identifier),
	})
	if err != nil {
		return classifyError(session.OpResend, err)
	}
	return nil
}

// SignOut implements session.IdentityClient with a global sign out, which
// revokes every token issued to the user.
func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	_, err := p.api.GlobalSignOut(ctx, &cognitoidentityprovider.GlobalSignOutInput{
		AccessToken: aws.String(accessToken),
	})
	if err != nil {
		return classifyError(session.OpSignOut, err)
	}
	return nil
}

// GetCurrentUser implements session.IdentityClient.
func (p *Provider) GetCurrentUser(ctx context.Context, accessToken string) (session.AuthUser, error) {
	return p.getUser(ctx, session.OpRestore, accessToken)
}

// RefreshSession implements session.IdentityClient. Cognito does not rotate
// refresh tokens, so the result usually carries an empty RefreshToken.
func (p *Provider) RefreshSession(ctx context.Context, refreshToken string) (*session.Tokens, error) {
	out, err := p.api.InitiateAuth(ctx, &cognitoidentityprovider.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeRefreshTokenAuth,
		ClientId: aws.String(p.clientID),
		AuthParameters: map[string]string{
			"REFRESH_TOKEN": refreshToken,
		},
	})
	if err != nil {
		return nil, classifyError(session.OpRefresh, err)
	}

	tokens, ok := p.tokens(out)
	if !ok {
		return nil, nil
	}
	return &tokens, nil
}

func (p *Provider) getUser(ctx context.Context, op, accessToken string) (session.AuthUser, error) {
	out, err := p.api.GetUser(ctx, &cognitoidentityprovider.GetUserInput{
		AccessToken: aws.String(accessToken),
	})
	if err != nil {
		return session.AuthUser{}, classifyError(op, err)
	}
	if out == nil || aws.ToString(out.Username) == "" {
		return session.AuthUser{}, session.NewError(session.KindUnknown, "Invalid user data.", nil)
	}

	attrs := make(map[string]string, len(out.UserAttributes))
	for _, attr := range out.UserAttributes {
		name, value := aws.ToString(attr.Name), aws.ToString(attr.Value)
		if name != "" && value != "" {
			attrs[name] = value
		}
	}

	id := attrs["sub"]
	if id == "" {
		id = aws.ToString(out.Username)
	}
	attrs["username"] = aws.ToString(out.Username)

	return session.AuthUser{
		ID:         id,
		Email:      attrs["email"],
		Attributes: attrs,
	}, nil
}

func (p *Provider) tokens(out *cognitoidentityprovider.InitiateAuthOutput) (session.Tokens, bool) {
	if out == nil || out.AuthenticationResult == nil {
		return session.Tokens{}, false
	}
	res := out.AuthenticationResult
	tokens := session.Tokens{
		AccessToken:  aws.ToString(res.AccessToken),
		IDToken:      aws.ToString(res.IdToken),
		RefreshToken: aws.ToString(res.RefreshToken),
	}
	if tokens.AccessToken == "" {
		return session.Tokens{}, false
	}
	if res.ExpiresIn > 0 {
		tokens.ExpiresAt = p.now().Add(time.Duration(res.ExpiresIn) * time.Second)
	}
	return tokens, true
}

func attribute(name, value string) types.AttributeType {
	return types.AttributeType{Name: aws.String(name), Value: aws.String(value)}
}
