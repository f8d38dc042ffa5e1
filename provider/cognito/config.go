package cognito

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Config holds the user pool client settings.
type Config struct {
	// Region is the AWS region of the user pool (e.g., "us-east-1").
	Region string `env:"SESSION_COGNITO_REGION"`

	// ClientID is the app client id. The client must allow USER_PASSWORD_AUTH
	// and must not have a secret.
	ClientID string `env:"SESSION_COGNITO_CLIENT_ID"`
}

// DefaultConfig returns a Config for the given client.
func DefaultConfig(region, clientID string) Config {
	return Config{
		Region:   region,
		ClientID: clientID,
	}
}

func (c Config) validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return goerrors.New("cognito client id is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithTextCode("COGNITO_CLIENT_ID_REQUIRED")
	}
	return nil
}
