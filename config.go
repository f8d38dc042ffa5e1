package session

import (
	"time"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
)

// Config holds the timing knobs of the machine and its refresh scheduler.
type Config struct {
	// RefreshInterval is how often the scheduler checks token expiry.
	RefreshInterval time.Duration `env:"SESSION_REFRESH_INTERVAL" envDefault:"60s"`

	// RefreshBuffer is how long before the estimated expiry a refresh starts.
	RefreshBuffer time.Duration `env:"SESSION_REFRESH_BUFFER" envDefault:"5m"`

	// TokenTTLFallback is the assumed token lifetime when the access token
	// has no readable exp claim.
	TokenTTLFallback time.Duration `env:"SESSION_TOKEN_TTL_FALLBACK" envDefault:"50m"`

	// RetryInitial and RetryMax bound the spacing between scheduler attempts
	// after a transient refresh failure.
	RetryInitial time.Duration `env:"SESSION_RETRY_INITIAL" envDefault:"5s"`
	RetryMax     time.Duration `env:"SESSION_RETRY_MAX"     envDefault:"5m"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RefreshInterval:  60 * time.Second,
		RefreshBuffer:    5 * time.Minute,
		TokenTTLFallback: DefaultTokenTTL,
		RetryInitial:     5 * time.Second,
		RetryMax:         5 * time.Minute,
	}
}

// LoadConfigFromEnv reads SESSION_* variables on top of DefaultConfig.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return cfg, goerrors.Wrap(err, goerrors.CategoryBadInput, "parse session config from env")
	}
	return cfg.normalize(), nil
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = def.RefreshInterval
	}
	if c.RefreshBuffer < 0 {
		c.RefreshBuffer = def.RefreshBuffer
	}
	if c.TokenTTLFallback <= 0 {
		c.TokenTTLFallback = def.TokenTTLFallback
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = def.RetryInitial
	}
	if c.RetryMax < c.RetryInitial {
		c.RetryMax = c.RetryInitial
	}
	return c
}
