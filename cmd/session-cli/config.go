package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-session/provider/cognito"
	"github.com/spf13/cobra"
)

const (
	storeMemory = "memory"
	storeFile   = "file"
	storeBolt   = "bolt"
	storeRedis  = "redis"
	storeSQLite = "sqlite"

	providerCognito = "cognito"
	providerMemory  = "memory"
)

type cliConfig struct {
	Store     string `env:"SESSION_STORE"      envDefault:"file"`
	StorePath string `env:"SESSION_STORE_PATH"`
	RedisAddr string `env:"SESSION_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisKey  string `env:"SESSION_REDIS_KEY"  envDefault:"session:tokens"`
	Provider  string `env:"SESSION_PROVIDER"   envDefault:"cognito"`
	LogLevel  string `env:"SESSION_LOG_LEVEL"  envDefault:"warn"`

	Cognito cognito.Config
}

func loadConfig() (cliConfig, error) {
	var cfg cliConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, goerrors.Wrap(err, goerrors.CategoryBadInput, "parse cli config from env")
	}
	return cfg, nil
}

// bindFlags registers the global flags. Flags only override the environment
// when they are set explicitly.
func (c *cliConfig) bindFlags(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()
	fs.StringVar(&c.Store, "store", c.Store, "token store: memory, file, bolt, redis or sqlite")
	fs.StringVar(&c.StorePath, "store-path", c.StorePath, "path of the file, bolt or sqlite token store")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "redis address for the redis token store")
	fs.StringVar(&c.Provider, "provider", c.Provider, "identity provider: cognito or memory")
	fs.StringVar(&c.Cognito.Region, "region", c.Cognito.Region, "cognito user pool region")
	fs.StringVar(&c.Cognito.ClientID, "client-id", c.Cognito.ClientID, "cognito app client id")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn or error")
}

func (c cliConfig) validate() error {
	switch strings.ToLower(c.Store) {
	case storeMemory, storeFile, storeBolt, storeRedis, storeSQLite:
	default:
		return goerrors.New("unknown token store "+c.Store, goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	switch strings.ToLower(c.Provider) {
	case providerCognito, providerMemory:
	default:
		return goerrors.New("unknown identity provider "+c.Provider, goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}
	return nil
}

// storePath returns the configured path or a default under the user config dir.
func (c cliConfig) storePath() string {
	if c.StorePath != "" {
		return c.StorePath
	}

	name := "tokens.json"
	switch strings.ToLower(c.Store) {
	case storeBolt:
		name = "tokens.db"
	case storeSQLite:
		name = "session.sqlite"
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return name
	}
	return filepath.Join(dir, "go-session", name)
}
