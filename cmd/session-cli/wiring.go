package main

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	session "github.com/goliatone/go-session"
	"github.com/goliatone/go-session/provider/cognito"
	"github.com/goliatone/go-session/provider/memory"
	"github.com/goliatone/go-session/repository"
	"github.com/goliatone/go-session/tokenstore"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type closer func() error

func noopCloser() error { return nil }

// openStore builds the token store selected by cfg. The returned closer
// releases any file handle or connection the store holds.
func openStore(ctx context.Context, cfg cliConfig, logger session.Logger) (session.TokenStore, closer, error) {
	switch strings.ToLower(cfg.Store) {
	case storeMemory:
		return tokenstore.NewMemory(tokenstore.WithLogger(logger)), noopCloser, nil

	case storeFile:
		store, err := tokenstore.NewFile(cfg.storePath(), tokenstore.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return store, noopCloser, nil

	case storeBolt:
		path := cfg.storePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "create bolt store directory")
		}
		store, closeFn, err := tokenstore.NewBolt(path, tokenstore.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return store, closeFn, nil

	case storeRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, goerrors.Wrap(err, goerrors.CategoryOperation, "connect to redis")
		}
		store := tokenstore.NewRedis(client, tokenstore.WithRedisKey(cfg.RedisKey))
		return store, client.Close, nil

	case storeSQLite:
		return openSQLiteStore(ctx, cfg.storePath())
	}

	return nil, nil, goerrors.New("unknown token store "+cfg.Store, goerrors.CategoryBadInput).
		WithCode(goerrors.CodeBadRequest)
}

func openSQLiteStore(ctx context.Context, path string) (session.TokenStore, closer, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "create sqlite store directory")
		}
		dsn = "file:" + path + "?cache=shared"
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "open sqlite token store")
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	repo := repository.NewTokenRepository(db)
	if err := repo.CreateSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return repo, db.Close, nil
}

// openProvider builds the identity client selected by cfg.
func openProvider(ctx context.Context, cfg cliConfig) (session.IdentityClient, error) {
	switch strings.ToLower(cfg.Provider) {
	case providerCognito:
		return cognito.New(ctx, cfg.Cognito)
	case providerMemory:
		return memory.New(memory.DefaultConfig())
	}
	return nil, goerrors.New("unknown identity provider "+cfg.Provider, goerrors.CategoryBadInput).
		WithCode(goerrors.CodeBadRequest)
}
