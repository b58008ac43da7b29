package main

import (
	"context"
	"io"

	"github.com/jrsteele09/lms-oauth-gateway/internal/config"
	"github.com/jrsteele09/lms-oauth-gateway/storage"
	"github.com/jrsteele09/lms-oauth-gateway/storage/bolt"
	"github.com/jrsteele09/lms-oauth-gateway/storage/memory"
	"github.com/jrsteele09/lms-oauth-gateway/storage/redis"
	"github.com/jrsteele09/lms-oauth-gateway/storage/sqlite"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// openedStore is the primary backend plus the optional redis overlay.
type openedStore struct {
	repos   storage.Repos
	closers []io.Closer
}

func (s *openedStore) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// openStore opens the backend named by STORE_DRIVER. With REDIS_ADDR set, exchange tokens and the
// revocation list move to redis.
func openStore(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (*openedStore, error) {
	var backend storage.Backend
	var err error
	switch cfg.GetStoreDriver() {
	case storage.DriverMemory:
		logger.Warn().Msg("memory store selected, state is lost on restart")
		backend = memory.New()
	case storage.DriverSQLite:
		backend, err = sqlite.Open(ctx, cfg.GetSQLiteDSN())
	case storage.DriverBolt:
		backend, err = bolt.Open(cfg.GetBoltPath())
	default:
		return nil, errors.Errorf("unknown store driver %q", cfg.GetStoreDriver())
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open %s store", cfg.GetStoreDriver())
	}

	opened := &openedStore{repos: backend.Repos(), closers: []io.Closer{backend}}
	if cfg.GetRedisAddr() == "" {
		return opened, nil
	}

	rs, err := redis.Open(ctx, redis.Config{
		Addr:      cfg.GetRedisAddr(),
		Password:  cfg.GetRedisPassword(),
		DB:        cfg.GetRedisDB(),
		KeyPrefix: cfg.GetRedisKeyPrefix(),
	})
	if err != nil {
		_ = opened.Close()
		return nil, errors.Wrap(err, "open redis")
	}
	opened.repos = rs.Overlay(opened.repos)
	opened.closers = append(opened.closers, rs)
	logger.Info().Str("addr", cfg.GetRedisAddr()).Msg("exchange tokens and revocations kept in redis")
	return opened, nil
}
