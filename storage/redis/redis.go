// Package redis holds the short-lived token state (exchange tokens and revoked jtis) in Redis so
// several gateway instances can share it. The durable repositories stay in the primary backend.
package redis

import (
	"context"
	"time"

	"github.com/jrsteele09/lms-oauth-gateway/storage"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix   = "lms-oauth:"
	DefaultDialTimeout = 5 * time.Second
)

// Config selects a single Redis server.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type Store struct {
	client    redis.UniversalClient
	keyPrefix string
}

// Open connects and pings the server.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("[redis.Open] address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: DefaultDialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "[redis.Open] ping")
	}
	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client. An empty prefix selects DefaultKeyPrefix.
func NewWithClient(client redis.UniversalClient, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &Store{client: client, keyPrefix: keyPrefix}
}

func (s *Store) Exchange() *ExchangeRepo {
	return &ExchangeRepo{client: s.client, keyPrefix: s.keyPrefix + "exchange:"}
}

func (s *Store) Revocations() *RevocationRepo {
	return &RevocationRepo{client: s.client, keyPrefix: s.keyPrefix + "revoked:"}
}

// Overlay returns repos with the exchange and revocation repositories served from Redis.
func (s *Store) Overlay(repos storage.Repos) storage.Repos {
	repos.Tokens.Exchange = s.Exchange()
	repos.Tokens.Revoked = s.Revocations()
	return repos
}

func (s *Store) Close() error {
	return s.client.Close()
}
