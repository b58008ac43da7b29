package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/jrsteele09/lms-oauth-gateway/token"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var (
	_ token.ExchangeRepo   = (*ExchangeRepo)(nil)
	_ token.RevocationRepo = (*RevocationRepo)(nil)
)

const minRevocationTTL = time.Second

// findOrCreateScript keeps the user's exchange token if it is still valid at ARGV[3] (unix ms),
// otherwise replaces it with the candidate. Returns {token, expires_at_ms}.
var findOrCreateScript = redis.NewScript(`
local current = redis.call('HMGET', KEYS[1], 'token', 'expires_at')
if current[1] and current[2] and tonumber(current[2]) > tonumber(ARGV[3]) then
	return current
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'token', ARGV[1], 'expires_at', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {ARGV[1], ARGV[2]}
`)

// ExchangeRepo stores one hash per user. The key expires with the token.
type ExchangeRepo struct {
	client    redis.UniversalClient
	keyPrefix string
}

func (r *ExchangeRepo) FindOrCreateExchange(ctx context.Context, candidate *token.ExchangeToken, now time.Time) (*token.ExchangeToken, error) {
	ttl := candidate.ExpiresAt.Sub(now).Milliseconds()
	if ttl < 1 {
		ttl = 1
	}
	res, err := findOrCreateScript.Run(ctx, r.client, []string{r.keyPrefix + candidate.UserID},
		candidate.Token,
		candidate.ExpiresAt.UnixMilli(),
		now.UnixMilli(),
		ttl,
	).StringSlice()
	if err != nil {
		return nil, errors.Wrap(err, "[ExchangeRepo.FindOrCreateExchange]")
	}
	if len(res) != 2 {
		return nil, errors.Errorf("[ExchangeRepo.FindOrCreateExchange] unexpected reply %v", res)
	}
	expiresAt, err := strconv.ParseInt(res[1], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "[ExchangeRepo.FindOrCreateExchange] expires_at")
	}
	return &token.ExchangeToken{
		Token:     res[0],
		UserID:    candidate.UserID,
		ExpiresAt: time.UnixMilli(expiresAt).UTC(),
	}, nil
}

// PurgeExpiredExchange is a no-op; Redis drops each user's token when its TTL runs out.
func (r *ExchangeRepo) PurgeExpiredExchange(context.Context, time.Time) error {
	return nil
}

// RevocationRepo marks revoked jtis with keys that Redis expires alongside the token.
type RevocationRepo struct {
	client    redis.UniversalClient
	keyPrefix string
}

// Revoke keeps the key for at least minRevocationTTL so a token that is about to expire is still
// recorded.
func (r *RevocationRepo) Revoke(ctx context.Context, jti string, expiresAt, now time.Time) (bool, error) {
	ttl := max(expiresAt.Sub(now), minRevocationTTL)
	first, err := r.client.SetNX(ctx, r.keyPrefix+jti, 1, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "[RevocationRepo.Revoke]")
	}
	return first, nil
}

func (r *RevocationRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Exists(ctx, r.keyPrefix+jti).Result()
	if err != nil {
		return false, errors.Wrap(err, "[RevocationRepo.IsRevoked]")
	}
	return n > 0, nil
}

// PurgeRevoked is a no-op; Redis drops entries when their TTL runs out.
func (r *RevocationRepo) PurgeRevoked(context.Context, time.Time) error {
	return nil
}
