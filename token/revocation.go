package token

import (
	"context"
	"time"
)

// RevocationRepo records spent jtis: revoked access tokens and consumed authenticity tokens. Entries
// only need to outlive the token they name, so backends may drop them after expiresAt.
type RevocationRepo interface {
	// Revoke records jti and reports whether it was not recorded before. Check and insert are atomic,
	// so of two concurrent calls for the same jti exactly one sees true.
	Revoke(ctx context.Context, jti string, expiresAt, now time.Time) (bool, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
	PurgeRevoked(ctx context.Context, now time.Time) error
}
