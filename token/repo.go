package token

import (
	"context"
	"time"
)

// Repository contracts for token state. Every backend must make ConsumeCode, RotateRefresh and
// FindOrCreateExchange atomic: of N concurrent callers racing on the same code, refresh token or user,
// at most one observes success (or creation). Missing, expired and already used records are reported
// with internal/errors.ErrNotFound, exhausted refresh budgets with internal/errors.ErrExhausted.

// CodeRepo stores authorization codes.
type CodeRepo interface {
	SaveCode(ctx context.Context, code *AuthorizationCode) error
	// ConsumeCode deletes the code and returns it. An expired code is deleted and reported as not found.
	ConsumeCode(ctx context.Context, code string, now time.Time) (*AuthorizationCode, error)
	PurgeExpiredCodes(ctx context.Context, now time.Time) error
}

// RefreshRepo stores refresh records, one per (client, user).
type RefreshRepo interface {
	// SaveRefresh replaces any record of (rec.ClientID, rec.UserID) with rec. When a record is replaced,
	// NumResets is carried over and incremented. The stored record is returned.
	SaveRefresh(ctx context.Context, rec *RefreshRecord) (*RefreshRecord, error)
	// RotateRefresh swaps token for newToken if the record is unexpired at now and has uses left,
	// decrementing NumRefreshLeft, stamping LastRefresh and moving ExpiresAt to expiresAt.
	RotateRefresh(ctx context.Context, token, newToken string, now, expiresAt time.Time) (*RefreshRecord, error)
	GetRefresh(ctx context.Context, token string) (*RefreshRecord, error)
	DeleteRefresh(ctx context.Context, token string) error
	PurgeExpiredRefresh(ctx context.Context, now time.Time) error
}

// ExchangeRepo stores exchange tokens, at most one valid token per user.
type ExchangeRepo interface {
	// FindOrCreateExchange returns the user's token if it is still valid at now, otherwise stores
	// candidate (replacing an expired token) and returns it.
	FindOrCreateExchange(ctx context.Context, candidate *ExchangeToken, now time.Time) (*ExchangeToken, error)
	PurgeExpiredExchange(ctx context.Context, now time.Time) error
}

// Repos groups the token state repositories the Manager needs.
type Repos struct {
	Codes    CodeRepo
	Refresh  RefreshRepo
	Exchange ExchangeRepo
	Revoked  RevocationRepo
}
