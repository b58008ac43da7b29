package clients

import (
	"context"
	"time"
)

// Repo persists registered clients. Get returns an error wrapping internal/errors.ErrNotFound for an
// unknown api key.
type Repo interface {
	Upsert(ctx context.Context, client *Client) error
	Delete(ctx context.Context, apiKey string) error
	Get(ctx context.Context, apiKey string) (*Client, error)
	List(ctx context.Context, offset, limit int) ([]*Client, error)
}

// ConsentRepo records which users have consented to which clients.
type ConsentRepo interface {
	HasConsent(ctx context.Context, apiKey, userID string) (bool, error)
	RecordConsent(ctx context.Context, apiKey, userID string, at time.Time) error
}
