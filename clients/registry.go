package clients

import (
	"context"

	apperrors "github.com/jrsteele09/lms-oauth-gateway/internal/errors"
	"github.com/jrsteele09/lms-oauth-gateway/oauth2"
	"github.com/pkg/errors"
)

var (
	ErrClientNotFound         = errors.New("client not found")
	ErrClientDisabledForGrant = errors.New("client disabled for grant type")
	ErrInvalidSecret          = errors.New("client secret mismatch")
)

// Registry is the read path over registered clients.
type Registry struct {
	repo Repo
}

func NewRegistry(repo Repo) *Registry {
	return &Registry{repo: repo}
}

// Lookup returns the client registered under apiKey, or ErrClientNotFound.
func (r *Registry) Lookup(ctx context.Context, apiKey string) (*Client, error) {
	client, err := r.repo.Get(ctx, apiKey)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Registry.Lookup] repo.Get")
	}
	return client, nil
}

// VerifySecret reports whether secret is the client's secret.
func (r *Registry) VerifySecret(client *Client, secret string) bool {
	return client != nil && client.VerifySecret(secret)
}

// LookupForGrant returns the client registered under apiKey if it has grant enabled.
func (r *Registry) LookupForGrant(ctx context.Context, apiKey string, grant oauth2.GrantType) (*Client, error) {
	client, err := r.Lookup(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(grant) {
		return nil, errors.Wrapf(ErrClientDisabledForGrant, "%s", grant)
	}
	return client, nil
}

// Authenticate looks up the client, checks its secret and then the grant flag, in that order, so a
// caller without the secret cannot probe which grants a client has enabled.
func (r *Registry) Authenticate(ctx context.Context, apiKey, secret string, grant oauth2.GrantType) (*Client, error) {
	client, err := r.Lookup(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if !client.VerifySecret(secret) {
		return nil, ErrInvalidSecret
	}
	if !client.AllowsGrant(grant) {
		return nil, errors.Wrapf(ErrClientDisabledForGrant, "%s", grant)
	}
	return client, nil
}
