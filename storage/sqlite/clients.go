package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jrsteele09/lms-oauth-gateway/clients"
	apperrors "github.com/jrsteele09/lms-oauth-gateway/internal/errors"
	"github.com/pkg/errors"
)

var (
	_ clients.Repo        = (*ClientRepo)(nil)
	_ clients.ConsentRepo = (*ConsentRepo)(nil)
)

type clientRow struct {
	APIKey                   string `db:"api_key"`
	APISecret                string `db:"api_secret"`
	Description              string `db:"description"`
	RedirectURI              string `db:"redirect_uri"`
	ConsentRequired          bool   `db:"consent_required"`
	ConsentMessage           string `db:"consent_message"`
	GrantClientCredentials   bool   `db:"grant_client_credentials"`
	GrantAuthorizationCode   bool   `db:"grant_authorization_code"`
	GrantImplicit            bool   `db:"grant_implicit"`
	GrantResourceOwner       bool   `db:"grant_resource_owner"`
	RefreshClientCredentials bool   `db:"refresh_client_credentials"`
	RefreshAuthorizationCode bool   `db:"refresh_authorization_code"`
	RefreshImplicit          bool   `db:"refresh_implicit"`
	RefreshResourceOwner     bool   `db:"refresh_resource_owner"`
	UserRestrictionActive    bool   `db:"user_restriction_active"`
	DefaultUserID            string `db:"default_user_id"`
	AllowedUserIDs           string `db:"allowed_user_ids"`
}

func newClientRow(c *clients.Client) (*clientRow, error) {
	allowed, err := json.Marshal(c.AllowedUserIDs)
	if err != nil {
		return nil, err
	}
	if c.AllowedUserIDs == nil {
		allowed = []byte("[]")
	}
	return &clientRow{
		APIKey:                   c.APIKey,
		APISecret:                c.APISecret,
		Description:              c.Description,
		RedirectURI:              c.RedirectURI,
		ConsentRequired:          c.ConsentRequired,
		ConsentMessage:           c.ConsentMessage,
		GrantClientCredentials:   c.Grants.ClientCredentials,
		GrantAuthorizationCode:   c.Grants.AuthorizationCode,
		GrantImplicit:            c.Grants.Implicit,
		GrantResourceOwner:       c.Grants.ResourceOwner,
		RefreshClientCredentials: c.Refresh.ClientCredentials,
		RefreshAuthorizationCode: c.Refresh.AuthorizationCode,
		RefreshImplicit:          c.Refresh.Implicit,
		RefreshResourceOwner:     c.Refresh.ResourceOwner,
		UserRestrictionActive:    c.UserRestrictionActive,
		DefaultUserID:            c.DefaultUserID,
		AllowedUserIDs:           string(allowed),
	}, nil
}

func (r *clientRow) client() (*clients.Client, error) {
	c := &clients.Client{
		APIKey:          r.APIKey,
		APISecret:       r.APISecret,
		Description:     r.Description,
		RedirectURI:     r.RedirectURI,
		ConsentRequired: r.ConsentRequired,
		ConsentMessage:  r.ConsentMessage,
		Grants: clients.GrantFlags{
			ClientCredentials: r.GrantClientCredentials,
			AuthorizationCode: r.GrantAuthorizationCode,
			Implicit:          r.GrantImplicit,
			ResourceOwner:     r.GrantResourceOwner,
		},
		Refresh: clients.GrantFlags{
			ClientCredentials: r.RefreshClientCredentials,
			AuthorizationCode: r.RefreshAuthorizationCode,
			Implicit:          r.RefreshImplicit,
			ResourceOwner:     r.RefreshResourceOwner,
		},
		UserRestrictionActive: r.UserRestrictionActive,
		DefaultUserID:         r.DefaultUserID,
	}
	if err := json.Unmarshal([]byte(r.AllowedUserIDs), &c.AllowedUserIDs); err != nil {
		return nil, errors.Wrapf(err, "client %s allowed_user_ids", r.APIKey)
	}
	if len(c.AllowedUserIDs) == 0 {
		c.AllowedUserIDs = nil
	}
	return c, nil
}

const clientColumns = `api_key, api_secret, description, redirect_uri, consent_required, consent_message,
	grant_client_credentials, grant_authorization_code, grant_implicit, grant_resource_owner,
	refresh_client_credentials, refresh_authorization_code, refresh_implicit, refresh_resource_owner,
	user_restriction_active, default_user_id, allowed_user_ids`

type ClientRepo struct {
	db *sqlx.DB
}

func (r *ClientRepo) Upsert(ctx context.Context, client *clients.Client) error {
	row, err := newClientRow(client)
	if err != nil {
		return errors.Wrap(err, "[ClientRepo.Upsert] encode")
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (:api_key, :api_secret, :description, :redirect_uri, :consent_required, :consent_message,
			:grant_client_credentials, :grant_authorization_code, :grant_implicit, :grant_resource_owner,
			:refresh_client_credentials, :refresh_authorization_code, :refresh_implicit, :refresh_resource_owner,
			:user_restriction_active, :default_user_id, :allowed_user_ids)
		ON CONFLICT (api_key) DO UPDATE SET
			api_secret = excluded.api_secret,
			description = excluded.description,
			redirect_uri = excluded.redirect_uri,
			consent_required = excluded.consent_required,
			consent_message = excluded.consent_message,
			grant_client_credentials = excluded.grant_client_credentials,
			grant_authorization_code = excluded.grant_authorization_code,
			grant_implicit = excluded.grant_implicit,
			grant_resource_owner = excluded.grant_resource_owner,
			refresh_client_credentials = excluded.refresh_client_credentials,
			refresh_authorization_code = excluded.refresh_authorization_code,
			refresh_implicit = excluded.refresh_implicit,
			refresh_resource_owner = excluded.refresh_resource_owner,
			user_restriction_active = excluded.user_restriction_active,
			default_user_id = excluded.default_user_id,
			allowed_user_ids = excluded.allowed_user_ids`, row)
	if err != nil {
		return errors.Wrap(err, "[ClientRepo.Upsert]")
	}
	return nil
}

func (r *ClientRepo) Delete(ctx context.Context, apiKey string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE api_key = ?`, apiKey)
	if err != nil {
		return errors.Wrap(err, "[ClientRepo.Delete]")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Wrapf(apperrors.ErrNotFound, "client %s", apiKey)
	}
	return nil
}

func (r *ClientRepo) Get(ctx context.Context, apiKey string) (*clients.Client, error) {
	var row clientRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+clientColumns+` FROM clients WHERE api_key = ?`, apiKey); err != nil {
		return nil, notFound(err, "client %s", apiKey)
	}
	return row.client()
}

// List pages through clients ordered by api key. A non-positive limit returns everything after offset.
func (r *ClientRepo) List(ctx context.Context, offset, limit int) ([]*clients.Client, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	var rows []clientRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT `+clientColumns+` FROM clients ORDER BY api_key LIMIT ? OFFSET ?`, limit, offset); err != nil {
		return nil, errors.Wrap(err, "[ClientRepo.List]")
	}
	list := make([]*clients.Client, 0, len(rows))
	for i := range rows {
		c, err := rows[i].client()
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, nil
}

type ConsentRepo struct {
	db *sqlx.DB
}

func (r *ConsentRepo) HasConsent(ctx context.Context, apiKey, userID string) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM client_consents WHERE api_key = ? AND user_id = ?`, apiKey, userID)
	if err != nil {
		return false, errors.Wrap(err, "[ConsentRepo.HasConsent]")
	}
	return n > 0, nil
}

func (r *ConsentRepo) RecordConsent(ctx context.Context, apiKey, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO client_consents (api_key, user_id, granted_at) VALUES (?, ?, ?)
		ON CONFLICT (api_key, user_id) DO UPDATE SET granted_at = excluded.granted_at`,
		apiKey, userID, toUnix(at))
	if err != nil {
		return errors.Wrap(err, "[ConsentRepo.RecordConsent]")
	}
	return nil
}
