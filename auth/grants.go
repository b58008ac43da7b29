package auth

import (
	"context"

	"github.com/jrsteele09/lms-oauth-gateway/clients"
	"github.com/jrsteele09/lms-oauth-gateway/oauth2"
	"github.com/pkg/errors"
)

// Token handles the token endpoint. It dispatches on grant_type and returns the issued token pair.
func (as *AuthorizationService) Token(ctx context.Context, req oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	ctx, cancel := as.callContext(ctx)
	defer cancel()

	tr, err := as.token(ctx, req)
	if err != nil {
		return nil, as.fail(ctx, "token", err)
	}
	as.logger.Debug().Str("grant_type", req.GrantType).Str("api_key", req.APIKey).Msg("token issued")
	return tr, nil
}

func (as *AuthorizationService) token(ctx context.Context, req oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	grant, ok := oauth2.ParseTokenGrantType(req.GrantType)
	if !ok {
		return nil, newError(ResponseType, nil, "parameter <grant_type> must match password, client_credentials, authorization_code, or refresh_token")
	}

	switch grant {
	case oauth2.PasswordGrant:
		return as.passwordGrant(ctx, req)
	case oauth2.ClientCredentialsGrant:
		return as.clientCredentialsGrant(ctx, req)
	case oauth2.AuthorizationCodeGrant:
		return as.authorizationCodeGrant(ctx, req)
	case oauth2.RefreshTokenGrant:
		return as.refreshTokenGrant(ctx, req)
	case oauth2.ImplicitGrant:
	}
	return nil, newError(ResponseType, nil, "grant type %s is not accepted at the token endpoint", grant)
}

func (as *AuthorizationService) passwordGrant(ctx context.Context, req oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	if err := requireParams(
		param("api_key", req.APIKey),
		param("username", req.Username),
		param("password", req.Password),
	); err != nil {
		return nil, err
	}

	client, err := as.registry.LookupForGrant(ctx, req.APIKey, oauth2.PasswordGrant)
	switch {
	case errors.Is(err, clients.ErrClientNotFound):
		return nil, loginFailed(err)
	case errors.Is(err, clients.ErrClientDisabledForGrant):
		return nil, clientDisabled(err, oauth2.PasswordGrant)
	case err != nil:
		return nil, err
	}

	userID, err := as.verifyUser(ctx, client, req.Username, req.Password)
	if err != nil {
		return nil, err
	}
	return as.issueTokenPair(ctx, client, userID, oauth2.PasswordGrant)
}

func (as *AuthorizationService) clientCredentialsGrant(ctx context.Context, req oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	if err := requireParams(
		param("api_key", req.APIKey),
		param("api_secret", req.APISecret),
	); err != nil {
		return nil, err
	}

	client, err := as.authenticateClient(ctx, req.APIKey, req.APISecret, oauth2.ClientCredentialsGrant)
	if err != nil {
		return nil, err
	}

	userID := as.serviceUser
	if client.UserRestrictionActive {
		if client.DefaultUserID == "" {
			return nil, clientDisabled(errors.New("user restriction active without a default user"), oauth2.ClientCredentialsGrant)
		}
		userID = client.DefaultUserID
	}
	return as.issueTokenPair(ctx, client, userID, oauth2.ClientCredentialsGrant)
}

func (as *AuthorizationService) authorizationCodeGrant(ctx context.Context, req oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	if err := requireParams(
		param("api_key", req.APIKey),
		param("api_secret", req.APISecret),
		param("code", req.Code),
		param("redirect_uri", req.RedirectURI),
	); err != nil {
		return nil, err
	}

	// The secret is checked before the code is consumed, so a wrong secret does not burn the code.
	client, err := as.authenticateClient(ctx, req.APIKey, req.APISecret, oauth2.AuthorizationCodeGrant)
	if err != nil {
		return nil, err
	}

	code, err := as.tokenCreator.RedeemCode(ctx, req.Code)
	if err != nil {
		return nil, as.tokenFailure(err, "authorization code")
	}
	if code.ClientID != client.APIKey || code.RedirectURI != req.RedirectURI {
		return nil, tokenInvalid(errors.New("code issued for another client or redirect_uri"), "authorization code")
	}
	return as.issueTokenPair(ctx, client, code.UserID, oauth2.AuthorizationCodeGrant)
}

// refreshTokenGrant rotates the refresh token before the access token is signed. A failure after
// rotation leaves the old token spent.
func (as *AuthorizationService) refreshTokenGrant(ctx context.Context, req oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	if err := requireParams(param("refresh_token", req.RefreshToken)); err != nil {
		return nil, err
	}

	rec, err := as.tokenCreator.RotateRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, as.tokenFailure(err, "refresh token")
	}
	if req.APIKey != "" && req.APIKey != rec.ClientID {
		return nil, tokenInvalid(errors.New("refresh token issued to another client"), "refresh token")
	}
	if _, err := as.registry.Lookup(ctx, rec.ClientID); err != nil {
		if errors.Is(err, clients.ErrClientNotFound) {
			return nil, tokenInvalid(err, "refresh token")
		}
		return nil, err
	}

	at, err := as.tokenCreator.IssueAccessToken(rec.ClientID, rec.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.refreshTokenGrant] IssueAccessToken")
	}
	return oauth2.NewTokenResponse(at.Token, at.ExpiresIn(as.tokenCreator.Now()), rec.Token), nil
}

// issueTokenPair signs an access token and, when the client has refresh enabled for grant, starts a
// new refresh chain for (client, user).
func (as *AuthorizationService) issueTokenPair(ctx context.Context, client *clients.Client, userID string, grant oauth2.GrantType) (*oauth2.TokenResponse, error) {
	at, err := as.tokenCreator.IssueAccessToken(client.APIKey, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.issueTokenPair] IssueAccessToken")
	}

	var refreshToken string
	if client.RefreshEnabled(grant) {
		rec, err := as.tokenCreator.IssueRefreshToken(ctx, client.APIKey, userID)
		if err != nil {
			return nil, errors.Wrap(err, "[AuthorizationService.issueTokenPair] IssueRefreshToken")
		}
		refreshToken = rec.Token
	}
	return oauth2.NewTokenResponse(at.Token, at.ExpiresIn(as.tokenCreator.Now()), refreshToken), nil
}
