package main

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/jrsteele09/lms-oauth-gateway/auth"
	"github.com/jrsteele09/lms-oauth-gateway/internal/config"
	"github.com/jrsteele09/lms-oauth-gateway/internal/metrics"
	"github.com/jrsteele09/lms-oauth-gateway/permissions"
	"github.com/jrsteele09/lms-oauth-gateway/server"
	"github.com/jrsteele09/lms-oauth-gateway/sessions"
	"github.com/jrsteele09/lms-oauth-gateway/storage"
	"github.com/jrsteele09/lms-oauth-gateway/token"
	"github.com/jrsteele09/lms-oauth-gateway/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// gateway is the assembled service: the HTTP handler plus the token manager the purge loop drives.
type gateway struct {
	handler *server.Server
	tokens  *token.Manager
}

func buildGateway(cfg config.Config, repos storage.Repos, logger zerolog.Logger) (*gateway, error) {
	signer, err := newSigner(cfg, logger)
	if err != nil {
		return nil, err
	}

	tokens, err := token.New(repos.Tokens, signer,
		token.WithTokenExpiry(cfg.GetAccessTokenExpiry(), cfg.GetRefreshTokenExpiry()),
		token.WithCodeExpiry(cfg.GetAuthCodeExpiry()),
		token.WithExchangeExpiry(cfg.GetExchangeTokenExpiry()),
		token.WithAuthenticityExpiry(cfg.GetAuthenticityTokenExpiry()),
		token.WithRefreshBudget(cfg.GetRefreshMaxUses()),
		token.WithIssuer(cfg.GetIssuer()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "token manager")
	}

	passwords, err := users.NewPasswordValidator(repos.Users)
	if err != nil {
		return nil, errors.Wrap(err, "password validator")
	}

	service, err := auth.NewAuthorizationService(auth.Repos{
		Clients:  repos.Clients,
		Consents: repos.Consents,
		Users:    passwords,
		Sessions: sessions.NewStoreValidator(repos.Sessions, tokens.Now),
	}, tokens,
		auth.WithLogger(logger.With().Str("component", "auth").Logger()),
		auth.WithCallTimeout(cfg.GetCallTimeout()),
		auth.WithServiceUser(cfg.GetServiceUser()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "authorization service")
	}

	handler, err := server.New(cfg, server.Dependencies{
		Auth:        service,
		Permissions: permissions.NewMatcher(repos.Permissions),
		Metrics:     metrics.New(),
		Logger:      logger.With().Str("component", "http").Logger(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "http server")
	}
	return &gateway{handler: handler, tokens: tokens}, nil
}

// newSigner uses the configured key or secret. In DEV without either, a random secret is generated,
// so tokens do not survive a restart.
func newSigner(cfg config.Config, logger zerolog.Logger) (token.Signer, error) {
	if cfg.GetSigningSecret() != "" || cfg.GetSigningKeyFile() != "" {
		signer, err := token.NewSigner(cfg.GetSigningSecret(), cfg.GetSigningKeyFile())
		return signer, errors.Wrap(err, "token signer")
	}
	if !cfg.IsDev() {
		return nil, errors.New("TOKEN_SIGNING_SECRET or TOKEN_SIGNING_KEY_FILE is required")
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, errors.Wrap(err, "generate signing secret")
	}
	logger.Warn().Msg("no signing key configured, using a random secret; tokens are invalidated on restart")
	return token.NewHMACSigner(base64.RawURLEncoding.EncodeToString(buf)), nil
}
