package auth

import (
	"context"
	"time"

	"github.com/jrsteele09/lms-oauth-gateway/clients"
	"github.com/jrsteele09/lms-oauth-gateway/oauth2"
	"github.com/jrsteele09/lms-oauth-gateway/sessions"
	"github.com/jrsteele09/lms-oauth-gateway/token"
	"github.com/jrsteele09/lms-oauth-gateway/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	// DefaultServiceUser is the identity client_credentials tokens act as when the client has no
	// user restriction.
	DefaultServiceUser = "rest_sys_user"

	defaultCallTimeout = 5 * time.Second
)

// Repos holds the collaborators of the AuthorizationService.
type Repos struct {
	Clients  clients.Repo        // Registered API clients
	Consents clients.ConsentRepo // Recorded (client, user) consents
	Users    users.Validator     // End-user credential check
	Sessions sessions.Validator  // Host session check for the session bridge
}

// AuthorizationService implements the authorization endpoint, the token endpoint and the session bridge.
type AuthorizationService struct {
	repos        Repos
	registry     *clients.Registry
	tokenCreator *token.Manager
	nowTime      func() time.Time
	logger       zerolog.Logger
	callTimeout  time.Duration
	serviceUser  string
}

// AuthorizationServiceOption defines a function type to modify the AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the clock used for consent timestamps.
func WithNowTime(nowFunc func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.logger = logger
	}
}

// WithCallTimeout bounds every operation, including the storage and credential calls it makes.
func WithCallTimeout(d time.Duration) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.callTimeout = d
	}
}

// WithServiceUser sets the identity for client_credentials tokens of unrestricted clients.
func WithServiceUser(userID string) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.serviceUser = userID
	}
}

// NewAuthorizationService initializes a new AuthorizationService with required dependencies.
func NewAuthorizationService(
	repos Repos,
	tokenCreator *token.Manager,
	options ...AuthorizationServiceOption,
) (*AuthorizationService, error) {
	if repos.Clients == nil {
		return nil, errors.New("[NewAuthorizationService] Clients repo is required")
	}
	if repos.Consents == nil {
		return nil, errors.New("[NewAuthorizationService] Consents repo is required")
	}
	if repos.Users == nil {
		return nil, errors.New("[NewAuthorizationService] Users validator is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewAuthorizationService] Sessions validator is required")
	}
	if tokenCreator == nil {
		return nil, errors.New("[NewAuthorizationService] tokenCreator is required")
	}

	as := &AuthorizationService{
		repos:        repos,
		registry:     clients.NewRegistry(repos.Clients),
		tokenCreator: tokenCreator,
		nowTime:      time.Now,
		logger:       zerolog.Nop(),
		callTimeout:  defaultCallTimeout,
		serviceUser:  DefaultServiceUser,
	}
	for _, opt := range options {
		opt(as)
	}
	return as, nil
}

func (as *AuthorizationService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if as.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, as.callTimeout)
}

// fail classifies err and logs it once. Client mistakes are warnings, infrastructure failures errors.
func (as *AuthorizationService) fail(ctx context.Context, op string, err error) error {
	authErr := classify(err)
	if authErr.Kind == Internal && ctx.Err() != nil {
		authErr = &Error{Kind: Unavailable, Msg: "service temporarily unavailable", Cause: err}
	}

	event := as.logger.Warn()
	if authErr.Kind == Internal || authErr.Kind == Unavailable {
		event = as.logger.Error()
	}
	event.Str("op", op).Str("kind", authErr.Kind.String()).AnErr("cause", authErr.Cause).Msg(authErr.Msg)
	return authErr
}

// lookupClient resolves apiKey. An unknown client is a login failure.
func (as *AuthorizationService) lookupClient(ctx context.Context, apiKey string) (*clients.Client, error) {
	client, err := as.registry.Lookup(ctx, apiKey)
	if errors.Is(err, clients.ErrClientNotFound) {
		return nil, loginFailed(err)
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

// authenticateClient resolves apiKey, checks the secret and then the grant flag.
func (as *AuthorizationService) authenticateClient(ctx context.Context, apiKey, secret string, grant oauth2.GrantType) (*clients.Client, error) {
	client, err := as.registry.Authenticate(ctx, apiKey, secret, grant)
	switch {
	case err == nil:
		return client, nil
	case errors.Is(err, clients.ErrClientNotFound), errors.Is(err, clients.ErrInvalidSecret):
		return nil, loginFailed(err)
	case errors.Is(err, clients.ErrClientDisabledForGrant):
		return nil, clientDisabled(err, grant)
	}
	return nil, err
}

// verifyUser checks end-user credentials and the client's user allow-list.
func (as *AuthorizationService) verifyUser(ctx context.Context, client *clients.Client, username, password string) (string, error) {
	userID, err := as.repos.Users.VerifyUserCredentials(ctx, username, password)
	if errors.Is(err, users.ErrLoginFailed) {
		return "", loginFailed(err)
	}
	if err != nil {
		return "", err
	}
	if !client.AllowsUser(userID) {
		return "", loginFailed(errors.Errorf("user %s not allowed for client %s", userID, client.APIKey))
	}
	return userID, nil
}

// requireParams fails with MissingParameter for the first empty value, in the order given.
func requireParams(params ...[2]string) error {
	for _, p := range params {
		if p[1] == "" {
			return missingParameter(p[0])
		}
	}
	return nil
}

func param(name, value string) [2]string {
	return [2]string{name, value}
}
