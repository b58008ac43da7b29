package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/lms-oauth-gateway/internal/errors"
	"github.com/pkg/errors"
)

// ErrTokenInvalid covers every code, refresh, access, exchange or authenticity token that is unknown,
// expired, revoked, already used or out of refresh budget.
var ErrTokenInvalid = errors.New("token invalid")

const (
	typeAccess       = "access"
	typeAuthenticity = "authenticity"

	randomTokenBytes = 32 // 256 bits
)

// Manager owns the lifecycle of every token the gateway hands out: signed access tokens, refresh
// records with a bounded reuse budget, one-time authorization codes, exchange tokens and the
// authenticity tokens carried by consent forms.
type Manager struct {
	repos   Repos
	signer  Signer
	issuer  string
	nowFunc func() time.Time

	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	codeExpiry         time.Duration
	exchangeExpiry     time.Duration
	authenticityExpiry time.Duration
	refreshBudget      int
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessTokenExpiry, refreshTokenExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = accessTokenExpiry
		m.refreshTokenExpiry = refreshTokenExpiry
	}
}

func WithCodeExpiry(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.codeExpiry = d
	}
}

func WithExchangeExpiry(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.exchangeExpiry = d
	}
}

func WithAuthenticityExpiry(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.authenticityExpiry = d
	}
}

// DefaultRefreshBudget is the number of refresh_token grants a newly issued refresh token allows.
const DefaultRefreshBudget = 100

// WithRefreshBudget sets how many refresh_token grants a fresh refresh token allows.
func WithRefreshBudget(uses int) ManagerOption {
	return func(m *Manager) {
		m.refreshBudget = uses
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func New(repos Repos, signer Signer, options ...ManagerOption) (*Manager, error) {
	if repos.Codes == nil || repos.Refresh == nil || repos.Exchange == nil || repos.Revoked == nil {
		return nil, errors.New("[token.New] codes, refresh, exchange and revoked repos are required")
	}
	if signer == nil {
		return nil, errors.New("[token.New] signer is required")
	}

	m := &Manager{
		repos:              repos,
		signer:             signer,
		nowFunc:            time.Now,
		accessTokenExpiry:  time.Hour,
		refreshTokenExpiry: 7 * 24 * time.Hour,
		codeExpiry:         10 * time.Minute,
		exchangeExpiry:     60 * time.Second,
		authenticityExpiry: 10 * time.Minute,
		refreshBudget:      DefaultRefreshBudget,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// AccessTokenExpiry is the lifetime of issued access tokens.
func (m *Manager) AccessTokenExpiry() time.Duration {
	return m.accessTokenExpiry
}

// Now returns the manager's clock.
func (m *Manager) Now() time.Time {
	return m.nowFunc()
}

// IssueAccessToken signs a new access token for userID acting through clientID.
func (m *Manager) IssueAccessToken(clientID, userID string) (*AccessToken, error) {
	now := m.nowFunc()
	at := &AccessToken{
		ID:        uuid.New().String(),
		ClientID:  clientID,
		UserID:    userID,
		IssuedAt:  now.Truncate(time.Second),
		ExpiresAt: now.Add(m.accessTokenExpiry).Truncate(time.Second),
	}

	claims := jwt.MapClaims{
		"iss":       m.issuer,             // Issuer
		"sub":       userID,               // The user the token acts for
		"client_id": clientID,             // The api_key the token was issued to
		"typ":       typeAccess,           // Keeps authenticity tokens from being used as bearers
		"iat":       at.IssuedAt.Unix(),   // Issued At
		"exp":       at.ExpiresAt.Unix(),  // Expiry
		"jti":       at.ID,                // Unique token ID for revocation
	}

	signed, err := m.signer.Sign(claims)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.IssueAccessToken] Sign")
	}
	at.Token = signed
	return at, nil
}

// VerifyAccessToken checks signature, expiry, issuer and revocation. Any failure other than a broken
// revocation lookup is ErrTokenInvalid.
func (m *Manager) VerifyAccessToken(ctx context.Context, rawToken string) (*AccessToken, error) {
	at, err := m.parseAccessToken(rawToken)
	if err != nil {
		return nil, err
	}
	revoked, err := m.repos.Revoked.IsRevoked(ctx, at.ID)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.VerifyAccessToken] IsRevoked")
	}
	if revoked {
		return nil, errors.Wrap(ErrTokenInvalid, "revoked")
	}
	return at, nil
}

// RevokeAccessToken adds a live access token issued to clientID to the revocation list. It reports
// false when rawToken is not such a token.
func (m *Manager) RevokeAccessToken(ctx context.Context, rawToken, clientID string) (bool, error) {
	at, err := m.parseAccessToken(rawToken)
	if err != nil || at.ClientID != clientID {
		return false, nil
	}
	if _, err := m.repos.Revoked.Revoke(ctx, at.ID, at.ExpiresAt, m.nowFunc()); err != nil {
		return false, errors.Wrap(err, "[Manager.RevokeAccessToken] Revoke")
	}
	return true, nil
}

func (m *Manager) parseAccessToken(rawToken string) (*AccessToken, error) {
	claims, err := m.parseClaims(rawToken, typeAccess)
	if err != nil {
		return nil, err
	}

	jti, _ := claims["jti"].(string)
	sub, _ := claims["sub"].(string)
	clientID, _ := claims["client_id"].(string)
	if jti == "" || clientID == "" {
		return nil, errors.Wrap(ErrTokenInvalid, "missing claims")
	}

	at := &AccessToken{Token: rawToken, ID: jti, ClientID: clientID, UserID: sub}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		at.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		at.ExpiresAt = exp.Time
	}
	return at, nil
}

func (m *Manager) parseClaims(rawToken, tokenType string) (jwt.MapClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errors.Wrap(ErrTokenInvalid, "empty token")
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.signer.GetSigningMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.nowFunc),
	}
	if m.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(m.issuer))
	}

	parsed, err := jwt.Parse(rawToken, m.signer.GetVerificationKey, parserOptions...)
	if err != nil || !parsed.Valid {
		return nil, errors.Wrapf(ErrTokenInvalid, "parse: %v", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.Wrap(ErrTokenInvalid, "error extracting claims from token")
	}
	if typ, _ := claims["typ"].(string); typ != tokenType {
		return nil, errors.Wrapf(ErrTokenInvalid, "unexpected token type %q", typ)
	}
	return claims, nil
}

// IssueRefreshToken starts a new refresh chain for (clientID, userID), replacing any existing one and
// restoring the full reuse budget.
func (m *Manager) IssueRefreshToken(ctx context.Context, clientID, userID string) (*RefreshRecord, error) {
	tokenStr, err := randomToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.IssueRefreshToken] randomToken")
	}

	now := m.nowFunc()
	rec, err := m.repos.Refresh.SaveRefresh(ctx, &RefreshRecord{
		Token:          tokenStr,
		ClientID:       clientID,
		UserID:         userID,
		NumRefreshLeft: m.refreshBudget,
		IssuedAt:       now,
		LastRefresh:    now,
		ExpiresAt:      now.Add(m.refreshTokenExpiry),
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.IssueRefreshToken] SaveRefresh")
	}
	return rec, nil
}

// RotateRefreshToken consumes one use of rawToken and returns the record under its replacement token.
// The old token stops working whether or not the caller manages to issue the new access token.
func (m *Manager) RotateRefreshToken(ctx context.Context, rawToken string) (*RefreshRecord, error) {
	if rawToken == "" {
		return nil, errors.Wrap(ErrTokenInvalid, "empty refresh token")
	}
	newToken, err := randomToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.RotateRefreshToken] randomToken")
	}

	now := m.nowFunc()
	rec, err := m.repos.Refresh.RotateRefresh(ctx, rawToken, newToken, now, now.Add(m.refreshTokenExpiry))
	if apperrors.Is(err, apperrors.ErrNotFound) || apperrors.Is(err, apperrors.ErrExhausted) {
		return nil, errors.Wrap(ErrTokenInvalid, err.Error())
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.RotateRefreshToken] RotateRefresh")
	}
	return rec, nil
}

// RevokeRefreshToken deletes a refresh record owned by clientID. It reports false when rawToken is not
// such a record.
func (m *Manager) RevokeRefreshToken(ctx context.Context, rawToken, clientID string) (bool, error) {
	rec, err := m.repos.Refresh.GetRefresh(ctx, rawToken)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "[Manager.RevokeRefreshToken] GetRefresh")
	}
	if rec.ClientID != clientID {
		return false, nil
	}
	if err := m.repos.Refresh.DeleteRefresh(ctx, rawToken); err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return false, errors.Wrap(err, "[Manager.RevokeRefreshToken] DeleteRefresh")
	}
	return true, nil
}

// IssueCode mints a one-time authorization code.
func (m *Manager) IssueCode(ctx context.Context, clientID, userID, redirectURI string) (*AuthorizationCode, error) {
	codeStr, err := randomToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.IssueCode] randomToken")
	}

	now := m.nowFunc()
	code := &AuthorizationCode{
		Code:        codeStr,
		ClientID:    clientID,
		UserID:      userID,
		RedirectURI: redirectURI,
		IssuedAt:    now,
		ExpiresAt:   now.Add(m.codeExpiry),
	}
	if err := m.repos.Codes.SaveCode(ctx, code); err != nil {
		return nil, errors.Wrap(err, "[Manager.IssueCode] SaveCode")
	}
	return code, nil
}

// RedeemCode consumes a code. A second redemption, concurrent or not, fails with ErrTokenInvalid.
func (m *Manager) RedeemCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	if code == "" {
		return nil, errors.Wrap(ErrTokenInvalid, "empty code")
	}
	ac, err := m.repos.Codes.ConsumeCode(ctx, code, m.nowFunc())
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, errors.Wrap(ErrTokenInvalid, "authorization code")
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.RedeemCode] ConsumeCode")
	}
	return ac, nil
}

// ExchangeTokenFor returns the user's current exchange token, minting one when none is valid.
func (m *Manager) ExchangeTokenFor(ctx context.Context, userID string) (*ExchangeToken, error) {
	tokenStr, err := randomToken()
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.ExchangeTokenFor] randomToken")
	}

	now := m.nowFunc()
	et, err := m.repos.Exchange.FindOrCreateExchange(ctx, &ExchangeToken{
		Token:     tokenStr,
		UserID:    userID,
		ExpiresAt: now.Add(m.exchangeExpiry),
	}, now)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.ExchangeTokenFor] FindOrCreateExchange")
	}
	return et, nil
}

// PurgeExpired drops expired codes, refresh records, exchange tokens and revocation entries.
func (m *Manager) PurgeExpired(ctx context.Context) error {
	now := m.nowFunc()
	if err := m.repos.Codes.PurgeExpiredCodes(ctx, now); err != nil {
		return errors.Wrap(err, "[Manager.PurgeExpired] PurgeExpiredCodes")
	}
	if err := m.repos.Refresh.PurgeExpiredRefresh(ctx, now); err != nil {
		return errors.Wrap(err, "[Manager.PurgeExpired] PurgeExpiredRefresh")
	}
	if err := m.repos.Exchange.PurgeExpiredExchange(ctx, now); err != nil {
		return errors.Wrap(err, "[Manager.PurgeExpired] PurgeExpiredExchange")
	}
	if err := m.repos.Revoked.PurgeRevoked(ctx, now); err != nil {
		return errors.Wrap(err, "[Manager.PurgeExpired] PurgeRevoked")
	}
	return nil
}

func randomToken() (string, error) {
	tokenBytes := make([]byte, randomTokenBytes)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(tokenBytes), nil
}
