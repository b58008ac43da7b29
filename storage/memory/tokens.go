package memory

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/lms-oauth-gateway/internal/errors"
	"github.com/jrsteele09/lms-oauth-gateway/token"
)

var (
	_ token.CodeRepo       = (*CodeRepo)(nil)
	_ token.RefreshRepo    = (*RefreshRepo)(nil)
	_ token.ExchangeRepo   = (*ExchangeRepo)(nil)
	_ token.RevocationRepo = (*RevocationRepo)(nil)
)

type CodeRepo struct {
	codes map[string]token.AuthorizationCode
	lock  sync.Mutex
}

func NewCodeRepo() *CodeRepo {
	return &CodeRepo{codes: make(map[string]token.AuthorizationCode)}
}

func (r *CodeRepo) SaveCode(_ context.Context, code *token.AuthorizationCode) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, exists := r.codes[code.Code]; exists {
		return apperrors.Wrapf(apperrors.ErrConflict, "code")
	}
	r.codes[code.Code] = *code
	return nil
}

func (r *CodeRepo) ConsumeCode(_ context.Context, code string, now time.Time) (*token.AuthorizationCode, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	ac, ok := r.codes[code]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "code")
	}
	delete(r.codes, code)
	if !now.Before(ac.ExpiresAt) {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "code expired")
	}
	return &ac, nil
}

func (r *CodeRepo) PurgeExpiredCodes(_ context.Context, now time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for k, ac := range r.codes {
		if !now.Before(ac.ExpiresAt) {
			delete(r.codes, k)
		}
	}
	return nil
}

type RefreshRepo struct {
	records map[string]*token.RefreshRecord // token to record
	owners  map[[2]string]string            // (client, user) to token
	lock    sync.Mutex
}

func NewRefreshRepo() *RefreshRepo {
	return &RefreshRepo{
		records: make(map[string]*token.RefreshRecord),
		owners:  make(map[[2]string]string),
	}
}

func (r *RefreshRepo) SaveRefresh(_ context.Context, rec *token.RefreshRecord) (*token.RefreshRecord, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	stored := *rec
	owner := [2]string{rec.ClientID, rec.UserID}
	if oldToken, ok := r.owners[owner]; ok {
		if old, ok := r.records[oldToken]; ok {
			stored.NumResets = old.NumResets + 1
		}
		delete(r.records, oldToken)
	}
	r.records[stored.Token] = &stored
	r.owners[owner] = stored.Token

	out := stored
	return &out, nil
}

func (r *RefreshRepo) RotateRefresh(_ context.Context, tokenStr, newToken string, now, expiresAt time.Time) (*token.RefreshRecord, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	rec, ok := r.records[tokenStr]
	if !ok || !now.Before(rec.ExpiresAt) {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "refresh token")
	}
	if rec.NumRefreshLeft <= 0 {
		return nil, apperrors.Wrapf(apperrors.ErrExhausted, "refresh token")
	}

	delete(r.records, tokenStr)
	rec.Token = newToken
	rec.NumRefreshLeft--
	rec.LastRefresh = now
	rec.ExpiresAt = expiresAt
	r.records[newToken] = rec
	r.owners[[2]string{rec.ClientID, rec.UserID}] = newToken

	out := *rec
	return &out, nil
}

func (r *RefreshRepo) GetRefresh(_ context.Context, tokenStr string) (*token.RefreshRecord, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	rec, ok := r.records[tokenStr]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "refresh token")
	}
	out := *rec
	return &out, nil
}

func (r *RefreshRepo) DeleteRefresh(_ context.Context, tokenStr string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	rec, ok := r.records[tokenStr]
	if !ok {
		return apperrors.Wrapf(apperrors.ErrNotFound, "refresh token")
	}
	delete(r.records, tokenStr)
	delete(r.owners, [2]string{rec.ClientID, rec.UserID})
	return nil
}

func (r *RefreshRepo) PurgeExpiredRefresh(_ context.Context, now time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for k, rec := range r.records {
		if !now.Before(rec.ExpiresAt) {
			delete(r.records, k)
			delete(r.owners, [2]string{rec.ClientID, rec.UserID})
		}
	}
	return nil
}

type ExchangeRepo struct {
	byUser map[string]token.ExchangeToken
	lock   sync.Mutex
}

func NewExchangeRepo() *ExchangeRepo {
	return &ExchangeRepo{byUser: make(map[string]token.ExchangeToken)}
}

func (r *ExchangeRepo) FindOrCreateExchange(_ context.Context, candidate *token.ExchangeToken, now time.Time) (*token.ExchangeToken, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if existing, ok := r.byUser[candidate.UserID]; ok && existing.ValidAt(now) {
		return &existing, nil
	}
	r.byUser[candidate.UserID] = *candidate
	out := *candidate
	return &out, nil
}

func (r *ExchangeRepo) PurgeExpiredExchange(_ context.Context, now time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	for user, et := range r.byUser {
		if !et.ValidAt(now) {
			delete(r.byUser, user)
		}
	}
	return nil
}

type RevocationRepo struct {
	revoked map[string]time.Time
	lock    sync.RWMutex
}

func NewRevocationRepo() *RevocationRepo {
	return &RevocationRepo{
		revoked: make(map[string]time.Time),
	}
}

func (c *RevocationRepo) Revoke(_ context.Context, jti string, expiresAt, _ time.Time) (bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if _, exists := c.revoked[jti]; exists {
		return false, nil
	}
	c.revoked[jti] = expiresAt
	return true, nil
}

func (c *RevocationRepo) IsRevoked(_ context.Context, jti string) (bool, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	_, exists := c.revoked[jti]
	return exists, nil
}

func (c *RevocationRepo) PurgeRevoked(_ context.Context, now time.Time) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	for jti, exp := range c.revoked {
		if now.After(exp) {
			delete(c.revoked, jti)
		}
	}
	return nil
}
