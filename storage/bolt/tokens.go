package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/jrsteele09/lms-oauth-gateway/internal/errors"
	"github.com/jrsteele09/lms-oauth-gateway/token"
	bolt "go.etcd.io/bbolt"
)

var (
	_ token.CodeRepo       = (*CodeRepo)(nil)
	_ token.RefreshRepo    = (*RefreshRepo)(nil)
	_ token.ExchangeRepo   = (*ExchangeRepo)(nil)
	_ token.RevocationRepo = (*RevocationRepo)(nil)
)

// Codes and refresh records are keyed by the hash of their secret and stored without it. Readers
// already hold the secret and put it back on the returned value.

type CodeRepo struct {
	db *bolt.DB
}

func (r *CodeRepo) SaveCode(_ context.Context, code *token.AuthorizationCode) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(codesBucket)
		key := hashKey(code.Code)
		if b.Get(key) != nil {
			return apperrors.Wrapf(apperrors.ErrConflict, "code")
		}
		stored := *code
		stored.Code = ""
		return put(b, key, stored)
	})
}

func (r *CodeRepo) ConsumeCode(_ context.Context, code string, now time.Time) (*token.AuthorizationCode, error) {
	var ac token.AuthorizationCode
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(codesBucket)
		key := hashKey(code)
		found, err := get(b, key, &ac)
		if err != nil {
			return err
		}
		if !found {
			return apperrors.Wrapf(apperrors.ErrNotFound, "code")
		}
		return b.Delete(key)
	})
	if err != nil {
		return nil, err
	}
	if !now.Before(ac.ExpiresAt) {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "code expired")
	}
	ac.Code = code
	return &ac, nil
}

func (r *CodeRepo) PurgeExpiredCodes(_ context.Context, now time.Time) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(codesBucket)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var ac token.AuthorizationCode
			if err := json.Unmarshal(v, &ac); err != nil {
				return err
			}
			if !now.Before(ac.ExpiresAt) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		return deleteKeys(b, expired)
	})
}

// RefreshRepo keeps records under the token hash and an owners bucket from client NUL user to that
// hash, which enforces one record per (client, user).
type RefreshRepo struct {
	db *bolt.DB
}

func (r *RefreshRepo) SaveRefresh(_ context.Context, rec *token.RefreshRecord) (*token.RefreshRecord, error) {
	stored := *rec
	err := r.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(refreshBucket)
		owners := tx.Bucket(refreshOwnersBucket)
		owner := pairKey(rec.ClientID, rec.UserID)

		if oldKey := owners.Get(owner); oldKey != nil {
			var old token.RefreshRecord
			found, err := get(records, oldKey, &old)
			if err != nil {
				return err
			}
			if found {
				stored.NumResets = old.NumResets + 1
			}
			if err := records.Delete(oldKey); err != nil {
				return err
			}
		}
		key := hashKey(rec.Token)
		value := stored
		value.Token = ""
		if err := put(records, key, value); err != nil {
			return err
		}
		return owners.Put(owner, key)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *RefreshRepo) RotateRefresh(_ context.Context, tokenStr, newToken string, now, expiresAt time.Time) (*token.RefreshRecord, error) {
	var rec token.RefreshRecord
	err := r.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(refreshBucket)
		oldKey := hashKey(tokenStr)
		found, err := get(records, oldKey, &rec)
		if err != nil {
			return err
		}
		if !found || !now.Before(rec.ExpiresAt) {
			return apperrors.Wrapf(apperrors.ErrNotFound, "refresh token")
		}
		if rec.NumRefreshLeft <= 0 {
			return apperrors.Wrapf(apperrors.ErrExhausted, "refresh token")
		}
		rec.NumRefreshLeft--
		rec.LastRefresh = now
		rec.ExpiresAt = expiresAt

		if err := records.Delete(oldKey); err != nil {
			return err
		}
		newKey := hashKey(newToken)
		if err := put(records, newKey, rec); err != nil {
			return err
		}
		return tx.Bucket(refreshOwnersBucket).Put(pairKey(rec.ClientID, rec.UserID), newKey)
	})
	if err != nil {
		return nil, err
	}
	rec.Token = newToken
	return &rec, nil
}

func (r *RefreshRepo) GetRefresh(_ context.Context, tokenStr string) (*token.RefreshRecord, error) {
	var rec token.RefreshRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		found, err := get(tx.Bucket(refreshBucket), hashKey(tokenStr), &rec)
		if err != nil {
			return err
		}
		if !found {
			return apperrors.Wrapf(apperrors.ErrNotFound, "refresh token")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	rec.Token = tokenStr
	return &rec, nil
}

func (r *RefreshRepo) DeleteRefresh(_ context.Context, tokenStr string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(refreshBucket)
		key := hashKey(tokenStr)
		var rec token.RefreshRecord
		found, err := get(records, key, &rec)
		if err != nil {
			return err
		}
		if !found {
			return apperrors.Wrapf(apperrors.ErrNotFound, "refresh token")
		}
		if err := records.Delete(key); err != nil {
			return err
		}
		return tx.Bucket(refreshOwnersBucket).Delete(pairKey(rec.ClientID, rec.UserID))
	})
}

func (r *RefreshRepo) PurgeExpiredRefresh(_ context.Context, now time.Time) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(refreshBucket)
		owners := tx.Bucket(refreshOwnersBucket)
		var expired [][]byte
		err := records.ForEach(func(k, v []byte) error {
			var rec token.RefreshRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if now.Before(rec.ExpiresAt) {
				return nil
			}
			expired = append(expired, append([]byte(nil), k...))
			owner := pairKey(rec.ClientID, rec.UserID)
			if bytes.Equal(owners.Get(owner), k) {
				return owners.Delete(owner)
			}
			return nil
		})
		if err != nil {
			return err
		}
		return deleteKeys(records, expired)
	})
}

// ExchangeRepo stores the raw token by user id, since a later caller must be handed the same token.
type ExchangeRepo struct {
	db *bolt.DB
}

func (r *ExchangeRepo) FindOrCreateExchange(_ context.Context, candidate *token.ExchangeToken, now time.Time) (*token.ExchangeToken, error) {
	var out token.ExchangeToken
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(exchangeBucket)
		found, err := get(b, []byte(candidate.UserID), &out)
		if err != nil {
			return err
		}
		if found && out.ValidAt(now) {
			return nil
		}
		out = *candidate
		return put(b, []byte(candidate.UserID), candidate)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ExchangeRepo) PurgeExpiredExchange(_ context.Context, now time.Time) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(exchangeBucket)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var et token.ExchangeToken
			if err := json.Unmarshal(v, &et); err != nil {
				return err
			}
			if !et.ValidAt(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		return deleteKeys(b, expired)
	})
}

type RevocationRepo struct {
	db *bolt.DB
}

func (r *RevocationRepo) Revoke(_ context.Context, jti string, expiresAt, _ time.Time) (bool, error) {
	var first bool
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(revokedBucket)
		if b.Get([]byte(jti)) != nil {
			return nil
		}
		first = true
		return put(b, []byte(jti), expiresAt)
	})
	if err != nil {
		return false, err
	}
	return first, nil
}

func (r *RevocationRepo) IsRevoked(_ context.Context, jti string) (bool, error) {
	var revoked bool
	err := r.db.View(func(tx *bolt.Tx) error {
		revoked = tx.Bucket(revokedBucket).Get([]byte(jti)) != nil
		return nil
	})
	return revoked, err
}

func (r *RevocationRepo) PurgeRevoked(_ context.Context, now time.Time) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(revokedBucket)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var exp time.Time
			if err := json.Unmarshal(v, &exp); err != nil {
				return err
			}
			if now.After(exp) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		return deleteKeys(b, expired)
	})
}

func deleteKeys(b *bolt.Bucket, keys [][]byte) error {
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
