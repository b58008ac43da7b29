package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/jrsteele09/lms-oauth-gateway/clients"
	apperrors "github.com/jrsteele09/lms-oauth-gateway/internal/errors"
	"github.com/jrsteele09/lms-oauth-gateway/permissions"
	bolt "go.etcd.io/bbolt"
)

var (
	_ clients.Repo        = (*ClientRepo)(nil)
	_ clients.ConsentRepo = (*ConsentRepo)(nil)
	_ permissions.Repo    = (*PermissionRepo)(nil)
)

// clientRecord persists the secret, which the API model never serializes.
type clientRecord struct {
	clients.Client
	APISecret string `json:"api_secret"`
}

type ClientRepo struct {
	db *bolt.DB
}

func (r *ClientRepo) Upsert(_ context.Context, client *clients.Client) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(clientsBucket), []byte(client.APIKey), clientRecord{Client: *client, APISecret: client.APISecret})
	})
}

func (r *ClientRepo) Delete(_ context.Context, apiKey string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(clientsBucket)
		if b.Get([]byte(apiKey)) == nil {
			return apperrors.Wrapf(apperrors.ErrNotFound, "client %s", apiKey)
		}
		return b.Delete([]byte(apiKey))
	})
}

func (r *ClientRepo) Get(_ context.Context, apiKey string) (*clients.Client, error) {
	var rec clientRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		found, err := get(tx.Bucket(clientsBucket), []byte(apiKey), &rec)
		if err != nil {
			return err
		}
		if !found {
			return apperrors.Wrapf(apperrors.ErrNotFound, "client %s", apiKey)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	client := rec.Client
	client.APISecret = rec.APISecret
	return &client, nil
}

// List pages through clients in key order, which bbolt keeps sorted.
func (r *ClientRepo) List(_ context.Context, offset, limit int) ([]*clients.Client, error) {
	var list []*clients.Client
	err := r.db.View(func(tx *bolt.Tx) error {
		skipped := 0
		return tx.Bucket(clientsBucket).ForEach(func(_, v []byte) error {
			if skipped < offset {
				skipped++
				return nil
			}
			if limit > 0 && len(list) >= limit {
				return nil
			}
			var rec clientRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			client := rec.Client
			client.APISecret = rec.APISecret
			list = append(list, &client)
			return nil
		})
	})
	return list, err
}

type ConsentRepo struct {
	db *bolt.DB
}

func (r *ConsentRepo) HasConsent(_ context.Context, apiKey, userID string) (bool, error) {
	var ok bool
	err := r.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(consentsBucket).Get(pairKey(apiKey, userID)) != nil
		return nil
	})
	return ok, err
}

func (r *ConsentRepo) RecordConsent(_ context.Context, apiKey, userID string, at time.Time) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(consentsBucket), pairKey(apiKey, userID), at)
	})
}

// PermissionRepo keys rules as client NUL pattern NUL verb so a prefix scan lists one client's rules.
type PermissionRepo struct {
	db *bolt.DB
}

func ruleKey(rule permissions.Rule) []byte {
	return []byte(rule.ClientID + "\x00" + rule.Pattern + "\x00" + rule.Verb)
}

func (r *PermissionRepo) AddRule(_ context.Context, rule permissions.Rule) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(permissionsBucket), ruleKey(rule), rule)
	})
}

func (r *PermissionRepo) RulesForClient(_ context.Context, clientID string) ([]permissions.Rule, error) {
	rules := []permissions.Rule{}
	prefix := []byte(clientID + "\x00")
	err := r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(permissionsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rule permissions.Rule
			if err := json.Unmarshal(v, &rule); err != nil {
				return err
			}
			rules = append(rules, rule)
		}
		return nil
	})
	return rules, err
}

func (r *PermissionRepo) DeleteRules(_ context.Context, clientID string) error {
	prefix := []byte(clientID + "\x00")
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(permissionsBucket)
		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, bytes.Clone(k))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
