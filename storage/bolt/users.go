package bolt

import (
	"context"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/lms-oauth-gateway/internal/errors"
	"github.com/jrsteele09/lms-oauth-gateway/sessions"
	"github.com/jrsteele09/lms-oauth-gateway/users"
	bolt "go.etcd.io/bbolt"
)

var (
	_ users.Repo    = (*UserRepo)(nil)
	_ sessions.Repo = (*SessionRepo)(nil)
)

type userRecord struct {
	users.User
	PasswordHash string `json:"password_hash"`
}

// UserRepo stores users by id with a username index bucket.
type UserRepo struct {
	db *bolt.DB
}

func (r *UserRepo) Upsert(_ context.Context, user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		byID := tx.Bucket(usersBucket)
		names := tx.Bucket(usernamesBucket)

		var previous userRecord
		found, err := get(byID, []byte(user.ID), &previous)
		if err != nil {
			return err
		}
		if found && previous.Username != user.Username {
			if err := names.Delete([]byte(previous.Username)); err != nil {
				return err
			}
		}
		if err := put(byID, []byte(user.ID), userRecord{User: *user, PasswordHash: user.PasswordHash}); err != nil {
			return err
		}
		return names.Put([]byte(user.Username), []byte(user.ID))
	})
}

func (r *UserRepo) GetByUsername(_ context.Context, username string) (*users.User, error) {
	var rec userRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(usernamesBucket).Get([]byte(username))
		if id == nil {
			return apperrors.Wrapf(apperrors.ErrNotFound, "user %s", username)
		}
		return getUser(tx, id, &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec.toUser(), nil
}

func (r *UserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	var rec userRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		return getUser(tx, []byte(id), &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec.toUser(), nil
}

func getUser(tx *bolt.Tx, id []byte, rec *userRecord) error {
	found, err := get(tx.Bucket(usersBucket), id, rec)
	if err != nil {
		return err
	}
	if !found {
		return apperrors.Wrapf(apperrors.ErrNotFound, "user id %s", id)
	}
	return nil
}

func (rec *userRecord) toUser() *users.User {
	user := rec.User
	user.PasswordHash = rec.PasswordHash
	return &user
}

type SessionRepo struct {
	db *bolt.DB
}

func (r *SessionRepo) Upsert(_ context.Context, session *sessions.Session) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(sessionsBucket), []byte(session.SessionID), session)
	})
}

func (r *SessionRepo) Get(_ context.Context, sessionID string) (*sessions.Session, error) {
	var session sessions.Session
	err := r.db.View(func(tx *bolt.Tx) error {
		found, err := get(tx.Bucket(sessionsBucket), []byte(sessionID), &session)
		if err != nil {
			return err
		}
		if !found {
			return apperrors.Wrapf(apperrors.ErrNotFound, "session %s", sessionID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepo) Delete(_ context.Context, sessionID string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(sessionID))
	})
}
