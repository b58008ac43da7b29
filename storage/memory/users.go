package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/lms-oauth-gateway/internal/errors"
	"github.com/jrsteele09/lms-oauth-gateway/users"
)

var _ users.Repo = (*UserRepo)(nil)

type UserRepo struct {
	users       map[string]users.User
	usernameIDs map[string]string // username to user id
	lock        sync.RWMutex
}

func NewUserRepo() *UserRepo {
	return &UserRepo{
		users:       make(map[string]users.User),
		usernameIDs: make(map[string]string),
	}
}

func (ur *UserRepo) Upsert(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if previous, ok := ur.users[user.ID]; ok && previous.Username != user.Username {
		delete(ur.usernameIDs, previous.Username)
	}
	ur.users[user.ID] = *user
	ur.usernameIDs[user.Username] = user.ID
	return nil
}

func (ur *UserRepo) GetByUsername(_ context.Context, username string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	id, ok := ur.usernameIDs[username]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "user %s", username)
	}
	user := ur.users[id]
	return &user, nil
}

func (ur *UserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	user, ok := ur.users[id]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "user id %s", id)
	}
	return &user, nil
}
