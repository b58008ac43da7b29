package memory

import (
	"context"
	"sync"

	apperrors "github.com/jrsteele09/lms-oauth-gateway/internal/errors"
	"github.com/jrsteele09/lms-oauth-gateway/sessions"
)

var _ sessions.Repo = (*SessionRepo)(nil)

type SessionRepo struct {
	sessions map[string]sessions.Session
	lock     sync.RWMutex
}

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{sessions: make(map[string]sessions.Session)}
}

func (sr *SessionRepo) Upsert(_ context.Context, session *sessions.Session) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	sr.sessions[session.SessionID] = *session
	return nil
}

func (sr *SessionRepo) Get(_ context.Context, sessionID string) (*sessions.Session, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()
	s, ok := sr.sessions[sessionID]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "session %s", sessionID)
	}
	return &s, nil
}

func (sr *SessionRepo) Delete(_ context.Context, sessionID string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()
	delete(sr.sessions, sessionID)
	return nil
}
