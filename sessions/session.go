package sessions

import (
	"context"
	"crypto/subtle"
	"time"

	apperrors "github.com/jrsteele09/lms-oauth-gateway/internal/errors"
	"github.com/pkg/errors"
)

// ErrInvalidSession is returned for any host session that does not prove the claimed identity.
var ErrInvalidSession = errors.New("invalid host session")

// Session is an authenticated LMS web session. The host application writes these records; the
// gateway only reads them to bridge a browser session into a bearer token.
type Session struct {
	SessionID string    `json:"session_id" yaml:"session_id"` // Host session identifier (cookie value)
	UserID    string    `json:"user_id" yaml:"user_id"`       // Logged in user
	RToken    string    `json:"rtoken" yaml:"rtoken"`         // Request token issued by the host alongside the session
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"` // Host session expiry
}

type Repo interface {
	Upsert(ctx context.Context, session *Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Delete(ctx context.Context, sessionID string) error
}

// Validator checks that a (user, rtoken, session) triple belongs to a live host session.
type Validator interface {
	ValidateSession(ctx context.Context, userID, rtoken, sessionID string) error
}

// StoreValidator validates host sessions held in a Repo.
type StoreValidator struct {
	repo    Repo
	nowTime func() time.Time
}

var _ Validator = (*StoreValidator)(nil)

func NewStoreValidator(repo Repo, nowTime func() time.Time) *StoreValidator {
	if nowTime == nil {
		nowTime = time.Now
	}
	return &StoreValidator{repo: repo, nowTime: nowTime}
}

func (v *StoreValidator) ValidateSession(ctx context.Context, userID, rtoken, sessionID string) error {
	session, err := v.repo.Get(ctx, sessionID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return ErrInvalidSession
	}
	if err != nil {
		return errors.Wrap(err, "[StoreValidator.ValidateSession] repo.Get")
	}
	if rtoken == "" || session.UserID != userID || subtle.ConstantTimeCompare([]byte(session.RToken), []byte(rtoken)) != 1 {
		return ErrInvalidSession
	}
	if !session.ExpiresAt.IsZero() && !v.nowTime().Before(session.ExpiresAt) {
		return ErrInvalidSession
	}
	return nil
}
