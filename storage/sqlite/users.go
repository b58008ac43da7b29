package sqlite

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	apperrors "github.com/jrsteele09/lms-oauth-gateway/internal/errors"
	"github.com/jrsteele09/lms-oauth-gateway/permissions"
	"github.com/jrsteele09/lms-oauth-gateway/sessions"
	"github.com/jrsteele09/lms-oauth-gateway/users"
	"github.com/pkg/errors"
)

var (
	_ users.Repo       = (*UserRepo)(nil)
	_ sessions.Repo    = (*SessionRepo)(nil)
	_ permissions.Repo = (*PermissionRepo)(nil)
)

type UserRepo struct {
	db *sqlx.DB
}

type userRow struct {
	ID           string `db:"id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password_hash"`
	Blocked      bool   `db:"blocked"`
}

func (r *UserRepo) Upsert(ctx context.Context, user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, blocked) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			password_hash = excluded.password_hash,
			blocked = excluded.blocked`,
		user.ID, user.Username, user.PasswordHash, user.Blocked)
	if err != nil {
		return errors.Wrap(err, "[UserRepo.Upsert]")
	}
	return nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, `SELECT id, username, password_hash, blocked FROM users WHERE username = ?`, username); err != nil {
		return nil, notFound(err, "user %s", username)
	}
	return &users.User{ID: row.ID, Username: row.Username, PasswordHash: row.PasswordHash, Blocked: row.Blocked}, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	var row userRow
	if err := r.db.GetContext(ctx, &row, `SELECT id, username, password_hash, blocked FROM users WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "user id %s", id)
	}
	return &users.User{ID: row.ID, Username: row.Username, PasswordHash: row.PasswordHash, Blocked: row.Blocked}, nil
}

type SessionRepo struct {
	db *sqlx.DB
}

type sessionRow struct {
	SessionID string `db:"session_id"`
	UserID    string `db:"user_id"`
	RToken    string `db:"rtoken"`
	ExpiresAt int64  `db:"expires_at"`
}

func (r *SessionRepo) Upsert(ctx context.Context, session *sessions.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO host_sessions (session_id, user_id, rtoken, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			user_id = excluded.user_id,
			rtoken = excluded.rtoken,
			expires_at = excluded.expires_at`,
		session.SessionID, session.UserID, session.RToken, toUnix(session.ExpiresAt))
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.Upsert]")
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, sessionID string) (*sessions.Session, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row, `SELECT session_id, user_id, rtoken, expires_at FROM host_sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, notFound(err, "session %s", sessionID)
	}
	return &sessions.Session{SessionID: row.SessionID, UserID: row.UserID, RToken: row.RToken, ExpiresAt: fromUnix(row.ExpiresAt)}, nil
}

func (r *SessionRepo) Delete(ctx context.Context, sessionID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM host_sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return errors.Wrap(err, "[SessionRepo.Delete]")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Wrapf(apperrors.ErrNotFound, "session %s", sessionID)
	}
	return nil
}

type PermissionRepo struct {
	db *sqlx.DB
}

func (r *PermissionRepo) AddRule(ctx context.Context, rule permissions.Rule) error {
	_, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO permission_rules (client_id, pattern, verb) VALUES (?, ?, ?)`,
		rule.ClientID, rule.Pattern, rule.Verb)
	if err != nil {
		return errors.Wrap(err, "[PermissionRepo.AddRule]")
	}
	return nil
}

func (r *PermissionRepo) RulesForClient(ctx context.Context, clientID string) ([]permissions.Rule, error) {
	var rows []struct {
		ClientID string `db:"client_id"`
		Pattern  string `db:"pattern"`
		Verb     string `db:"verb"`
	}
	err := r.db.SelectContext(ctx, &rows, `SELECT client_id, pattern, verb FROM permission_rules WHERE client_id = ?`, clientID)
	if err != nil {
		return nil, errors.Wrap(err, "[PermissionRepo.RulesForClient]")
	}
	rules := make([]permissions.Rule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, permissions.Rule{ClientID: row.ClientID, Pattern: row.Pattern, Verb: row.Verb})
	}
	return rules, nil
}

func (r *PermissionRepo) DeleteRules(ctx context.Context, clientID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM permission_rules WHERE client_id = ?`, clientID); err != nil {
		return errors.Wrap(err, "[PermissionRepo.DeleteRules]")
	}
	return nil
}
