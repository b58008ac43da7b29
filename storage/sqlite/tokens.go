package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	apperrors "github.com/jrsteele09/lms-oauth-gateway/internal/errors"
	"github.com/jrsteele09/lms-oauth-gateway/token"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var (
	_ token.CodeRepo       = (*CodeRepo)(nil)
	_ token.RefreshRepo    = (*RefreshRepo)(nil)
	_ token.ExchangeRepo   = (*ExchangeRepo)(nil)
	_ token.RevocationRepo = (*RevocationRepo)(nil)
)

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

type CodeRepo struct {
	db *sqlx.DB
}

type codeRow struct {
	Code        string `db:"code"`
	ClientID    string `db:"client_id"`
	UserID      string `db:"user_id"`
	RedirectURI string `db:"redirect_uri"`
	IssuedAt    int64  `db:"issued_at"`
	ExpiresAt   int64  `db:"expires_at"`
}

func (r *CodeRepo) SaveCode(ctx context.Context, code *token.AuthorizationCode) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO authorization_codes (code, client_id, user_id, redirect_uri, issued_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		code.Code, code.ClientID, code.UserID, code.RedirectURI, toUnix(code.IssuedAt), toUnix(code.ExpiresAt))
	if isConstraintViolation(err) {
		return apperrors.Wrapf(apperrors.ErrConflict, "code")
	}
	if err != nil {
		return errors.Wrap(err, "[CodeRepo.SaveCode]")
	}
	return nil
}

// ConsumeCode deletes and returns the code in one statement, so concurrent callers cannot both see it.
func (r *CodeRepo) ConsumeCode(ctx context.Context, code string, now time.Time) (*token.AuthorizationCode, error) {
	var row codeRow
	err := r.db.GetContext(ctx, &row, `
		DELETE FROM authorization_codes WHERE code = ?
		RETURNING code, client_id, user_id, redirect_uri, issued_at, expires_at`, code)
	if err != nil {
		return nil, notFound(err, "code")
	}
	ac := &token.AuthorizationCode{
		Code:        row.Code,
		ClientID:    row.ClientID,
		UserID:      row.UserID,
		RedirectURI: row.RedirectURI,
		IssuedAt:    fromUnix(row.IssuedAt),
		ExpiresAt:   fromUnix(row.ExpiresAt),
	}
	if !now.Before(ac.ExpiresAt) {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "code expired")
	}
	return ac, nil
}

func (r *CodeRepo) PurgeExpiredCodes(ctx context.Context, now time.Time) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM authorization_codes WHERE expires_at <= ?`, toUnix(now)); err != nil {
		return errors.Wrap(err, "[CodeRepo.PurgeExpiredCodes]")
	}
	return nil
}

type RefreshRepo struct {
	db *sqlx.DB
}

type refreshRow struct {
	Token          string `db:"token"`
	ClientID       string `db:"client_id"`
	UserID         string `db:"user_id"`
	NumRefreshLeft int    `db:"num_refresh_left"`
	IssuedAt       int64  `db:"init_timestamp"`
	LastRefresh    int64  `db:"last_refresh_timestamp"`
	NumResets      int    `db:"num_resets"`
	ExpiresAt      int64  `db:"expires_at"`
}

func (r refreshRow) record() *token.RefreshRecord {
	return &token.RefreshRecord{
		Token:          r.Token,
		ClientID:       r.ClientID,
		UserID:         r.UserID,
		NumRefreshLeft: r.NumRefreshLeft,
		IssuedAt:       fromUnix(r.IssuedAt),
		LastRefresh:    fromUnix(r.LastRefresh),
		NumResets:      r.NumResets,
		ExpiresAt:      fromUnix(r.ExpiresAt),
	}
}

const refreshColumns = `token, client_id, user_id, num_refresh_left, init_timestamp, last_refresh_timestamp, num_resets, expires_at`

func (r *RefreshRepo) SaveRefresh(ctx context.Context, rec *token.RefreshRecord) (*token.RefreshRecord, error) {
	var row refreshRow
	err := r.db.GetContext(ctx, &row, `
		INSERT INTO oauth2_grants (`+refreshColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (client_id, user_id) DO UPDATE SET
			token = excluded.token,
			num_refresh_left = excluded.num_refresh_left,
			init_timestamp = excluded.init_timestamp,
			last_refresh_timestamp = excluded.last_refresh_timestamp,
			num_resets = oauth2_grants.num_resets + 1,
			expires_at = excluded.expires_at
		RETURNING `+refreshColumns,
		rec.Token, rec.ClientID, rec.UserID, rec.NumRefreshLeft,
		toUnix(rec.IssuedAt), toUnix(rec.LastRefresh), rec.NumResets, toUnix(rec.ExpiresAt))
	if err != nil {
		return nil, errors.Wrap(err, "[RefreshRepo.SaveRefresh]")
	}
	return row.record(), nil
}

// RotateRefresh is a compare-and-swap on the token column: the update only matches while the old token
// is current, live and has uses left.
func (r *RefreshRepo) RotateRefresh(ctx context.Context, tokenStr, newToken string, now, expiresAt time.Time) (*token.RefreshRecord, error) {
	var row refreshRow
	err := r.db.GetContext(ctx, &row, `
		UPDATE oauth2_grants SET
			token = ?,
			num_refresh_left = num_refresh_left - 1,
			last_refresh_timestamp = ?,
			expires_at = ?
		WHERE token = ? AND expires_at > ? AND num_refresh_left > 0
		RETURNING `+refreshColumns,
		newToken, toUnix(now), toUnix(expiresAt), tokenStr, toUnix(now))
	if err == nil {
		return row.record(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(err, "[RefreshRepo.RotateRefresh]")
	}

	var left int
	err = r.db.GetContext(ctx, &left, `SELECT num_refresh_left FROM oauth2_grants WHERE token = ? AND expires_at > ?`, tokenStr, toUnix(now))
	if err != nil {
		return nil, notFound(err, "refresh token")
	}
	return nil, apperrors.Wrapf(apperrors.ErrExhausted, "refresh token")
}

func (r *RefreshRepo) GetRefresh(ctx context.Context, tokenStr string) (*token.RefreshRecord, error) {
	var row refreshRow
	if err := r.db.GetContext(ctx, &row, `SELECT `+refreshColumns+` FROM oauth2_grants WHERE token = ?`, tokenStr); err != nil {
		return nil, notFound(err, "refresh token")
	}
	return row.record(), nil
}

func (r *RefreshRepo) DeleteRefresh(ctx context.Context, tokenStr string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM oauth2_grants WHERE token = ?`, tokenStr)
	if err != nil {
		return errors.Wrap(err, "[RefreshRepo.DeleteRefresh]")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.Wrapf(apperrors.ErrNotFound, "refresh token")
	}
	return nil
}

func (r *RefreshRepo) PurgeExpiredRefresh(ctx context.Context, now time.Time) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM oauth2_grants WHERE expires_at <= ?`, toUnix(now)); err != nil {
		return errors.Wrap(err, "[RefreshRepo.PurgeExpiredRefresh]")
	}
	return nil
}

type ExchangeRepo struct {
	db *sqlx.DB
}

type exchangeRow struct {
	UserID    string `db:"user_id"`
	Token     string `db:"token"`
	ExpiresAt int64  `db:"expires_at"`
}

// FindOrCreateExchange inserts the candidate unless the user already holds a live token. The upsert
// only overwrites expired rows; when it writes nothing the live row is read back in the same
// transaction.
func (r *ExchangeRepo) FindOrCreateExchange(ctx context.Context, candidate *token.ExchangeToken, now time.Time) (*token.ExchangeToken, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[ExchangeRepo.FindOrCreateExchange] begin")
	}
	defer rollback(tx)

	var row exchangeRow
	err = tx.GetContext(ctx, &row, `
		INSERT INTO exchange_tokens (user_id, token, expires_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			token = excluded.token,
			expires_at = excluded.expires_at
		WHERE exchange_tokens.expires_at <= ?
		RETURNING user_id, token, expires_at`,
		candidate.UserID, candidate.Token, toUnix(candidate.ExpiresAt), toUnix(now))
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.GetContext(ctx, &row, `SELECT user_id, token, expires_at FROM exchange_tokens WHERE user_id = ?`, candidate.UserID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "[ExchangeRepo.FindOrCreateExchange]")
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "[ExchangeRepo.FindOrCreateExchange] commit")
	}
	return &token.ExchangeToken{Token: row.Token, UserID: row.UserID, ExpiresAt: fromUnix(row.ExpiresAt)}, nil
}

func (r *ExchangeRepo) PurgeExpiredExchange(ctx context.Context, now time.Time) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM exchange_tokens WHERE expires_at <= ?`, toUnix(now)); err != nil {
		return errors.Wrap(err, "[ExchangeRepo.PurgeExpiredExchange]")
	}
	return nil
}

type RevocationRepo struct {
	db *sqlx.DB
}

func (r *RevocationRepo) Revoke(ctx context.Context, jti string, expiresAt, _ time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO revoked_tokens (jti, expires_at) VALUES (?, ?) ON CONFLICT (jti) DO NOTHING`,
		jti, toUnix(expiresAt))
	if err != nil {
		return false, errors.Wrap(err, "[RevocationRepo.Revoke]")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "[RevocationRepo.Revoke] RowsAffected")
	}
	return n == 1, nil
}

func (r *RevocationRepo) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM revoked_tokens WHERE jti = ?`, jti); err != nil {
		return false, errors.Wrap(err, "[RevocationRepo.IsRevoked]")
	}
	return n > 0, nil
}

func (r *RevocationRepo) PurgeRevoked(ctx context.Context, now time.Time) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < ?`, toUnix(now)); err != nil {
		return errors.Wrap(err, "[RevocationRepo.PurgeRevoked]")
	}
	return nil
}
