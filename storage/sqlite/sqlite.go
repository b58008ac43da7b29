// Package sqlite stores every repository in a single SQLite database through sqlx. Single-use token
// state relies on atomic statements (DELETE ... RETURNING, conditional UPDATE, guarded upsert) rather
// than read-then-write.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	apperrors "github.com/jrsteele09/lms-oauth-gateway/internal/errors"
	"github.com/jrsteele09/lms-oauth-gateway/storage"
	"github.com/jrsteele09/lms-oauth-gateway/token"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

const driverName = "sqlite3"

//go:embed migrations/*.sql
var embedMigrations embed.FS

type Store struct {
	db *sqlx.DB
}

var _ storage.Backend = (*Store)(nil)

// Open connects to the database at dsn and applies pending migrations. A bare file path gets a busy
// timeout and WAL journaling.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, driverName, withDefaults(dsn))
	if err != nil {
		return nil, errors.Wrap(err, "[sqlite.Open] connect")
	}
	// SQLite has a single writer. One connection serializes statements instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func withDefaults(dsn string) string {
	if dsn == "" || strings.Contains(dsn, "?") || strings.HasPrefix(dsn, ":memory:") {
		return dsn
	}
	return "file:" + strings.TrimPrefix(dsn, "file:") + "?_busy_timeout=5000&_journal_mode=WAL"
}

// Migrate applies all pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	migrationFS, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "[Store.Migrate] sub filesystem")
	}
	provider, err := goose.NewProvider(database.DialectSQLite3, s.db.DB, migrationFS)
	if err != nil {
		return errors.Wrap(err, "[Store.Migrate] goose provider")
	}
	if _, err := provider.Up(ctx); err != nil {
		return errors.Wrap(err, "[Store.Migrate] apply migrations")
	}
	return nil
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Repos() storage.Repos {
	return storage.Repos{
		Clients:     &ClientRepo{db: s.db},
		Consents:    &ConsentRepo{db: s.db},
		Permissions: &PermissionRepo{db: s.db},
		Users:       &UserRepo{db: s.db},
		Sessions:    &SessionRepo{db: s.db},
		Tokens: token.Repos{
			Codes:    &CodeRepo{db: s.db},
			Refresh:  &RefreshRepo{db: s.db},
			Exchange: &ExchangeRepo{db: s.db},
			Revoked:  &RevocationRepo{db: s.db},
		},
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Timestamps are stored as unix nanoseconds; zero means unset.
func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.Wrapf(apperrors.ErrNotFound, format, args...)
	}
	return errors.Wrapf(err, format, args...)
}

func rollback(tx *sqlx.Tx) {
	_ = tx.Rollback()
}
