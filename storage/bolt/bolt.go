// Package bolt keeps every repository in a single bbolt file. bbolt runs one write transaction at a
// time, so each check-and-invalidate on token state happens inside one Update.
package bolt

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/jrsteele09/lms-oauth-gateway/storage"
	"github.com/jrsteele09/lms-oauth-gateway/token"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

const (
	dirPerm     = fs.FileMode(0o700)
	filePerm    = fs.FileMode(0o600)
	openTimeout = 5 * time.Second
)

var (
	clientsBucket       = []byte("clients")
	consentsBucket      = []byte("consents")
	permissionsBucket   = []byte("permissions")
	usersBucket         = []byte("users")
	usernamesBucket     = []byte("usernames")
	sessionsBucket      = []byte("host_sessions")
	codesBucket         = []byte("authorization_codes")
	refreshBucket       = []byte("refresh_tokens")
	refreshOwnersBucket = []byte("refresh_owners")
	exchangeBucket      = []byte("exchange_tokens")
	revokedBucket       = []byte("revoked_tokens")

	allBuckets = [][]byte{
		clientsBucket, consentsBucket, permissionsBucket, usersBucket, usernamesBucket, sessionsBucket,
		codesBucket, refreshBucket, refreshOwnersBucket, exchangeBucket, revokedBucket,
	}
)

type Store struct {
	db *bolt.DB
}

var _ storage.Backend = (*Store)(nil)

// Open opens the database at path, creating it and its buckets if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, errors.Wrap(err, "[bolt.Open] create directory")
	}
	db, err := bolt.Open(path, filePerm, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, errors.Wrap(err, "[bolt.Open] open")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[bolt.Open] create buckets")
	}
	return &Store{db: db}, nil
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

// hashKey is the bucket key for single-use secrets, so raw codes and refresh tokens are not on disk.
func hashKey(secret string) []byte {
	h := sha256.Sum256([]byte(secret))
	dst := make([]byte, hex.EncodedLen(len(h)))
	hex.Encode(dst, h[:])
	return dst
}

// pairKey joins two identifiers with a NUL separator.
func pairKey(a, b string) []byte {
	return []byte(a + "\x00" + b)
}

func put(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// get decodes the value at key into v and reports whether it existed.
func get(b *bolt.Bucket, key []byte, v any) (bool, error) {
	data := b.Get(key)
	if data == nil {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}
