package users

import (
	"context"

	apperrors "github.com/jrsteele09/lms-oauth-gateway/internal/errors"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// ErrLoginFailed is the only failure a credential check reports. It never says whether the username
// or the password was wrong.
var ErrLoginFailed = errors.New("login failed")

// User is an LMS account as seen by the credential check.
type User struct {
	ID           string `json:"id" yaml:"id"`
	Username     string `json:"username" yaml:"username"`
	PasswordHash string `json:"-" yaml:"-"`
	Blocked      bool   `json:"blocked,omitempty" yaml:"blocked"`
}

// Validator verifies end-user credentials and returns the user id they belong to.
type Validator interface {
	VerifyUserCredentials(ctx context.Context, username, password string) (string, error)
}

// PasswordValidator checks bcrypt password hashes held in a users Repo.
type PasswordValidator struct {
	repo      Repo
	dummyHash string
}

var _ Validator = (*PasswordValidator)(nil)

func NewPasswordValidator(repo Repo) (*PasswordValidator, error) {
	if repo == nil {
		return nil, errors.New("[NewPasswordValidator] users repo is required")
	}
	// Unknown usernames are compared against this hash so both failure paths cost one bcrypt comparison.
	dummy, err := HashPassword("unknown-user")
	if err != nil {
		return nil, errors.Wrap(err, "[NewPasswordValidator] HashPassword")
	}
	return &PasswordValidator{repo: repo, dummyHash: dummy}, nil
}

// VerifyUserCredentials returns the user id for a matching username and password, ErrLoginFailed for any
// mismatch and a wrapped error when the repo fails.
func (v *PasswordValidator) VerifyUserCredentials(ctx context.Context, username, password string) (string, error) {
	user, err := v.repo.GetByUsername(ctx, username)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		CheckPasswordHash(password, v.dummyHash)
		return "", ErrLoginFailed
	}
	if err != nil {
		return "", errors.Wrap(err, "[PasswordValidator.VerifyUserCredentials] GetByUsername")
	}
	if !CheckPasswordHash(password, user.PasswordHash) || user.Blocked {
		return "", ErrLoginFailed
	}
	return user.ID, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
