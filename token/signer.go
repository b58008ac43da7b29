package token

import (
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer signs access and authenticity tokens and supplies the key to verify them.
type Signer interface {
	// Sign creates a signed JWT from claims
	Sign(claims jwt.MapClaims) (string, error)

	// GetVerificationKey is a jwt.Keyfunc returning the key that verifies token
	GetVerificationKey(token *jwt.Token) (any, error)

	// GetSigningMethod returns the JWT signing method used
	GetSigningMethod() jwt.SigningMethod
}

// HMACSigner signs with a shared secret (HS256).
type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{secret: []byte(secret)}
}

func (s *HMACSigner) Sign(claims jwt.MapClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "[HMACSigner.Sign]")
	}
	return signed, nil
}

func (s *HMACSigner) GetVerificationKey(t *jwt.Token) (any, error) {
	if t.Method != jwt.SigningMethodHS256 {
		return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return s.secret, nil
}

func (s *HMACSigner) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}

// KeyPairSigner signs with an RSA or ECDSA key and stamps the key id as "kid".
type KeyPairSigner struct {
	keyPair *KeyPair
}

func NewKeyPairSigner(keyPair *KeyPair) *KeyPairSigner {
	return &KeyPairSigner{keyPair: keyPair}
}

func (s *KeyPairSigner) Sign(claims jwt.MapClaims) (string, error) {
	t := jwt.NewWithClaims(s.keyPair.SigningMethod(), claims)
	t.Header["kid"] = s.keyPair.KeyID
	signed, err := t.SignedString(s.keyPair.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "[KeyPairSigner.Sign]")
	}
	return signed, nil
}

// GetVerificationKey rejects tokens signed with another algorithm or carrying a different kid.
func (s *KeyPairSigner) GetVerificationKey(t *jwt.Token) (any, error) {
	if t.Method.Alg() != s.keyPair.Algorithm {
		return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	if kid, ok := t.Header["kid"].(string); ok && kid != s.keyPair.KeyID {
		return nil, errors.Errorf("unknown key id %q", kid)
	}
	return s.keyPair.PublicKey(), nil
}

func (s *KeyPairSigner) GetSigningMethod() jwt.SigningMethod {
	return s.keyPair.SigningMethod()
}

// NewSigner builds the configured signer: a PEM private key file wins over an HMAC secret.
func NewSigner(hmacSecret, keyFile string) (Signer, error) {
	if keyFile != "" {
		pemData, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, errors.Wrap(err, "[NewSigner] read signing key")
		}
		keyPair, err := ParseKeyPairPEM(pemData)
		if err != nil {
			return nil, errors.Wrap(err, "[NewSigner]")
		}
		return NewKeyPairSigner(keyPair), nil
	}
	if hmacSecret == "" {
		return nil, errors.New("[NewSigner] either a signing secret or a signing key file is required")
	}
	return NewHMACSigner(hmacSecret), nil
}
