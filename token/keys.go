package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Asymmetric algorithms a signing key file may hold.
const (
	AlgRS256 = "RS256"
	AlgES256 = "ES256"
	AlgES384 = "ES384"
	AlgES512 = "ES512"
)

const minRSABits = 2048

// KeyPair is an asymmetric signing key. KeyID is derived from the public key, so every process
// loading the same key file stamps the same "kid" header.
type KeyPair struct {
	KeyID      string
	PrivateKey crypto.Signer
	Algorithm  string
}

// PublicKey is the verification half of the pair.
func (kp *KeyPair) PublicKey() crypto.PublicKey {
	return kp.PrivateKey.Public()
}

// GenerateKeyPair creates a key for alg. rsaBits applies to RS256 only and is raised to 2048.
func GenerateKeyPair(alg string, rsaBits int) (*KeyPair, error) {
	var key crypto.Signer
	var err error
	switch alg {
	case AlgRS256:
		key, err = rsa.GenerateKey(rand.Reader, max(rsaBits, minRSABits))
	case AlgES256:
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case AlgES384:
		key, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case AlgES512:
		key, err = ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	default:
		return nil, errors.Errorf("[GenerateKeyPair] unsupported algorithm %q", alg)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[GenerateKeyPair] %s", alg)
	}
	return newKeyPair(key)
}

func newKeyPair(key crypto.Signer) (*KeyPair, error) {
	alg := AlgRS256
	if ec, ok := key.(*ecdsa.PrivateKey); ok {
		switch ec.Curve.Params().BitSize {
		case 384:
			alg = AlgES384
		case 521:
			alg = AlgES512
		default:
			alg = AlgES256
		}
	}
	der, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		return nil, errors.Wrap(err, "[newKeyPair] marshal public key")
	}
	sum := sha256.Sum256(der)
	return &KeyPair{
		KeyID:      base64.RawURLEncoding.EncodeToString(sum[:12]),
		PrivateKey: key,
		Algorithm:  alg,
	}, nil
}

// SigningMethod maps Algorithm onto its jwt signing method.
func (kp *KeyPair) SigningMethod() jwt.SigningMethod {
	if m := jwt.GetSigningMethod(kp.Algorithm); m != nil {
		return m
	}
	return jwt.SigningMethodRS256
}

// MarshalPEM encodes the private key as a PKCS#8 "PRIVATE KEY" block.
func (kp *KeyPair) MarshalPEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(kp.PrivateKey)
	if err != nil {
		return nil, errors.Wrap(err, "[KeyPair.MarshalPEM]")
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// ParseKeyPairPEM reads the first PEM block of data: PKCS#8, PKCS#1 RSA or SEC 1 EC.
func ParseKeyPairPEM(data []byte) (*KeyPair, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("[ParseKeyPairPEM] no PEM block found")
	}

	var key any
	var err error
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[ParseKeyPairPEM] %s", block.Type)
	}

	switch k := key.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey:
		return newKeyPair(k.(crypto.Signer))
	}
	return nil, errors.Errorf("[ParseKeyPairPEM] unsupported key type %T", key)
}
