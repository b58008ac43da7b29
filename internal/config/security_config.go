package config

// SecurityConfig selects how access tokens are signed. Exactly one of the secret and the key file is
// set outside DEV.
type SecurityConfig interface {
	GetSigningSecret() string
	GetSigningKeyFile() string
}

func (s *Settings) GetSigningSecret() string {
	return s.SigningSecret
}

func (s *Settings) GetSigningKeyFile() string {
	return s.SigningKeyFile
}

