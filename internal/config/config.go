// Package config reads the gateway settings from the environment, after loading an optional .env file.
// Consumers depend on the narrow getter interfaces rather than on Settings.
package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	SecurityConfig
	StorageConfig
}

// Settings is the parsed environment. It implements Config.
type Settings struct {
	Env      string `env:"ENV" envDefault:"DEV"`
	Port     string `env:"PORT" envDefault:"8080"`
	AppName  string `env:"APP_NAME" envDefault:"LMS OAuth Gateway"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	Issuer               string        `env:"ISSUER" envDefault:"lms-oauth-gateway"`
	ServiceUser          string        `env:"SERVICE_USER" envDefault:"rest_sys_user"`
	AccessTokenTTL       time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	RefreshTokenTTL      time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	AuthCodeTTL          time.Duration `env:"AUTH_CODE_TTL" envDefault:"10m"`
	ExchangeTokenTTL     time.Duration `env:"EXCHANGE_TOKEN_TTL" envDefault:"60s"`
	AuthenticityTokenTTL time.Duration `env:"AUTHENTICITY_TOKEN_TTL" envDefault:"10m"`
	RefreshMaxUses       int           `env:"REFRESH_MAX_USES" envDefault:"100"`
	CallTimeout          time.Duration `env:"CALL_TIMEOUT" envDefault:"5s"`
	PurgeInterval        time.Duration `env:"PURGE_INTERVAL" envDefault:"5m"`

	SigningSecret  string `env:"TOKEN_SIGNING_SECRET"`
	SigningKeyFile string `env:"TOKEN_SIGNING_KEY_FILE"`

	StoreDriver    string `env:"STORE_DRIVER" envDefault:"sqlite"`
	SQLiteDSN      string `env:"SQLITE_DSN" envDefault:"./data/gateway.db"`
	BoltPath       string `env:"BOLT_PATH" envDefault:"./data/gateway.bolt"`
	RedisAddr      string `env:"REDIS_ADDR"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"lms-oauth:"`
	ProvisionFile  string `env:"PROVISION_FILE"`
}

var _ Config = (*Settings)(nil)

// Load applies .env (if present) to the process environment and parses it.
func Load() (*Settings, error) {
	_ = godotenv.Load()
	s := &Settings{}
	if err := env.Parse(s); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	if err := s.validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}
	return s, nil
}

// Parse reads settings from environ instead of the process environment.
func Parse(environ map[string]string) (*Settings, error) {
	s := &Settings{}
	if err := env.ParseWithOptions(s, env.Options{Environment: environ}); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	if err := s.validate(); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}
	return s, nil
}

func (s *Settings) validate() error {
	switch s.StoreDriver {
	case "sqlite", "bolt", "memory":
	default:
		return errors.Errorf("STORE_DRIVER must be sqlite, bolt or memory, got %q", s.StoreDriver)
	}
	ttls := map[string]time.Duration{
		"ACCESS_TOKEN_TTL":       s.AccessTokenTTL,
		"REFRESH_TOKEN_TTL":      s.RefreshTokenTTL,
		"AUTH_CODE_TTL":          s.AuthCodeTTL,
		"EXCHANGE_TOKEN_TTL":     s.ExchangeTokenTTL,
		"AUTHENTICITY_TOKEN_TTL": s.AuthenticityTokenTTL,
		"CALL_TIMEOUT":           s.CallTimeout,
		"PURGE_INTERVAL":         s.PurgeInterval,
	}
	for name, d := range ttls {
		if d <= 0 {
			return errors.Errorf("%s must be positive", name)
		}
	}
	if s.RefreshMaxUses < 0 {
		return errors.New("REFRESH_MAX_USES must not be negative")
	}
	if strings.TrimSpace(s.ServiceUser) == "" {
		return errors.New("SERVICE_USER must not be empty")
	}
	if s.SigningSecret != "" && s.SigningKeyFile != "" {
		return errors.New("set only one of TOKEN_SIGNING_SECRET and TOKEN_SIGNING_KEY_FILE")
	}
	if !s.IsDev() && s.SigningSecret == "" && s.SigningKeyFile == "" {
		return errors.New("TOKEN_SIGNING_SECRET or TOKEN_SIGNING_KEY_FILE is required outside DEV")
	}
	return nil
}
