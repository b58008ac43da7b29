package config

import "time"

type OAuthConfig interface {
	GetIssuer() string
	GetServiceUser() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetAuthCodeExpiry() time.Duration
	GetExchangeTokenExpiry() time.Duration
	GetAuthenticityTokenExpiry() time.Duration
	GetRefreshMaxUses() int
	GetCallTimeout() time.Duration
	GetPurgeInterval() time.Duration
}

func (s *Settings) GetIssuer() string                         { return s.Issuer }
func (s *Settings) GetServiceUser() string                    { return s.ServiceUser }
func (s *Settings) GetAccessTokenExpiry() time.Duration       { return s.AccessTokenTTL }
func (s *Settings) GetRefreshTokenExpiry() time.Duration      { return s.RefreshTokenTTL }
func (s *Settings) GetAuthCodeExpiry() time.Duration          { return s.AuthCodeTTL }
func (s *Settings) GetExchangeTokenExpiry() time.Duration     { return s.ExchangeTokenTTL }
func (s *Settings) GetAuthenticityTokenExpiry() time.Duration { return s.AuthenticityTokenTTL }
func (s *Settings) GetRefreshMaxUses() int                    { return s.RefreshMaxUses }
func (s *Settings) GetCallTimeout() time.Duration             { return s.CallTimeout }
func (s *Settings) GetPurgeInterval() time.Duration           { return s.PurgeInterval }
