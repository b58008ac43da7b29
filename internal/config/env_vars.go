package config

import "strings"

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	IsDev() bool
}

// GetPort returns the listen address, always prefixed with ':' when only a port was configured.
func (s *Settings) GetPort() string {
	if strings.Contains(s.Port, ":") {
		return s.Port
	}
	return ":" + s.Port
}

func (s *Settings) GetAppName() string {
	return s.AppName
}

func (s *Settings) GetEnv() string {
	return s.Env
}

func (s *Settings) GetLogLevel() string {
	return s.LogLevel
}

func (s *Settings) IsDev() bool {
	return strings.EqualFold(s.Env, "DEV")
}
