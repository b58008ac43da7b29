package main

import (
	"os"

	"github.com/jrsteele09/lms-oauth-gateway/internal/config"
	"github.com/jrsteele09/lms-oauth-gateway/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	serve := newServeCommand()
	cmd := &cobra.Command{
		Use:   "lms-oauth-gateway",
		Short: "OAuth2 authorization server and session bridge for the learning platform",
		Long: `Issues OAuth2 bearer tokens (password, client_credentials, authorization_code, implicit and
refresh_token grants), converts host LMS sessions into bearer tokens and hands out short-lived
exchange tokens for passwordless host logins. Settings are read from the environment and an
optional .env file.`,
		SilenceUsage: true,
		Example: `
  # Serve with the default sqlite store
  TOKEN_SIGNING_SECRET=change-me lms-oauth-gateway

  # bbolt store with exchange tokens and revocations in redis
  STORE_DRIVER=bolt REDIS_ADDR=localhost:6379 lms-oauth-gateway serve

  # Seed clients, rules and users from a file
  lms-oauth-gateway provision --file provision.yaml`,
		RunE: serve.RunE,
	}
	cmd.AddCommand(serve, newMigrateCommand(), newProvisionCommand(), newKeygenCommand())
	return cmd
}

// loadSettings reads the configuration and builds the process logger from it.
func loadSettings() (*config.Settings, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := logging.New(cfg.GetEnv(), cfg.GetLogLevel(), os.Stderr).
		With().Str("app", cfg.GetAppName()).Logger()
	return cfg, logger, nil
}
