package main

import (
	"context"
	"io"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/jrsteele09/lms-oauth-gateway/internal/config"
	"github.com/jrsteele09/lms-oauth-gateway/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadSettings()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout(), logger)
		},
	}
}

func run(ctx context.Context, cfg *config.Settings, out io.Writer, logger zerolog.Logger) error {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := provisionStore(ctx, store.repos, cfg.GetProvisionFile())
	if err != nil {
		return err
	}
	if err := reportGeneratedSecrets(out, summary.GeneratedSecrets, logger); err != nil {
		return err
	}

	gw, err := buildGateway(cfg, store.repos, logger)
	if err != nil {
		return err
	}

	displayAppname(cfg.GetAppName())
	logger.Info().
		Str("env", cfg.GetEnv()).
		Str("store", cfg.GetStoreDriver()).
		Stringer("cors_origins", cfg.GetAllowedOrigins()).
		Msg("gateway configured")
	srv := &http.Server{
		Addr:              cfg.GetPort(),
		Handler:           gw.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listenAndServe(srv, logger)
	})
	g.Go(func() error {
		purgeLoop(gctx, gw.tokens, cfg.GetPurgeInterval(), logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(srv)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// reportGeneratedSecrets prints freshly generated client secrets to out. The log only names the clients.
func reportGeneratedSecrets(out io.Writer, secrets map[string]string, logger zerolog.Logger) error {
	if len(secrets) == 0 {
		return nil
	}
	if err := printGeneratedSecrets(out, secrets); err != nil {
		return errors.Wrap(err, "print generated secrets")
	}
	logger.Warn().Strs("api_keys", slices.Sorted(maps.Keys(secrets))).
		Msg("generated client secrets printed to stdout, store them now, they are not shown again")
	return nil
}

func listenAndServe(srv *http.Server, logger zerolog.Logger) error {
	logger.Info().Str("addr", srv.Addr).Msg("server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server.ListenAndServe")
	}
	return nil
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

// purgeLoop drops expired codes, refresh records, exchange tokens and revocation entries every interval
// until ctx ends.
func purgeLoop(ctx context.Context, tokens *token.Manager, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := tokens.PurgeExpired(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("purging expired tokens failed")
			}
		}
	}
}
