package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/jrsteele09/lms-oauth-gateway/internal/provision"
	"github.com/jrsteele09/lms-oauth-gateway/storage"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newProvisionCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Seed clients, permission rules, users and host sessions into the store",
		Long: `Applies a YAML seed file, or the built-in default seed (the primary client and its
permission rules) when no file is given. Re-running is safe: clients keep their stored
secret unless the seed sets one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadSettings()
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.GetProvisionFile()
			}
			store, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			summary, err := provisionStore(cmd.Context(), store.repos, file)
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML seed file (defaults to PROVISION_FILE, then the built-in seed)")
	return cmd
}

// provisionStore applies the seed in path, or the default seed when path is empty.
func provisionStore(ctx context.Context, repos storage.Repos, path string) (*provision.Summary, error) {
	seed := provision.Default()
	if path != "" {
		var err error
		if seed, err = provision.Load(path); err != nil {
			return nil, err
		}
	}
	summary, err := provision.Apply(ctx, repos, seed)
	if err != nil {
		return nil, errors.Wrap(err, "provision store")
	}
	return summary, nil
}

func printSummary(w io.Writer, summary *provision.Summary) error {
	if _, err := fmt.Fprintf(w, "clients: %d\nrules: %d\nusers: %d\nsessions: %d\n",
		summary.Clients, summary.Rules, summary.Users, summary.Sessions); err != nil {
		return err
	}
	return printGeneratedSecrets(w, summary.GeneratedSecrets)
}

func printGeneratedSecrets(w io.Writer, secrets map[string]string) error {
	for _, k := range slices.Sorted(maps.Keys(secrets)) {
		if _, err := fmt.Fprintf(w, "generated secret for %s: %s\n", k, secrets[k]); err != nil {
			return err
		}
	}
	return nil
}
