package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the configured store schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadSettings()
			if err != nil {
				return err
			}
			// Opening a store migrates it.
			store, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			logger.Info().Str("driver", cfg.GetStoreDriver()).Msg("store schema is up to date")
			return store.Close()
		},
	}
}
