package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xaenox/lead-router/internal/storage"
	"go.uber.org/zap"
)

func migrateCMD(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			store, err := storage.NewPostgresStorage(cmd.Context(), databaseConfig(cfg), logger)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(); err != nil {
				logger.Error("Migration failed", zap.Error(err))
				return err
			}
			return nil
		},
	}
}
