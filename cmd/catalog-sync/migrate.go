package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shubhsaxena/catalog-search/internal/store"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the product mirror schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := opts.load()
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			db, err := store.Open(e.cfg.Database, e.logger)
			if err != nil {
				return fmt.Errorf("opening product mirror: %w", err)
			}
			defer db.Close()

			if err := db.EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("creating schema: %w", err)
			}
			e.logger.Info("product mirror schema ready", zap.String("driver", e.cfg.Database.Driver))
			return nil
		},
	}
}
