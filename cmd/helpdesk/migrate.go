package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aimd54/judge-helpdesk-bot/internal/repository"
)

func newMigrateCommand(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}
				log := newLogger(cfg)

				db, err := repository.NewDB(&cfg.Database, log)
				if err != nil {
					return err
				}
				defer db.Close()

				if err := db.Migrate(cmd.Context()); err != nil {
					return err
				}
				return printVersion(cmd, db)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the current schema version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := load()
				if err != nil {
					return err
				}

				db, err := repository.NewDB(&cfg.Database, newLogger(cfg))
				if err != nil {
					return err
				}
				defer db.Close()

				return printVersion(cmd, db)
			},
		},
	)

	return cmd
}

func printVersion(cmd *cobra.Command, db *repository.DB) error {
	version, dirty, err := db.MigrationVersion()
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	if dirty {
		fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty)\n", version)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "version %d\n", version)
	return nil
}
