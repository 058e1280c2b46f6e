package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aimd54/judge-helpdesk-bot/internal/config"
	"github.com/aimd54/judge-helpdesk-bot/pkg/logger"
)

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "helpdesk",
		Short: "Tournament judge helpdesk bot",
		Long: `helpdesk is a Telegram bot where players file tickets for tournament judges.
Judges claim, comment on and close tickets; stale tickets are closed automatically.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./config.yaml)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}

	cmd.AddCommand(
		newServeCommand(load),
		newMigrateCommand(load),
		newConfigCommand(load),
	)

	return cmd
}

type configLoader func() (*config.Config, error)

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
}
