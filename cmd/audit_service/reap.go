package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/actualfyi/audit-service/internal/audit"
	"github.com/actualfyi/audit-service/internal/config"
	"github.com/actualfyi/audit-service/internal/db"
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Force-fail stale audit runs and exit",
	Long:  `One-shot supervisor scan: marks running runs with expired heartbeats and over-age pending runs as errored. Intended as a cron target alongside the in-process supervisor.`,
	RunE:  runReap,
}

func init() {
	rootCmd.AddCommand(reapCmd)
}

func runReap(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	svc := audit.NewService(database, cfg, nil)
	reaped, err := svc.Reap(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("reaped %d stale run(s)\n", len(reaped))
	return nil
}
