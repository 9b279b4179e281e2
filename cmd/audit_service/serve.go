package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/actualfyi/audit-service/internal/audit"
	"github.com/actualfyi/audit-service/internal/audit/stages"
	"github.com/actualfyi/audit-service/internal/config"
	"github.com/actualfyi/audit-service/internal/db"
	"github.com/actualfyi/audit-service/internal/llm"
	"github.com/actualfyi/audit-service/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server, dispatcher, and staleness supervisor",
	Long:  `Start the HTTP server together with the in-process worker pool that executes audit runs and the background supervisor that reclaims stale ones.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	client, err := llm.NewClient(ctx, llm.DefaultConfig(), cfg.GeminiAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer client.Close()

	svc := audit.NewService(database, cfg, stages.NewRegistry(client, nil))
	dispatcher := audit.NewDispatcher(svc)

	go func() {
		if err := dispatcher.Run(ctx); err != nil {
			log.Printf("dispatcher stopped: %v", err)
		}
	}()
	go func() {
		if err := svc.RunReaper(ctx); err != nil {
			log.Printf("reaper stopped: %v", err)
		}
	}()

	srv := server.New(server.Config{
		Port:         cfg.Port,
		WorkerSecret: cfg.WorkerSecret,
	}, database, svc)

	return srv.Start()
}
