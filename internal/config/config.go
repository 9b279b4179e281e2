// Package config provides configuration loading and validation for the audit service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the audit service.
// Values come from the environment; zero values are filled from defaults.
type Config struct {
	// Infrastructure
	DatabaseURL  string // PostgreSQL connection URL (required)
	GeminiAPIKey string // Gemini API key for LLM stages (required for serve)
	WorkerSecret string // Shared secret guarding admin/worker endpoints

	// Server
	Port int

	// Run lifecycle
	RunTimeout        time.Duration // Hard wall-clock limit for one audit run
	HeartbeatInterval time.Duration // How often the runner proves liveness
	RunningStaleAfter time.Duration // running run with no heartbeat for this long is dead
	PendingStaleAfter time.Duration // pending run older than this is dead
	ReapInterval      time.Duration // How often the in-process reaper scans

	// Dispatcher
	WorkerCount  int           // Concurrent audit runners
	PollInterval time.Duration // Fallback poll for pending runs

	// Shadow spec
	StageTTLDays int // TTL metadata written with each persisted stage output
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		Port:              8080,
		RunTimeout:        300 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		RunningStaleAfter: 120 * time.Second,
		PendingStaleAfter: 300 * time.Second,
		ReapInterval:      60 * time.Second,
		WorkerCount:       4,
		PollInterval:      5 * time.Second,
		StageTTLDays:      30,
	}
}

// FromEnv loads configuration from environment variables, falling back to defaults.
func FromEnv() (Config, error) {
	cfg := Defaults()

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.WorkerSecret = os.Getenv("WORKER_SHARED_SECRET")

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}

	var err error
	if cfg.RunTimeout, err = durationEnv("AUDIT_RUN_TIMEOUT", cfg.RunTimeout); err != nil {
		return cfg, err
	}
	if cfg.HeartbeatInterval, err = durationEnv("AUDIT_HEARTBEAT_INTERVAL", cfg.HeartbeatInterval); err != nil {
		return cfg, err
	}
	if cfg.RunningStaleAfter, err = durationEnv("AUDIT_RUNNING_STALE_AFTER", cfg.RunningStaleAfter); err != nil {
		return cfg, err
	}
	if cfg.PendingStaleAfter, err = durationEnv("AUDIT_PENDING_STALE_AFTER", cfg.PendingStaleAfter); err != nil {
		return cfg, err
	}
	if cfg.ReapInterval, err = durationEnv("AUDIT_REAP_INTERVAL", cfg.ReapInterval); err != nil {
		return cfg, err
	}
	if cfg.PollInterval, err = durationEnv("AUDIT_POLL_INTERVAL", cfg.PollInterval); err != nil {
		return cfg, err
	}

	if v := os.Getenv("AUDIT_WORKER_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid AUDIT_WORKER_COUNT %q: %w", v, err)
		}
		cfg.WorkerCount = n
	}
	if v := os.Getenv("AUDIT_STAGE_TTL_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid AUDIT_STAGE_TTL_DAYS %q: %w", v, err)
		}
		cfg.StageTTLDays = n
	}

	return cfg, nil
}

// Validate checks that the configuration has usable values.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config error: DATABASE_URL is required")
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("config error: run timeout must be positive")
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatInterval >= c.RunningStaleAfter {
		return fmt.Errorf("config error: heartbeat interval must be positive and below the running-stale threshold")
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("config error: worker count must be positive")
	}
	return nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
