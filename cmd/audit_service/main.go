// Package main provides the entry point for the audit service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "audit_service",
	Short: "Actual.fyi audit service",
	Long:  "Runs multi-stage audits of hardware product specifications, comparing manufacturer claims against independently gathered evidence and producing a Truth Index score.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
