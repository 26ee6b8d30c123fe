// Command nlsqld runs the nlsql natural-language-to-SQL orchestrator,
// either as a stdio MCP server (the default) or as a batch evaluator
// over a JSONL scenario file (spec.md §6 CLI exit codes), grounded on
// the teacher's cmd/nerd/main.go cobra root + PersistentPreRunE logger
// bootstrap.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nlsql/internal/config"
	"nlsql/internal/logging"
)

var (
	configPath string
	databaseID string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "nlsqld",
	Short: "nlsql - a natural-language-to-SQL orchestrator",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			os.Exit(exitConfigError)
		}
		cfg = loaded
		if err := logging.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

const (
	exitSuccess             = 0
	exitConfigError         = 1
	exitExternalUnavailable = 2
	exitInternalError       = 3
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML configuration override file")
	rootCmd.PersistentFlags().StringVar(&databaseID, "database-id", "default", "logical database id for the RAG schema index")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(evalCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitInternalError)
	}
}
