// Package cmd contains the CLI commands for staleguard.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/staleguard/internal/storage"
	"github.com/good-yellow-bee/staleguard/pkg/config"
)

var (
	// Used for flags
	cfgFile string
	verbose bool
	output  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "staleguard",
	Short: "StaleGuard - Outdated-Asset Notification Engine",
	Long: `StaleGuard notifies asset owners about unresolved vulnerability
findings that have exceeded their remediation deadline.

It tracks per-asset reminder state across runs, escalates reminder
severity over time, aggregates all of an owner's overdue assets into a
single message, and keeps a durable audit trail of every delivery
attempt.

Examples:
  # Evaluate and send due notifications
  staleguard run

  # Preview what would be sent without sending or mutating state
  staleguard run --dry-run -v

  # Run every 24 hours with a metrics endpoint
  staleguard run --every 24h

  # Inspect the delivery audit trail
  staleguard audit list --status failed --from 2026-08-01`,
	// Run when no subcommand is specified
	Run: func(cmd *cobra.Command, args []string) {
		// Show help by default
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "staleguard.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json, plain)")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// GetOutput returns the output format.
func GetOutput() string {
	return output
}

// PrintError prints an error message and exits if fatal is true.
func PrintError(msg string, fatal bool) {
	fmt.Fprintln(os.Stderr, "Error:", msg)
	if fatal {
		os.Exit(1)
	}
}

// PrintVerbose prints a message only if verbose mode is enabled.
func PrintVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(format+"\n", args...)
	}
}

// loadEngineConfig loads the config file, falling back to defaults when
// the file does not exist.
func loadEngineConfig() (*config.Config, error) {
	if _, err := os.Stat(cfgFile); err == nil {
		cfg, err := config.LoadConfig(cfgFile)
		if err != nil {
			return nil, err
		}
		cfg.Verbose = verbose
		return cfg, nil
	}
	cfg := config.DefaultConfig()
	cfg.Verbose = verbose
	return cfg, nil
}

// openStorage opens and migrates the engine database.
func openStorage(cfg *config.Config) (*storage.SQLiteStorage, error) {
	store := storage.NewSQLiteStorage(cfg.Database)
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate storage: %w", err)
	}
	return store, nil
}
