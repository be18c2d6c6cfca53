// Package commands implements the transferd CLI: the serve command
// that runs the server, and the admin subcommands for database and
// filesystem maintenance.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/transferd/internal/logger"
	"github.com/marmos91/transferd/internal/version"
	"github.com/marmos91/transferd/pkg/config"
)

// Build-time variables injected via ldflags.
var (
	Commit = "none"
	Date   = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "transferd",
	Short: "transferd - encrypted blob custodian",
	Long: `transferd accepts opaque, client-encrypted blobs, stores them under a
randomly issued key, and returns them to any client that proves
knowledge of an access secret. The server never sees plaintext, file
names, or decryption material.

Use "transferd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: $CONFIG_DIR/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("transferd %s (commit: %s, built: %s)\n", version.Version, Commit, Date)
	},
}

// getConfigFile returns the --config flag value.
func getConfigFile(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}

// loadConfig loads configuration and initializes the structured logger
// from it, the shared preamble of every subcommand that touches the
// database or the upload directory.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(getConfigFile(cmd))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}
