package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/marmos91/transferd/internal/logger"
	"github.com/marmos91/transferd/pkg/config"
	"github.com/marmos91/transferd/pkg/reaper"
	"github.com/marmos91/transferd/pkg/store"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative maintenance commands",
}

var adminDatabaseCmd = &cobra.Command{
	Use:   "database",
	Short: "Manage the metadata database",
}

var adminDatabaseSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the database schema and seed the status row",
	Long: `Create the metadata database, run the schema migration, and seed the
singleton status row. Safe to run repeatedly; existing data is
untouched.`,
	RunE: runDatabaseSetup,
}

var adminDatabaseMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Apply pending schema migrations to the configured metadata database
(SQLite or PostgreSQL). Required after upgrading transferd when schema
changes have been made.`,
	RunE: runDatabaseMigrate,
}

var adminDatabaseShellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Open an interactive shell on the metadata database",
	RunE:  runDatabaseShell,
}

var adminSweepFilesCmd = &cobra.Command{
	Use:   "sweep-files",
	Short: "Reconcile the upload directory against the metadata store",
	Long: `Walk the upload directory and unlink every file whose name parses as a
UUID that does not map to a live upload. This is the backstop for
unlink failures in the delete handler and the reaper.

With --dry-run, orphan files are listed but not removed.`,
	RunE: runSweepFiles,
}

var adminConfigDirCmd = &cobra.Command{
	Use:   "config-dir",
	Short: "Show the configuration directory",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.GetConfigDir())
		if config.DefaultConfigExists() {
			fmt.Printf("config file: %s\n", config.GetDefaultConfigPath())
		} else {
			fmt.Println("config file: not found (defaults in effect)")
		}
	},
}

func init() {
	adminSweepFilesCmd.Flags().Bool("dry-run", false, "List orphan files without removing them")

	adminDatabaseCmd.AddCommand(adminDatabaseSetupCmd)
	adminDatabaseCmd.AddCommand(adminDatabaseMigrateCmd)
	adminDatabaseCmd.AddCommand(adminDatabaseShellCmd)
	adminCmd.AddCommand(adminDatabaseCmd)
	adminCmd.AddCommand(adminSweepFilesCmd)
	adminCmd.AddCommand(adminConfigDirCmd)
}

func runDatabaseSetup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger.Info("Setting up database", "type", cfg.Database.Type)

	metadataStore, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}
	defer func() { _ = metadataStore.Close() }()

	status, err := readStatus(metadataStore)
	if err != nil {
		return fmt.Errorf("setup verification failed: %w", err)
	}

	fmt.Printf("Database ready (type: %s)\n", cfg.Database.Type)
	fmt.Printf("Current usage: %s across %d uploads\n",
		humanize.Bytes(uint64(status.TotalBytes)), status.UploadCount)
	return nil
}

func runDatabaseMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger.Info("Running database migrations", "type", cfg.Database.Type)

	metadataStore, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer func() { _ = metadataStore.Close() }()

	if _, err := readStatus(metadataStore); err != nil {
		return fmt.Errorf("migration verification failed: %w", err)
	}

	fmt.Printf("Migrations completed successfully (database type: %s)\n", cfg.Database.Type)
	return nil
}

func runDatabaseShell(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var shell *exec.Cmd
	switch cfg.Database.Type {
	case store.DatabaseTypeSQLite:
		shell = exec.Command("sqlite3", cfg.Database.SQLite.Path)
	case store.DatabaseTypePostgres:
		pg := cfg.Database.Postgres
		shell = exec.Command("psql",
			"-h", pg.Host,
			"-p", fmt.Sprintf("%d", pg.Port),
			"-U", pg.User,
			"-d", pg.Database,
		)
		shell.Env = append(os.Environ(), "PGPASSWORD="+pg.Password)
	default:
		return fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}

	shell.Stdin = os.Stdin
	shell.Stdout = os.Stdout
	shell.Stderr = os.Stderr
	return shell.Run()
}

func runSweepFiles(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	metadataStore, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() { _ = metadataStore.Close() }()

	sweeper := reaper.New(metadataStore, reaper.Config{
		UploadDir:           cfg.Upload.Dir,
		UploadTimeoutSecs:   cfg.Upload.TimeoutSecs,
		DownloadTimeoutSecs: cfg.Download.TimeoutSecs,
		SweepIntervalSecs:   cfg.Reaper.SweepIntervalSecs,
	}, nil)

	result, err := sweeper.Reconcile(context.Background(), dryRun)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	for _, name := range result.OrphanFiles {
		fmt.Println(name)
	}
	if dryRun {
		fmt.Printf("Found %d orphan files (dry run, nothing removed)\n", len(result.OrphanFiles))
	} else {
		fmt.Printf("Removed %d of %d orphan files\n", result.Removed, len(result.OrphanFiles))
	}
	return nil
}

func readStatus(s *store.Store) (*store.Status, error) {
	var status *store.Status
	err := s.Transaction(context.Background(), func(tx *gorm.DB) error {
		row, err := store.GetStatus(tx)
		if err != nil {
			return err
		}
		status = row
		return nil
	})
	return status, err
}
