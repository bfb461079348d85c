// Package cmd implements the migrate CLI's subcommands.
package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/imagegenio/orchestrator/internal/infrastructure/storage"
	"github.com/imagegenio/orchestrator/migrations"
)

var databaseURL string

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the orchestrator's database schema",
	Long: `migrate applies and inspects the orchestrator's bun-based schema migrations.

Examples:
  migrate up
  migrate status
  migrate down
  migrate reset`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL database URL (overrides ORCH_DATABASE_URL env var)")

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
}

// openMigrator loads .env, resolves the database URL, connects, and
// builds a Migrator. Every subcommand shares this setup.
func openMigrator() (*storage.Migrator, func(), error) {
	_ = godotenv.Load()

	dbURL := databaseURL
	if dbURL == "" {
		dbURL = os.Getenv("ORCH_DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, errRequiredDatabaseURL
	}

	cfg := &storage.Config{
		DSN:             dbURL,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		Debug:           os.Getenv("DEBUG") == "true",
	}

	db, err := storage.NewDB(cfg)
	if err != nil {
		return nil, nil, err
	}

	migrator, err := storage.NewMigrator(db, migrations.FS)
	if err != nil {
		storage.Close(db)
		return nil, nil, err
	}

	return migrator, func() { storage.Close(db) }, nil
}

var errRequiredDatabaseURL = cmdError("ORCH_DATABASE_URL is required")

type cmdError string

func (e cmdError) Error() string { return string(e) }
