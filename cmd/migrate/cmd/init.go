package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the migration tracking tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		migrator, closeDB, err := openMigrator()
		if err != nil {
			return err
		}
		defer closeDB()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		if err := migrator.Init(ctx); err != nil {
			slog.Error("init failed", "error", err)
			return err
		}
		slog.Info("migration tracking tables ready")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
