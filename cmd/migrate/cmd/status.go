package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print which migrations have been applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		migrator, closeDB, err := openMigrator()
		if err != nil {
			return err
		}
		defer closeDB()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		if err := migrator.Status(ctx); err != nil {
			slog.Error("status failed", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
