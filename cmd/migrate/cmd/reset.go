package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Roll back every applied migration (does not reapply them)",
	RunE: func(cmd *cobra.Command, args []string) error {
		migrator, closeDB, err := openMigrator()
		if err != nil {
			return err
		}
		defer closeDB()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		if err := migrator.Reset(ctx); err != nil {
			slog.Error("reset failed", "error", err)
			return err
		}
		slog.Info("schema reset")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
