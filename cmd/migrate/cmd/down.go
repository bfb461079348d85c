package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recently applied migration group",
	RunE: func(cmd *cobra.Command, args []string) error {
		migrator, closeDB, err := openMigrator()
		if err != nil {
			return err
		}
		defer closeDB()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		if err := migrator.Down(ctx); err != nil {
			slog.Error("down failed", "error", err)
			return err
		}
		slog.Info("migration group rolled back")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(downCmd)
}
