package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"alphawatch/internal/app"
)

var (
	cleanupDays int
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete ended schedules past the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cleanupDays <= 0 {
			return fmt.Errorf("--days must be greater than zero")
		}

		return getApp().Cleanup(cmd.Context(), app.CleanupOptions{Days: cleanupDays})
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 7, "Retention window in days")
}
