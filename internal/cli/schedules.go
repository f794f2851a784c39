package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"alphawatch/internal/app"
)

var (
	schedulesDays int
)

var schedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "Display upcoming claim schedules",
	RunE: func(cmd *cobra.Command, args []string) error {
		if schedulesDays <= 0 {
			return fmt.Errorf("--days must be greater than zero")
		}

		opts := app.ScheduleShowOptions{
			Days: schedulesDays,
		}

		return getApp().ShowSchedules(cmd.Context(), opts)
	},
}

func init() {
	schedulesCmd.Flags().IntVar(&schedulesDays, "days", 7, "Day window to display")
}
