package cli

import (
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a single token and schedule sync pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SyncOnce(cmd.Context())
	},
}
