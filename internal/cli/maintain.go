package cli

import (
	"github.com/spf13/cobra"
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Purge stale incomplete uploads once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().MaintainOnce(cmd.Context())
	},
}
