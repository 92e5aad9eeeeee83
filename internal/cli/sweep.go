package cli

import (
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a single consolidation pass over all deposit addresses",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SweepOnce(cmd.Context())
	},
}
