package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"hostpay/internal/app"
)

var (
	showLimit int
	showFiles bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent sweep runs or file records",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit: showLimit,
			Files: showFiles,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().BoolVar(&showFiles, "files", false, "Show file records instead of sweep runs")
}
