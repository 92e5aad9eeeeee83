package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var quoteSize int64

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price a hypothetical file without persisting anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		if quoteSize <= 0 {
			return fmt.Errorf("--size must be greater than zero")
		}

		return getApp().Quote(cmd.Context(), quoteSize)
	},
}

func init() {
	quoteCmd.Flags().Int64Var(&quoteSize, "size", 0, "File size in bytes")
}
