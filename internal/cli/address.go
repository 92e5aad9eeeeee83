package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var addressIndex int64

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Derive the deposit address at a given index",
	RunE: func(cmd *cobra.Command, args []string) error {
		if addressIndex < 0 {
			return fmt.Errorf("--index cannot be negative")
		}

		return getApp().ShowAddress(cmd.Context(), uint32(addressIndex))
	},
}

func init() {
	addressCmd.Flags().Int64Var(&addressIndex, "index", 0, "Derivation index")
}
