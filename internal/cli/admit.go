package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"hostpay/internal/app"
)

var (
	admitSize   int64
	admitSchema int64
	admitUser   string
	admitMeta   string
)

var admitCmd = &cobra.Command{
	Use:   "admit",
	Short: "Admit a file record with a fee quote and deposit address",
	RunE: func(cmd *cobra.Command, args []string) error {
		if admitSize <= 0 {
			return fmt.Errorf("--size must be greater than zero")
		}

		opts := app.AdmitOptions{
			SchemaVersion: admitSchema,
			SizeBytes:     admitSize,
			UserID:        admitUser,
			MetaJSON:      admitMeta,
		}

		return getApp().Admit(cmd.Context(), opts)
	},
}

func init() {
	admitCmd.Flags().Int64Var(&admitSize, "size", 0, "File size in bytes")
	admitCmd.Flags().Int64Var(&admitSchema, "schema-version", 1, "Record schema version")
	admitCmd.Flags().StringVar(&admitUser, "user", "", "Owning user ID")
	admitCmd.Flags().StringVar(&admitMeta, "meta", "", "Arbitrary metadata as a JSON object")
}
