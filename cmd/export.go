package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/smartbin/internal/archive"
)

func newExportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a parquet manifest of the archived training photos",
		Example: `  smartbin export --out data-collection.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			n, err := archive.WriteManifest(cfg.ArchiveRoot(), out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", n, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "manifest.parquet", "Parquet file to write")

	return cmd
}
