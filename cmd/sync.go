package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/smartbin/internal/archive"
	"github.com/example/smartbin/internal/connectivity"
	"github.com/example/smartbin/internal/repository"
)

func newSyncCmd() *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Upload the offline archive backlog to S3",
		Long: `Sync uploads every photo under the archive directory to S3_BUCKET_NAME,
keyed by S3_PREFIX and the photo's label folder. It refuses to run while the
connectivity probe reports offline.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			store, err := repository.NewS3Store(ctx, &cfg.S3, logger)
			if err != nil {
				return err
			}
			probe := connectivity.NewProbe(cfg.Connectivity.URL, cfg.Connectivity.Timeout, logger)
			syncer := archive.NewSyncer(cfg.ArchiveRoot(), cfg.S3.Prefix, store, probe, cfg.S3.Concurrency, logger)

			result, err := syncer.Sync(ctx, remove)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d, failed %d\n", result.Uploaded, result.Failed)
			if result.Failed > 0 {
				return fmt.Errorf("%d photos failed to upload", result.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&remove, "remove", false, "Delete local copies after a successful upload")

	return cmd
}
