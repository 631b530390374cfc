package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/smartbin/internal/camera"
	"github.com/example/smartbin/internal/usecase"
)

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <photo>",
		Short: "Classify a single photo without touching the hardware",
		Example: `  # Ask the remote service, falling back to the local model
  smartbin classify photo_1700000000.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			local, err := loadLocalModel(cfg, logger)
			if err != nil {
				return err
			}
			remote, closeRemote, err := newRemoteClassifier(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeRemote()

			photo := camera.Photo{Path: args[0]}
			decision := usecase.Decide(ctx, remote, local, photo, photo, func(err error) {
				logger.Warn("remote classification failed, using local model", zap.Error(err))
			})
			if !decision.Result.OK() {
				return decision.Result.Err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", decision.Result.Label, decision.Result.Source)
			return nil
		},
	}
}
