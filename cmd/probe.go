package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/smartbin/internal/connectivity"
)

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Report whether the connectivity endpoint is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			probe := connectivity.NewProbe(cfg.Connectivity.URL, cfg.Connectivity.Timeout, logger)
			if err := probe.Check(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "offline: %v\n", err)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "online: %s\n", cfg.Connectivity.URL)
			return nil
		},
	}
}
