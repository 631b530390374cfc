// Package cmd holds the smartbin command line.
package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smartbin",
		Short: "Smart waste bin controller",
		Long: `Smartbin watches a proximity sensor, photographs whatever is dropped in front
of the bin and sorts it as recyclable or not. Photos go to a remote classifier
when the network is up and to a local ONNX model otherwise. Photos classified
while offline are kept in labeled folders for retraining.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newClassifyCmd())
	cmd.AddCommand(newProbeCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newSyncCmd())

	return cmd
}
