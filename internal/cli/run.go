package cli

import (
	"github.com/spf13/cobra"
)

var runDry bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the copy-trading service",
	RunE: func(cmd *cobra.Command, args []string) error {
		application := getApp()
		if runDry {
			application.Config.Executor.DryRun = true
		}
		return application.Run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().BoolVar(&runDry, "dry-run", false, "Log intended orders without sending them")
}
