package main

import (
	"github.com/aretw0/flux/internal/cli"
	"github.com/aretw0/flux/pkg/runner"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [path]",
	Short: "Replay the script of a flow document",
	Long: `Creates a session, replays the document's script step by step and reports
the active nodes and failed expectations. Exits non-zero when a step fails.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, logger, err := options(cmd, args)
		if err != nil {
			return err
		}
		run := cli.RunOptions{Options: opts}
		run.Session, _ = cmd.Flags().GetString("session")
		run.JSON, _ = cmd.Flags().GetBool("json")
		run.Verbose, _ = cmd.Flags().GetBool("verbose")
		run.FailFast, _ = cmd.Flags().GetBool("fail-fast")
		run.MetricsAddr, _ = cmd.Flags().GetString("metrics-addr")

		ctx, stop := runner.SignalContext(cmd.Context())
		defer stop()
		return cli.Run(ctx, cmd.OutOrStdout(), run, logger)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("session", "", "Session ID (default: the script name)")
	runCmd.Flags().Bool("json", false, "Report steps as JSON lines")
	runCmd.Flags().BoolP("verbose", "v", false, "List active nodes after each step")
	runCmd.Flags().Bool("fail-fast", false, "Stop at the first failed expectation")
	runCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
}
