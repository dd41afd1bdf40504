package main

import (
	"github.com/aretw0/flux/internal/cli"
	"github.com/aretw0/flux/pkg/runner"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve [path]",
	Short: "Start the HTTP server",
	Long: `Serves sessions over the loaded flows as a JSON API, with server-sent trace
events and Prometheus metrics.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, logger, err := options(cmd, args)
		if err != nil {
			return err
		}
		addr, _ := cmd.Flags().GetString("addr")

		ctx, stop := runner.SignalContext(cmd.Context())
		defer stop()
		return cli.Serve(ctx, cli.ServeOptions{Options: opts, Addr: addr}, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
}
