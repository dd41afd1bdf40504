package main

import (
	"github.com/aretw0/flux/internal/cli"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [path]",
	Short: "Export the flows as a Mermaid diagram",
	Long:  `Outputs a Mermaid diagram (graph TD) of one flow, or of every flow with calls linked.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, logger, err := options(cmd, args)
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("flow")
		return cli.Graph(cmd.OutOrStdout(), opts, name, logger)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("flow", "", "Render only this flow")
}
