package main

import (
	"github.com/aretw0/flux/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check flow documents for consistency",
	Long: `Loads every flow document, checks that composed calls resolve and reports
nodes no start node leads to.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, logger, err := options(cmd, args)
		if err != nil {
			return err
		}
		return cli.Validate(cmd.OutOrStdout(), opts, logger)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
