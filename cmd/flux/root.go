package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/flux/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flux",
	Short: "Flux runs flowchart knowledge bases with truth maintenance",
	Long: `Flux loads flow documents (YAML), checks them, renders them as Mermaid
diagrams, replays scripted cases against them and serves them over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("file", "f", ".", "Flow document or directory of documents")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().String("redis", "", "Redis URL for facts, traces and session locks (e.g. redis://localhost:6379/0)")
	rootCmd.PersistentFlags().String("state-dir", "", "Directory keeping each session's facts as a JSON file")
}

// options reads the persistent flags. A positional argument overrides --file.
func options(cmd *cobra.Command, args []string) (cli.Options, *slog.Logger, error) {
	file, _ := cmd.Flags().GetString("file")
	if !cmd.Flags().Changed("file") && len(args) > 0 {
		file = args[0]
	}
	level, _ := cmd.Flags().GetString("log-level")
	asJSON, _ := cmd.Flags().GetBool("log-json")
	redisURL, _ := cmd.Flags().GetString("redis")
	stateDir, _ := cmd.Flags().GetString("state-dir")

	opts := cli.Options{File: file, LogLevel: level, LogJSON: asJSON, Redis: redisURL, StateDir: stateDir}
	logger, err := opts.Logger(cmd.ErrOrStderr())
	if err != nil {
		return opts, nil, err
	}
	return opts, logger, nil
}
