package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cliptrail/cliptrail-agent/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "cliptrail",
	Short: "Build short trailers from source videos",
	Long: `cliptrail samples evenly spaced clips from each source video and joins
them into a WebM trailer next to the source.

Run without a subcommand to start the agent (HTTP API and tray menu).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), serveHeadless)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cliptrail version %s (commit %s, built %s)\n",
			config.Version, config.GitCommit, config.BuildTime)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(presetsCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}
