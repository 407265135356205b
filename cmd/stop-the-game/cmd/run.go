package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// runCmd runs the alarm without the console.
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the alarm in the background.",
		Long: `Runs the daily alarm without the interactive console.

Keys typed on standard input cancel a ringing alarm. Stop with Ctrl+C while
the alarm is idle or with SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDaemon(false)
		},
	}

	// consoleCmd runs the alarm with the console.
	consoleCmd = &cobra.Command{
		Use:   "console",
		Short: "Run the alarm with the interactive console.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDaemon(true)
		},
	}
)
