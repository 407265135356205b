package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/stop-the-game/internal/config"
	"github.com/oshokin/stop-the-game/internal/logger"
	"github.com/oshokin/stop-the-game/internal/service/daemon"
	"github.com/oshokin/stop-the-game/internal/version"
)

// errInvalidLogLevel is returned for unknown --log-level values.
var errInvalidLogLevel = errors.New("invalid log level")

var (
	// configPath stores the path to the settings YAML file.
	configPath string
	// logLevel overrides the configured log level.
	logLevel string

	// rootCmd starts the interactive alarm console.
	rootCmd = &cobra.Command{
		Use:   "stop-the-game",
		Short: "Daily alarm that puts the computer to sleep.",
		Long: `Rings a daily alarm at the configured time and suspends the computer
when nobody cancels it within the ringing window.

Pressing any key while the alarm rings cancels it, and the alarm rings again
after the restart delay. Without a subcommand the interactive console starts,
offering the start, stop, settings and exit actions.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if logLevel == "" {
				return nil
			}

			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("%w: %q", errInvalidLogLevel, logLevel)
			}

			logger.SetLevel(level)

			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDaemon(true)
		},
	}
)

// Execute runs the stop-the-game CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runDaemon runs the alarm until SIGINT, SIGTERM or, in interactive mode, the exit action.
func runDaemon(interactive bool) error {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return daemon.Run(ctx, &daemon.Options{
		ConfigPath:  configPath,
		LogLevel:    logLevel,
		Interactive: interactive,
	})
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to settings file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd, consoleCmd, settingsCmd, historyCmd, sleepCheckCmd)
}
