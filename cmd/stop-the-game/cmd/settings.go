package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oshokin/stop-the-game/internal/service/settings"
)

var (
	// settingsCmd groups the settings subcommands.
	settingsCmd = &cobra.Command{
		Use:   "settings",
		Short: "Show or change the alarm settings.",
		Long: "Show or change the alarm settings stored in the settings file.\n\nKeys: " +
			strings.Join(settings.Keys(), ", "),
	}

	settingsGetCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Print one setting, or all of them.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := settings.NewManager(configPath)
			manager.Load(cmd.Context())

			keys := settings.Keys()
			if len(args) == 1 {
				keys = args
			}

			for _, key := range keys {
				value, err := manager.Get(key)
				if err != nil {
					return err
				}

				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
			}

			return nil
		},
	}

	settingsSetCmd = &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one setting.",
		Long:  "Change one setting. Durations accept Go syntax (45s, 1m30s) or plain seconds.",
		Args:  cobra.ExactArgs(2), //nolint:mnd // Key and value.
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := settings.NewManager(configPath)
			manager.Load(cmd.Context())

			if _, err := manager.Update(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}

			value, err := manager.Get(args[0])
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], value)

			return nil
		},
	}

	settingsResetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Restore the default settings.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := settings.NewManager(configPath).Reset(cmd.Context())

			return err
		},
	}

	settingsPathCmd = &cobra.Command{
		Use:   "path",
		Short: "Print the settings file path.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), settings.NewManager(configPath).Path())
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd, settingsResetCmd, settingsPathCmd)
}

