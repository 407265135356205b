package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oshokin/stop-the-game/internal/domain/alarm"
	"github.com/oshokin/stop-the-game/internal/service/power"
	"github.com/oshokin/stop-the-game/internal/service/settings"
)

var (
	// sleepNow runs the suspend command after the check.
	sleepNow bool

	// sleepCheckCmd reports whether the configured sleep method works on this machine.
	sleepCheckCmd = &cobra.Command{
		Use:   "sleep-check",
		Short: "Check the configured sleep method.",
		Long: `Prints the sleep method and command used when the alarm is not cancelled
and reports whether they are supported on this operating system.
With --now the computer is put to sleep right away.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := settings.NewManager(configPath).Load(ctx)
			invoker := power.FromConfig(cfg.Sleep)
			out := cmd.OutOrStdout()

			_, _ = fmt.Fprintf(out, "method:    %s\n", invoker.Method())

			args, err := invoker.Command()
			if err == nil {
				_, _ = fmt.Fprintf(out, "command:   %s\n", strings.Join(args, " "))
			}

			supported := invoker.ValidateEnvironment()
			_, _ = fmt.Fprintf(out, "supported: %t\n", supported)

			if !supported {
				return alarm.ErrUnsupportedEnvironment
			}

			if !sleepNow {
				return nil
			}

			return invoker.Execute(ctx)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	sleepCheckCmd.Flags().BoolVar(&sleepNow, "now", false, "put the computer to sleep after the check")
}
