package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/oshokin/stop-the-game/internal/repository/journal"
	"github.com/oshokin/stop-the-game/internal/service/settings"
)

// errJournalDisabled is returned when the settings have no journal path.
var errJournalDisabled = errors.New("journal is disabled, set journal.path in the settings file")

var (
	// historyFilter holds the history flags.
	historyFilter journal.Filter
	// historySince limits history to a recent period.
	historySince time.Duration

	// historyCmd prints recent lifecycle events from the journal.
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Print recent alarm events.",
		Long: `Prints the most recent lifecycle events recorded in the journal,
oldest first. The journal is written by the run and console commands when
journal.path is set in the settings file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := settings.NewManager(configPath).Load(ctx)

			if cfg.Journal.Path == "" {
				return errJournalDisabled
			}

			db, err := journal.Open(cfg.Journal.Path)
			if err != nil {
				return err
			}

			defer func() {
				_ = db.Close()
			}()

			repo, err := journal.NewSQLite(db)
			if err != nil {
				return err
			}

			filter := historyFilter
			if historySince > 0 {
				filter.Since = time.Now().Add(-historySince)
			}

			entries, err := repo.List(ctx, filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0) //nolint:mnd // Column padding.
			_, _ = fmt.Fprintln(w, "TIME\tCYCLE\tEVENT\tSTATE\tDETAIL")

			for _, entry := range entries {
				_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
					entry.OccurredAt.Local().Format(time.DateTime),
					entry.CycleID,
					entry.Kind,
					entry.State,
					entry.Detail)
			}

			return w.Flush()
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	historyCmd.Flags().IntVarP(&historyFilter.Limit, "limit", "n", journal.DefaultLimit, "maximum number of events")
	historyCmd.Flags().StringVarP(&historyFilter.Kind, "kind", "k", "", "only events of this kind, e.g. cancelled")
	historyCmd.Flags().DurationVar(&historySince, "since", 0, "only events newer than this duration, e.g. 24h")
}
