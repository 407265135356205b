package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/oshokin/stop-the-game/internal/logger"
	"github.com/oshokin/stop-the-game/internal/repository/journal"
	"github.com/oshokin/stop-the-game/internal/service/settings"
)

func (c *Console) printMenu() {
	menu := c.menuState()

	var b strings.Builder

	b.WriteString("Menu:\n")

	for _, item := range []struct {
		name    string
		enabled bool
		help    string
	}{
		{ActionStart, menu.Start, "ring the alarm now"},
		{ActionStop, menu.Stop, "stop the ringing or pending alarm"},
		{ActionSettings, menu.Settings, "show the current settings"},
		{ActionExit, menu.Exit, "quit"},
	} {
		mark := " "
		if item.enabled {
			mark = "x"
		}

		fmt.Fprintf(&b, "  [%s] %-9s %s\n", mark, item.name, item.help)
	}

	b.WriteString("Commands:\n")
	b.WriteString("  status                    show the alarm state\n")
	b.WriteString("  get <key>                 show one setting\n")
	b.WriteString("  set <key> <value>         change one setting\n")
	b.WriteString("  reset                     restore the default settings\n")
	b.WriteString("  history [--limit N] [--kind K]\n")
	b.WriteString("  log [--level L] [--show]\n")
	b.WriteString("Keys: " + strings.Join(settings.Keys(), ", "))

	c.println(b.String())
}

func (c *Console) printStatus() {
	if c.control == nil {
		c.println("Alarm is not running")
		return
	}

	status := c.control.Status()

	var b strings.Builder

	fmt.Fprintf(&b, "State:      %s\n", status.State)
	fmt.Fprintf(&b, "Alarm time: %s (enabled: %t)\n", status.AlarmTime, status.Enabled)

	if !status.NextFire.IsZero() {
		fmt.Fprintf(&b, "Next alarm: %s\n", status.NextFire.Format(time.DateTime))
	}

	if status.Cycle != nil {
		fmt.Fprintf(&b, "Cycle:      %d since %s\n", status.Cycle.ID, status.Cycle.StartedAt.Format(time.TimeOnly))
	}

	if status.SoundRemaining > 0 {
		fmt.Fprintf(&b, "Ringing:    %s left\n", status.SoundRemaining)
	}

	if status.RestartRemaining > 0 {
		fmt.Fprintf(&b, "Restart in: %s\n", status.RestartRemaining)
	}

	c.println(strings.TrimRight(b.String(), "\n"))
}

func (c *Console) printSettings() {
	var b strings.Builder

	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0) //nolint:mnd // Column padding.

	for _, key := range settings.Keys() {
		value, err := c.settings.Get(key)
		if err != nil {
			continue
		}

		fmt.Fprintf(w, "%s\t%s\n", key, value)
	}

	_ = w.Flush()

	c.println(strings.TrimRight(b.String(), "\n"))
}

func (c *Console) printHistory(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("history", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var filter journal.Filter

	fs.IntVarP(&filter.Limit, "limit", "n", 20, "number of entries") //nolint:mnd // Screenful.
	fs.StringVarP(&filter.Kind, "kind", "k", "", "event kind")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("history: %w", err)
	}

	if c.history == nil {
		return errJournalDisabled
	}

	entries, err := c.history.List(ctx, filter)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		c.println("No events")
		return nil
	}

	var b strings.Builder

	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0) //nolint:mnd // Column padding.

	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
			entry.OccurredAt.Local().Format(time.DateTime), entry.CycleID, entry.Kind, entry.Detail)
	}

	_ = w.Flush()

	c.println(strings.TrimRight(b.String(), "\n"))

	return nil
}

func (c *Console) logLevel(args []string) error {
	fs := pflag.NewFlagSet("log", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		level string
		show  bool
	)

	fs.StringVarP(&level, "level", "l", "", "debug|info|warn|error")
	fs.BoolVarP(&show, "show", "s", false, "show the current level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	if level == "" || show {
		c.println("Log level: " + logger.Level().String())
		return nil
	}

	parsed, ok := logger.ParseLogLevel(level)
	if !ok {
		return fmt.Errorf("%w: log level %q", errUsage, level)
	}

	logger.SetLevel(parsed)
	c.println("Log level set to " + parsed.String())

	return nil
}
