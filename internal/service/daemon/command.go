package daemon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/oshokin/stop-the-game/internal/config"
	"github.com/oshokin/stop-the-game/internal/logger"
	"github.com/oshokin/stop-the-game/internal/repository/journal"
	"github.com/oshokin/stop-the-game/internal/service/console"
	"github.com/oshokin/stop-the-game/internal/service/coordinator"
	"github.com/oshokin/stop-the-game/internal/service/instance"
	"github.com/oshokin/stop-the-game/internal/service/keyboard"
	"github.com/oshokin/stop-the-game/internal/service/metrics"
	"github.com/oshokin/stop-the-game/internal/service/power"
	"github.com/oshokin/stop-the-game/internal/service/restart"
	"github.com/oshokin/stop-the-game/internal/service/settings"
	"github.com/oshokin/stop-the-game/internal/service/sound"
	"github.com/oshokin/stop-the-game/internal/service/trigger"
	"github.com/oshokin/stop-the-game/internal/version"
)

// Options controls how the alarm daemon starts.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// LogLevel overrides the configured log level when set.
	LogLevel string
	// Interactive starts the console control surface instead of running headless.
	Interactive bool
	// SkipInstanceCheck allows a second copy to run, mainly for tests.
	SkipInstanceCheck bool
	// Terminal overrides the key source of the headless mode.
	Terminal keyboard.Terminal
}

// app is the wired set of components of one daemon run.
type app struct {
	coordinator *coordinator.Coordinator
	console     *console.Console
	db          *sql.DB
}

// Run loads the settings, wires every component and runs until ctx is cancelled
// or, in interactive mode, until the console exits.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "stop-the-game")

	manager := settings.NewManager(opts.ConfigPath)
	cfg := runtimeConfig(ctx, manager.Load(ctx))

	closeLog, err := setupLogger(cfg, opts.LogLevel)
	if err != nil {
		return err
	}

	defer closeLog()

	logger.InfoKV(ctx, "Starting", "version", version.Short(), "settings", manager.Path(), "interactive", opts.Interactive)

	if !opts.SkipInstanceCheck {
		if err = instance.New().Check(ctx); err != nil {
			return err
		}
	}

	a, err := build(ctx, cfg, manager, opts)
	if err != nil {
		return err
	}

	defer a.close(ctx)

	if !opts.Interactive {
		return a.coordinator.Run(ctx)
	}

	return a.runInteractive(ctx)
}

// runtimeConfig applies environment overrides on top of the loaded settings.
// The overrides are never saved back to the settings file.
func runtimeConfig(ctx context.Context, loaded *config.Config) *config.Config {
	cfg := loaded.Clone()

	if err := config.ApplyEnvironment(cfg); err != nil {
		logger.WarnKV(ctx, "Ignoring environment overrides", "error", err)

		return loaded
	}

	return cfg
}

func setupLogger(cfg *config.Config, override string) (func(), error) {
	levelName := cfg.Log.Level
	if override != "" {
		levelName = override
	}

	level, ok := logger.ParseLogLevel(levelName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errInvalidLogLevel, levelName)
	}

	closeLog, err := logger.Setup(level, cfg.Log.File)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	return closeLog, nil
}

// errInvalidLogLevel is returned for unknown log level names.
var errInvalidLogLevel = errors.New("invalid log level")

func build(ctx context.Context, cfg *config.Config, manager *settings.Manager, opts *Options) (*app, error) {
	backend, err := sound.NewBackend(cfg.Sound)
	if err != nil {
		return nil, fmt.Errorf("create sound backend: %w", err)
	}

	daily, err := trigger.New(cfg.Alarm.Time, nil)
	if err != nil {
		return nil, fmt.Errorf("create daily trigger: %w", err)
	}

	a := &app{}

	terminal := opts.Terminal
	if opts.Interactive {
		a.console = console.New(manager, console.WithOverrides(func(saved *config.Config) *config.Config {
			return runtimeConfig(ctx, saved)
		}))
		terminal = a.console
	}

	if terminal == nil {
		terminal = keyboard.NewStdinTerminal()
	}

	a.coordinator, err = coordinator.New(cfg, coordinator.Dependencies{
		Sound:    sound.NewPlayer(backend, cfg.Sound.Duration),
		Listener: keyboard.NewListener(terminal),
		Sleep:    power.FromConfig(cfg.Sleep),
		Restart:  restart.New(),
		Trigger:  daily,
	})
	if err != nil {
		return nil, fmt.Errorf("create coordinator: %w", err)
	}

	if a.console != nil {
		a.console.Attach(a.coordinator)
		a.coordinator.Subscribe(a.console)
	}

	a.coordinator.Subscribe(metrics.New(ctx, metrics.WithTextfile(cfg.Metrics.Textfile)))

	if cfg.Journal.Path != "" {
		a.openJournal(ctx, cfg.Journal.Path)
	}

	return a, nil
}

// openJournal subscribes the journal. A journal that cannot be opened is logged and skipped.
func (a *app) openJournal(ctx context.Context, path string) {
	db, err := journal.Open(path)
	if err != nil {
		logger.ErrorKV(ctx, "Lifecycle journal is disabled", "path", path, "error", err)
		return
	}

	repo, err := journal.NewSQLite(db)
	if err != nil {
		_ = db.Close()

		logger.ErrorKV(ctx, "Lifecycle journal is disabled", "path", path, "error", err)

		return
	}

	a.db = db
	a.coordinator.Subscribe(journal.NewObserver(ctx, repo))

	if a.console != nil {
		a.console.SetHistory(repo)
	}

	logger.InfoKV(ctx, "Lifecycle journal opened", "path", path, "run_id", repo.RunID())
}

func (a *app) runInteractive(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- a.coordinator.Run(loopCtx)
	}()

	consoleErr := a.console.Run(ctx)

	cancel()

	return errors.Join(consoleErr, <-errCh)
}

func (a *app) close(ctx context.Context) {
	if a.db == nil {
		return
	}

	if err := a.db.Close(); err != nil {
		logger.WarnKV(ctx, "Failed to close lifecycle journal", "error", err)
	}
}
