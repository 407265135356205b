package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"

	"github.com/oshokin/stop-the-game/internal/config"
	domain "github.com/oshokin/stop-the-game/internal/domain/alarm"
	"github.com/oshokin/stop-the-game/internal/logger"
	"github.com/oshokin/stop-the-game/internal/repository/journal"
	"github.com/oshokin/stop-the-game/internal/service/coordinator"
)

// Menu actions.
const (
	ActionStart    = "start"
	ActionStop     = "stop"
	ActionSettings = "settings"
	ActionExit     = "exit"
)

// DefaultPrompt is shown before every command.
const DefaultPrompt = "stop-the-game> "

var (
	// ErrUnknownAction is returned for menu actions the console does not know.
	ErrUnknownAction = errors.New("unknown action")
	// ErrActionDisabled is returned for menu actions disabled in the current state.
	ErrActionDisabled = errors.New("action is disabled")
	// errJournalDisabled is returned by history when no journal is configured.
	errJournalDisabled = errors.New("journal is disabled")
	// errUsage is returned for malformed commands.
	errUsage = errors.New("usage")
)

// Control is the part of the coordinator the console drives.
type Control interface {
	BeginCycle(ctx context.Context) (*domain.Cycle, error)
	ForceStop(ctx context.Context) error
	UpdateConfig(ctx context.Context, cfg *config.Config) error
	Status() coordinator.Status
	MenuState() coordinator.MenuState
}

// Settings persists configuration changes made from the console.
type Settings interface {
	Current() *config.Config
	Get(key string) (string, error)
	Update(ctx context.Context, key, value string) (*config.Config, error)
	Reset(ctx context.Context) (*config.Config, error)
}

// History lists journal entries.
type History interface {
	List(ctx context.Context, filter journal.Filter) ([]journal.Entry, error)
}

// Console is an interactive control surface with a start, stop, settings and exit menu.
// It also acts as the key source of the cancellation listener while a cycle rings,
// so the terminal has a single reader.
type Console struct {
	control  Control
	settings Settings
	history  History
	// overrides adjusts saved settings before they are applied.
	overrides func(*config.Config) *config.Config
	prompt    string
	out       io.Writer
	outMu     sync.Mutex
	// keys receives typed runes while the cancellation listener is armed.
	keys   chan rune
	keysMu sync.Mutex
}

// Option configures a Console.
type Option func(*Console)

// WithHistory enables the history command.
func WithHistory(history History) Option {
	return func(c *Console) {
		c.history = history
	}
}

// WithOverrides sets a function run on every saved config before it reaches the coordinator,
// so runtime-only overrides survive set and reset.
func WithOverrides(fn func(*config.Config) *config.Config) Option {
	return func(c *Console) {
		c.overrides = fn
	}
}

// WithOutput overrides the output writer.
func WithOutput(out io.Writer) Option {
	return func(c *Console) {
		c.out = out
	}
}

// WithPrompt overrides the prompt.
func WithPrompt(prompt string) Option {
	return func(c *Console) {
		c.prompt = prompt
	}
}

// New creates a console. Control may be attached later with Attach.
func New(settings Settings, opts ...Option) *Console {
	c := &Console{
		settings: settings,
		prompt:   DefaultPrompt,
		out:      os.Stdout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Attach sets the coordinator driven by the console.
func (c *Console) Attach(control Control) {
	c.control = control
}

// SetHistory enables the history command after construction.
func (c *Console) SetHistory(history History) {
	c.history = history
}

// Observe implements domain.Observer by printing every event.
func (c *Console) Observe(ev domain.LifecycleEvent) {
	line := fmt.Sprintf("[%s] %s", ev.At.Format(time.TimeOnly), ev.String())

	switch ev.Kind {
	case domain.EventRinging:
		line += " - press any key to cancel"
	case domain.EventRestartArmed:
		line += fmt.Sprintf(" - ringing again in %s", ev.Delay)
	default:
	}

	c.println(line)
}

// Execute runs one command line. It returns true when the console should exit.
func (c *Console) Execute(ctx context.Context, line string) (bool, error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return false, fmt.Errorf("parse command: %w", err)
	}

	if len(tokens) == 0 {
		return false, nil
	}

	name, args := strings.ToLower(tokens[0]), tokens[1:]

	switch name {
	case ActionStart, ActionStop, ActionSettings, ActionExit:
		return name == ActionExit, c.HandleAction(ctx, name)
	case "quit":
		return true, c.HandleAction(ctx, ActionExit)
	case "help", "menu", "?":
		c.printMenu()
	case "status":
		c.printStatus()
	case "get":
		return false, c.get(args)
	case "set":
		return false, c.set(ctx, args)
	case "reset":
		return false, c.reset(ctx)
	case "history":
		return false, c.printHistory(ctx, args)
	case "log":
		return false, c.logLevel(args)
	default:
		return false, fmt.Errorf("%w: %s, type help", ErrUnknownAction, name)
	}

	return false, nil
}

// HandleAction dispatches a menu action, honoring the enabled state of each item.
func (c *Console) HandleAction(ctx context.Context, action string) error {
	menu := c.menuState()

	switch action {
	case ActionStart:
		if !menu.Start {
			return fmt.Errorf("%w: %s", ErrActionDisabled, action)
		}

		cycle, err := c.control.BeginCycle(ctx)
		if err != nil {
			return err
		}

		c.println(fmt.Sprintf("Alarm cycle %d started", cycle.ID))
	case ActionStop:
		if !menu.Stop {
			return fmt.Errorf("%w: %s", ErrActionDisabled, action)
		}

		if err := c.control.ForceStop(ctx); err != nil {
			return err
		}

		c.println("Alarm stopped")
	case ActionSettings:
		c.printSettings()
	case ActionExit:
		c.println("Bye!")
	default:
		logger.WarnKV(ctx, "Unknown tray action", "action", action)

		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	return nil
}

func (c *Console) menuState() coordinator.MenuState {
	if c.control == nil {
		return coordinator.MenuState{Settings: true, Exit: true}
	}

	return c.control.MenuState()
}

func (c *Console) get(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: get <key>", errUsage)
	}

	value, err := c.settings.Get(args[0])
	if err != nil {
		return err
	}

	c.println(fmt.Sprintf("%s = %s", args[0], value))

	return nil
}

func (c *Console) set(ctx context.Context, args []string) error {
	if len(args) != 2 { //nolint:mnd // Key and value.
		return fmt.Errorf("%w: set <key> <value>", errUsage)
	}

	cfg, err := c.settings.Update(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	if err = c.apply(ctx, cfg); err != nil {
		return err
	}

	value, _ := c.settings.Get(args[0])
	c.println(fmt.Sprintf("%s = %s", args[0], value))

	return nil
}

func (c *Console) reset(ctx context.Context) error {
	cfg, err := c.settings.Reset(ctx)
	if err != nil {
		return err
	}

	if err = c.apply(ctx, cfg); err != nil {
		return err
	}

	c.println("Settings reset to defaults")

	return nil
}

func (c *Console) apply(ctx context.Context, cfg *config.Config) error {
	if c.control == nil {
		return nil
	}

	if c.overrides != nil {
		cfg = c.overrides(cfg)
	}

	if err := c.control.UpdateConfig(ctx, cfg); err != nil {
		return fmt.Errorf("apply settings: %w", err)
	}

	return nil
}

func (c *Console) println(line string) {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	_, _ = fmt.Fprintln(c.out, line)
}
