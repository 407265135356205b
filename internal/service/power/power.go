package power

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/oshokin/stop-the-game/internal/config"
	domain "github.com/oshokin/stop-the-game/internal/domain/alarm"
	"github.com/oshokin/stop-the-game/internal/logger"
)

// Sleep methods.
const (
	// MethodAuto picks the platform default.
	MethodAuto = "auto"
	// MethodPowerShell calls SetSuspendState through PowerShell on Windows.
	MethodPowerShell = "powershell"
	// MethodRundll32 calls powrprof.dll directly on Windows.
	MethodRundll32 = "rundll32"
	// MethodSystemctl suspends a systemd Linux host.
	MethodSystemctl = "systemctl"
	// MethodPmset sleeps a macOS host.
	MethodPmset = "pmset"
	// MethodShutdown powers the machine off instead of suspending it.
	MethodShutdown = "shutdown"
	// MethodCommand runs a user-provided command line.
	MethodCommand = "command"
)

// DefaultTimeout bounds the suspend command when none is configured.
const DefaultTimeout = 5 * time.Second

// windowsShutdownTimeout is the delay in seconds for Windows shutdown command.
const windowsShutdownTimeout = "0"

// ErrEmptyCommand is returned by the command method when no command is configured.
var ErrEmptyCommand = errors.New("sleep command is empty")

// Runner runs a program to completion.
type Runner func(ctx context.Context, name string, args ...string) error

// execRunner runs the program with exec.CommandContext.
func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Options configures an Invoker.
type Options struct {
	// Method is one of the Method* constants, empty means auto.
	Method string
	// Command is the custom command line for MethodCommand.
	Command string
	// Timeout bounds the command.
	Timeout time.Duration
	// GOOS overrides runtime.GOOS, mainly for tests.
	GOOS string
	// Runner overrides process execution, mainly for tests.
	Runner Runner
}

// Invoker puts the machine to sleep.
type Invoker struct {
	run     Runner
	method  string
	command string
	goos    string
	timeout time.Duration
}

// FromConfig creates an invoker for the sleep settings.
func FromConfig(cfg config.Sleep) *Invoker {
	return NewInvoker(Options{
		Method:  cfg.Method,
		Command: cfg.Command,
		Timeout: cfg.Timeout,
	})
}

// NewInvoker creates an invoker from options, filling defaults.
func NewInvoker(opts Options) *Invoker {
	inv := &Invoker{
		run:     opts.Runner,
		method:  strings.ToLower(strings.TrimSpace(opts.Method)),
		command: opts.Command,
		goos:    strings.ToLower(opts.GOOS),
		timeout: opts.Timeout,
	}

	if inv.run == nil {
		inv.run = execRunner
	}

	if inv.goos == "" {
		inv.goos = runtime.GOOS
	}

	if inv.method == "" {
		inv.method = MethodAuto
	}

	if inv.timeout <= 0 {
		inv.timeout = DefaultTimeout
	}

	return inv
}

// Method returns the resolved method, with auto replaced by the platform default.
func (i *Invoker) Method() string {
	if i.method != MethodAuto {
		return i.method
	}

	switch i.goos {
	case "windows":
		return MethodPowerShell
	case "linux":
		return MethodSystemctl
	case "darwin":
		return MethodPmset
	default:
		return MethodAuto
	}
}

// ValidateEnvironment reports whether the method can run on this platform.
func (i *Invoker) ValidateEnvironment() bool {
	switch i.Method() {
	case MethodPowerShell, MethodRundll32:
		return i.goos == "windows"
	case MethodSystemctl:
		return i.goos == "linux"
	case MethodPmset:
		return i.goos == "darwin"
	case MethodShutdown:
		return i.goos == "windows" || i.goos == "linux" || i.goos == "darwin"
	case MethodCommand:
		return strings.TrimSpace(i.command) != ""
	default:
		return false
	}
}

// Command returns the argument list the invoker runs.
func (i *Invoker) Command() ([]string, error) {
	switch i.Method() {
	case MethodPowerShell:
		return []string{
			"powershell", "-NoProfile", "-Command",
			"Add-Type -Assembly System.Windows.Forms; " +
				"[System.Windows.Forms.Application]::SetSuspendState('Suspend', $false, $false)",
		}, nil
	case MethodRundll32:
		return []string{"rundll32.exe", "powrprof.dll,SetSuspendState", "0,1,0"}, nil
	case MethodSystemctl:
		return []string{"systemctl", "suspend"}, nil
	case MethodPmset:
		return []string{"pmset", "sleepnow"}, nil
	case MethodShutdown:
		if i.goos == "windows" {
			return []string{"shutdown.exe", "-s", "-f", "-t", windowsShutdownTimeout}, nil
		}

		return []string{"shutdown", "-h", "now"}, nil
	case MethodCommand:
		args, err := shlex.Split(i.command)
		if err != nil {
			return nil, fmt.Errorf("parse sleep command: %w", err)
		}

		if len(args) == 0 {
			return nil, ErrEmptyCommand
		}

		return args, nil
	default:
		return nil, fmt.Errorf("sleep method %q on %s: %w", i.method, i.goos, domain.ErrUnsupportedEnvironment)
	}
}

// Execute runs the suspend command once. Every outcome is logged exactly once.
func (i *Invoker) Execute(ctx context.Context) error {
	if !i.ValidateEnvironment() {
		err := fmt.Errorf("sleep method %q on %s: %w", i.method, i.goos, domain.ErrUnsupportedEnvironment)
		logger.ErrorKV(ctx, "Sleep is not supported", "method", i.method, "os", i.goos)

		return err
	}

	args, err := i.Command()
	if err != nil {
		logger.ErrorKV(ctx, "Failed to build sleep command", "method", i.Method(), "error", err)

		return &domain.InvocationError{Command: i.command, Cause: err}
	}

	commandLine := strings.Join(args, " ")

	runCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	err = i.run(runCtx, args[0], args[1:]...)

	switch {
	case err == nil:
		logger.InfoKV(ctx, "Sleep command completed", "command", commandLine)
		return nil
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		logger.ErrorKV(ctx, "Sleep command timed out", "command", commandLine, "timeout", i.timeout.String())
		return &domain.InvocationError{Command: commandLine, Cause: domain.ErrInvocationTimeout}
	default:
		logger.ErrorKV(ctx, "Sleep command failed", "command", commandLine, "error", err)
		return &domain.InvocationError{Command: commandLine, Cause: err}
	}
}
