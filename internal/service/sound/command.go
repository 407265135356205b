package sound

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/oshokin/stop-the-game/internal/logger"
)

// FilePlaceholder is replaced with the sound file path in a command template.
const FilePlaceholder = "{file}"

// restartBackoff is the pause before relaunching a player that exited with an error.
const restartBackoff = time.Second

// ErrEmptyCommand is returned when a command template has no program.
var ErrEmptyCommand = errors.New("sound command is empty")

// Runner runs a program until it exits or ctx is cancelled.
type Runner func(ctx context.Context, name string, args ...string) error

// execRunner runs the program with exec.CommandContext.
func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// DefaultCommand returns the platform audio player template.
func DefaultCommand() string {
	switch runtime.GOOS {
	case "darwin":
		return "afplay " + FilePlaceholder
	case "windows":
		return `powershell -NoProfile -Command "(New-Object Media.SoundPlayer '` + FilePlaceholder + `').PlaySync()"`
	default:
		return "aplay -q " + FilePlaceholder
	}
}

// CommandBackend plays a file by relaunching an external player until stopped.
type CommandBackend struct {
	// template is the shell-like command line with a {file} placeholder.
	template string
	// run launches the program.
	run Runner
}

// NewCommandBackend creates a backend from a template, or the platform default when empty.
func NewCommandBackend(template string, run Runner) *CommandBackend {
	if strings.TrimSpace(template) == "" {
		template = DefaultCommand()
	}

	if run == nil {
		run = execRunner
	}

	return &CommandBackend{template: template, run: run}
}

// Command renders the argument list for file.
func (b *CommandBackend) Command(file string) ([]string, error) {
	args, err := shlex.Split(b.template)
	if err != nil {
		return nil, fmt.Errorf("parse sound command: %w", err)
	}

	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}

	for i, arg := range args {
		args[i] = strings.ReplaceAll(arg, FilePlaceholder, file)
	}

	return args, nil
}

// Start launches the player loop.
func (b *CommandBackend) Start(ctx context.Context, file string) (Handle, error) {
	args, err := b.Command(file)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &commandHandle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(h.done)

		for runCtx.Err() == nil {
			runErr := b.run(runCtx, args[0], args[1:]...)
			if runErr == nil || runCtx.Err() != nil {
				continue
			}

			logger.WarnKV(ctx, "Sound command failed", "command", strings.Join(args, " "), "error", runErr)

			select {
			case <-runCtx.Done():
			case <-time.After(restartBackoff):
			}
		}
	}()

	return h, nil
}

// commandHandle cancels the player loop.
type commandHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (h *commandHandle) Stop() error {
	h.cancel()
	<-h.done

	return nil
}
