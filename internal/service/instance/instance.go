// Package instance refuses to start a second copy of the daemon.
package instance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/stop-the-game/internal/logger"
)

// ErrAnotherInstance is returned when another process with the same executable is alive.
var ErrAnotherInstance = errors.New("another instance is already running")

// Lister lists the running processes.
type Lister func() ([]ps.Process, error)

// Guard checks the process table for a running copy of an executable.
type Guard struct {
	list       Lister
	pid        int
	executable string
}

// Option configures a Guard.
type Option func(*Guard)

// WithLister overrides the process lister.
func WithLister(list Lister) Option {
	return func(g *Guard) {
		g.list = list
	}
}

// WithPID overrides the pid treated as the current process.
func WithPID(pid int) Option {
	return func(g *Guard) {
		g.pid = pid
	}
}

// WithExecutable overrides the executable name to look for.
func WithExecutable(name string) Option {
	return func(g *Guard) {
		g.executable = name
	}
}

// New creates a guard for the current executable.
func New(opts ...Option) *Guard {
	g := &Guard{
		list: ps.Processes,
		pid:  os.Getpid(),
	}

	if path, err := os.Executable(); err == nil {
		g.executable = filepath.Base(path)
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Check returns ErrAnotherInstance when a process other than this one runs the same executable.
func (g *Guard) Check(ctx context.Context) error {
	if g.executable == "" {
		logger.Warn(ctx, "Executable name is unknown, skipping instance check")

		return nil
	}

	processes, err := g.list()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	for _, process := range processes {
		if process.Pid() == g.pid || process.Pid() == 0 {
			continue
		}

		// Windows reports names with their original casing.
		if !strings.EqualFold(process.Executable(), g.executable) {
			continue
		}

		logger.WarnKV(ctx, "Another instance is running", "pid", process.Pid(), "executable", process.Executable())

		return fmt.Errorf("%w: pid %d", ErrAnotherInstance, process.Pid())
	}

	return nil
}
