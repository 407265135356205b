package power

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/stop-the-game/internal/config"
	domain "github.com/oshokin/stop-the-game/internal/domain/alarm"
)

// recordingRunner remembers the last command and returns a fixed result.
type recordingRunner struct {
	err   error
	block bool
	calls int
	name  string
	args  []string
}

func (r *recordingRunner) run(ctx context.Context, name string, args ...string) error {
	r.calls++
	r.name = name
	r.args = args

	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}

	return r.err
}

// TestValidateEnvironment checks the platform predicate for every method.
func TestValidateEnvironment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		method  string
		command string
		goos    string
		want    bool
	}{
		{name: "auto windows", method: MethodAuto, goos: "windows", want: true},
		{name: "auto linux", method: MethodAuto, goos: "linux", want: true},
		{name: "auto darwin", method: MethodAuto, goos: "darwin", want: true},
		{name: "auto plan9", method: MethodAuto, goos: "plan9", want: false},
		{name: "rundll32 on linux", method: MethodRundll32, goos: "linux", want: false},
		{name: "rundll32 on windows", method: MethodRundll32, goos: "windows", want: true},
		{name: "pmset on linux", method: MethodPmset, goos: "linux", want: false},
		{name: "shutdown on darwin", method: MethodShutdown, goos: "darwin", want: true},
		{name: "empty custom command", method: MethodCommand, goos: "linux", want: false},
		{name: "custom command", method: MethodCommand, command: "loginctl suspend", goos: "freebsd", want: true},
		{name: "unknown method", method: "hibernate", goos: "linux", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			inv := NewInvoker(Options{Method: tt.method, Command: tt.command, GOOS: tt.goos})
			require.Equal(t, tt.want, inv.ValidateEnvironment())
		})
	}
}

// TestExecuteUnsupported verifies nothing runs on an unsupported platform.
func TestExecuteUnsupported(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{}
	inv := NewInvoker(Options{GOOS: "plan9", Runner: runner.run})

	err := inv.Execute(context.Background())
	require.ErrorIs(t, err, domain.ErrUnsupportedEnvironment)
	require.Zero(t, runner.calls)
}

// TestExecuteSuccess verifies the Windows default command line.
func TestExecuteSuccess(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{}
	inv := NewInvoker(Options{GOOS: "windows", Runner: runner.run})

	require.NoError(t, inv.Execute(context.Background()))
	require.Equal(t, 1, runner.calls)
	require.Equal(t, "powershell", runner.name)
	require.Contains(t, runner.args[len(runner.args)-1], "SetSuspendState")
}

// TestExecuteFailure verifies a non-zero exit surfaces as an InvocationError.
func TestExecuteFailure(t *testing.T) {
	t.Parallel()

	exitErr := errors.New("exit status 1")
	runner := &recordingRunner{err: exitErr}
	inv := NewInvoker(Options{Method: MethodRundll32, GOOS: "windows", Runner: runner.run})

	err := inv.Execute(context.Background())

	var invErr *domain.InvocationError
	require.ErrorAs(t, err, &invErr)
	require.ErrorIs(t, err, exitErr)
	require.Equal(t, "rundll32.exe powrprof.dll,SetSuspendState 0,1,0", invErr.Command)
	require.Equal(t, 1, runner.calls)
}

// TestExecuteTimeout verifies a hung command is abandoned after the timeout.
func TestExecuteTimeout(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{block: true}
	inv := NewInvoker(Options{GOOS: "linux", Timeout: 20 * time.Millisecond, Runner: runner.run})

	started := time.Now()
	err := inv.Execute(context.Background())

	require.ErrorIs(t, err, domain.ErrInvocationTimeout)
	require.Less(t, time.Since(started), time.Second)
	require.Equal(t, "systemctl", runner.name)
}

// TestCustomCommand verifies the custom command is split like a shell.
func TestCustomCommand(t *testing.T) {
	t.Parallel()

	runner := &recordingRunner{}
	inv := NewInvoker(Options{
		Method:  MethodCommand,
		Command: `sh -c "echo 'bye' && loginctl suspend"`,
		GOOS:    "linux",
		Runner:  runner.run,
	})

	require.NoError(t, inv.Execute(context.Background()))
	require.Equal(t, "sh", runner.name)
	require.Equal(t, []string{"-c", "echo 'bye' && loginctl suspend"}, runner.args)
}

// TestShutdownCommands keeps the power-off command table.
func TestShutdownCommands(t *testing.T) {
	t.Parallel()

	args, err := NewInvoker(Options{Method: MethodShutdown, GOOS: "windows"}).Command()
	require.NoError(t, err)
	require.Equal(t, []string{"shutdown.exe", "-s", "-f", "-t", "0"}, args)

	args, err = NewInvoker(Options{Method: MethodShutdown, GOOS: "darwin"}).Command()
	require.NoError(t, err)
	require.Equal(t, []string{"shutdown", "-h", "now"}, args)
}

// TestFromConfig verifies the sleep settings are carried over.
func TestFromConfig(t *testing.T) {
	t.Parallel()

	inv := FromConfig(config.Sleep{Method: "Command", Command: "loginctl suspend", Timeout: 2 * time.Second})

	require.Equal(t, MethodCommand, inv.Method())
	require.Equal(t, 2*time.Second, inv.timeout)

	args, err := inv.Command()
	require.NoError(t, err)
	require.Equal(t, []string{"loginctl", "suspend"}, args)
}

// TestMethodsPassValidation verifies every method is accepted by the settings validation.
func TestMethodsPassValidation(t *testing.T) {
	t.Parallel()

	methods := []string{MethodAuto, MethodPowerShell, MethodRundll32, MethodSystemctl, MethodPmset, MethodShutdown, MethodCommand}
	for _, method := range methods {
		cfg := config.Defaults()
		cfg.Sleep.Method = method
		require.NoError(t, config.Validate(cfg), method)
	}

	cfg := config.Defaults()
	cfg.Sleep.Method = "hibernate"
	require.ErrorIs(t, config.Validate(cfg), config.ErrUnknownSleepMethod)
}
