package alarm

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyActive is returned when a cycle begins while another one is active.
	ErrAlreadyActive = errors.New("alarm cycle is already active")
	// ErrAlreadyPlaying is returned when playback starts while a session is active.
	ErrAlreadyPlaying = errors.New("alarm sound is already playing")
	// ErrNotPlaying is returned when playback stops without an active session.
	ErrNotPlaying = errors.New("alarm sound is not playing")
	// ErrAlreadyScheduled is returned when a restart is scheduled while a ticket is live.
	ErrAlreadyScheduled = errors.New("restart is already scheduled")
	// ErrNotScheduled is returned when cancelling a restart that does not exist.
	ErrNotScheduled = errors.New("no restart scheduled to cancel")
	// ErrUnsupportedEnvironment is returned when the platform cannot be suspended.
	ErrUnsupportedEnvironment = errors.New("unsupported environment")
	// ErrAlreadyRunning is returned when an armed component is started again.
	ErrAlreadyRunning = errors.New("already running")
	// ErrNotRunning is returned when a disarmed component is stopped again.
	ErrNotRunning = errors.New("not running")
	// ErrNoActiveCycle is returned when stopping while nothing is ringing or armed.
	ErrNoActiveCycle = errors.New("no active alarm cycle")
	// ErrSleepInProgress is returned when stopping while the suspend command runs.
	ErrSleepInProgress = errors.New("sleep command is in progress")
	// ErrCoordinatorStopped is returned when the coordinator loop is not running.
	ErrCoordinatorStopped = errors.New("coordinator is stopped")
	// ErrInvocationTimeout is the cause of an InvocationError when the command timed out.
	ErrInvocationTimeout = errors.New("invocation timed out")
)

// InvocationError reports a failed suspend command.
type InvocationError struct {
	// Command is the command line that was run.
	Command string
	// Cause is the underlying failure: timeout, non-zero exit or spawn error.
	Cause error
}

// Error implements error.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("invocation of %q failed: %v", e.Command, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *InvocationError) Unwrap() error {
	return e.Cause
}
