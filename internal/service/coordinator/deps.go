package coordinator

import (
	"context"
	"errors"
	"time"
)

// SoundPlayer plays the alarm with a hard duration cap.
type SoundPlayer interface {
	Play(ctx context.Context, file string) error
	Stop(ctx context.Context) error
	IsPlaying() bool
	RemainingTime() time.Duration
	SetDuration(duration time.Duration)
}

// CancellationListener reports the first key press after Start.
type CancellationListener interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsListening() bool
	OnCancellation(callback func(reason string))
}

// SleepInvoker suspends the machine.
type SleepInvoker interface {
	Execute(ctx context.Context) error
}

// RestartScheduler holds the single delayed re-arm.
type RestartScheduler interface {
	Schedule(ctx context.Context, delay time.Duration, callback func()) error
	Cancel(ctx context.Context) error
	IsScheduled() bool
	RemainingTime() time.Duration
}

// DailyTrigger fires once per day at the alarm time.
type DailyTrigger interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
	Reschedule(ctx context.Context, alarmTime string) error
	NextFire() time.Time
	OnFire(callback func(alarmTime string))
}

// Dependencies are the capabilities the coordinator drives.
type Dependencies struct {
	Sound    SoundPlayer
	Listener CancellationListener
	Sleep    SleepInvoker
	Restart  RestartScheduler
	Trigger  DailyTrigger
}

var (
	errConfigRequired       = errors.New("configuration is required")
	errSoundRequired        = errors.New("sound player is required")
	errListenerRequired     = errors.New("cancellation listener is required")
	errSleepRequired        = errors.New("sleep invoker is required")
	errRestartRequired      = errors.New("restart scheduler is required")
	errTriggerRequired      = errors.New("daily trigger is required")
	errCoordinatorIsRunning = errors.New("coordinator is already running")
)

// validate reports the first missing dependency.
func (d Dependencies) validate() error {
	switch {
	case d.Sound == nil:
		return errSoundRequired
	case d.Listener == nil:
		return errListenerRequired
	case d.Sleep == nil:
		return errSleepRequired
	case d.Restart == nil:
		return errRestartRequired
	case d.Trigger == nil:
		return errTriggerRequired
	default:
		return nil
	}
}
