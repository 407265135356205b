package alarm

import "time"

// State is a coordinator lifecycle state.
type State int

const (
	// StateIdle waits for the daily trigger.
	StateIdle State = iota
	// StateRinging plays the alarm and listens for a cancellation.
	StateRinging
	// StateCancelled is the instant between a cancellation and arming the restart.
	StateCancelled
	// StateRestartArmed waits for the restart delay to elapse.
	StateRestartArmed
	// StateSleeping runs the suspend command.
	StateSleeping
)

// String returns a lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRinging:
		return "ringing"
	case StateCancelled:
		return "cancelled"
	case StateRestartArmed:
		return "restart_armed"
	case StateSleeping:
		return "sleeping"
	default:
		return "unknown"
	}
}

// States returns every state in declaration order.
func States() []State {
	return []State{StateIdle, StateRinging, StateCancelled, StateRestartArmed, StateSleeping}
}

// Config is the part of the settings a cycle depends on.
// A cycle takes a copy when it begins and never sees later updates.
type Config struct {
	// Time is the daily alarm time in HH:MM format.
	Time string
	// Enabled turns the daily trigger on or off.
	Enabled bool
	// SoundFile is the audio file played while ringing.
	SoundFile string
}

// Cycle is one pass through ringing, cancel-or-sleep and recovery.
type Cycle struct {
	// ID increases by one for every cycle in the process lifetime.
	ID uint64
	// StartedAt is when the cycle began ringing.
	StartedAt time.Time
	// Deadline is StartedAt plus the sound duration.
	Deadline time.Time
	// State is the coordinator state while this cycle is active.
	State State
	// CancelReason is set once the cycle is cancelled.
	CancelReason string
	// Config is the alarm configuration the cycle was started with.
	Config Config
}

// Clone returns a copy of the cycle to avoid leaking internal references.
func (c *Cycle) Clone() *Cycle {
	if c == nil {
		return nil
	}

	cloned := *c

	return &cloned
}

// CeilSeconds rounds d up to whole seconds, flooring negative values at zero.
func CeilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}

	return ((d + time.Second - 1) / time.Second) * time.Second
}
