package alarm

import (
	"fmt"
	"time"
)

// EventKind tags a LifecycleEvent.
type EventKind int

const (
	// EventScheduled is emitted when the daily trigger is armed.
	EventScheduled EventKind = iota + 1
	// EventRinging is emitted when a cycle starts ringing.
	EventRinging
	// EventCancelled is emitted when the user cancels a ringing alarm.
	EventCancelled
	// EventSleepAttempted is emitted when the ringing window elapsed and the suspend starts.
	EventSleepAttempted
	// EventSleepSucceeded is emitted when the suspend command returned successfully.
	EventSleepSucceeded
	// EventSleepFailed is emitted when the suspend command failed.
	EventSleepFailed
	// EventRestartArmed is emitted when a restart ticket is live.
	EventRestartArmed
	// EventRestartFired is emitted when the restart delay elapsed.
	EventRestartFired
	// EventStopped is emitted when an active cycle is stopped from the control surface.
	EventStopped
)

//nolint:gochecknoglobals // Read-only lookup table.
var eventKindNames = map[EventKind]string{
	EventScheduled:      "scheduled",
	EventRinging:        "ringing",
	EventCancelled:      "cancelled",
	EventSleepAttempted: "sleep_attempted",
	EventSleepSucceeded: "sleep_succeeded",
	EventSleepFailed:    "sleep_failed",
	EventRestartArmed:   "restart_armed",
	EventRestartFired:   "restart_fired",
	EventStopped:        "stopped",
}

// String returns the snake_case name of the kind.
func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}

	return "unknown"
}

// EventKinds returns every known kind in declaration order.
func EventKinds() []EventKind {
	return []EventKind{
		EventScheduled,
		EventRinging,
		EventCancelled,
		EventSleepAttempted,
		EventSleepSucceeded,
		EventSleepFailed,
		EventRestartArmed,
		EventRestartFired,
		EventStopped,
	}
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(name string) (EventKind, bool) {
	for kind, kindName := range eventKindNames {
		if kindName == name {
			return kind, true
		}
	}

	return 0, false
}

// LifecycleEvent is an immutable notification about a coordinator transition.
type LifecycleEvent struct {
	// Kind tags the event.
	Kind EventKind
	// CycleID is the cycle the event belongs to, zero for Scheduled.
	CycleID uint64
	// At is when the transition happened.
	At time.Time
	// State is the coordinator state after the transition.
	State State
	// Reason is the cancellation reason for Cancelled and Stopped.
	Reason string
	// Cause is the failure for SleepFailed.
	Cause error
	// Delay is the restart delay for RestartArmed.
	Delay time.Duration
	// AlarmTime is the configured time for Scheduled.
	AlarmTime string
}

// Detail renders the variant payload, or an empty string when there is none.
func (e LifecycleEvent) Detail() string {
	switch e.Kind {
	case EventCancelled, EventStopped:
		return "reason=" + e.Reason
	case EventSleepFailed:
		if e.Cause != nil {
			return "cause=" + e.Cause.Error()
		}
	case EventRestartArmed:
		return "delay=" + e.Delay.String()
	case EventScheduled:
		return "time=" + e.AlarmTime
	case EventRinging, EventSleepAttempted, EventSleepSucceeded, EventRestartFired:
	}

	return ""
}

// String renders the event for logs and the console.
func (e LifecycleEvent) String() string {
	if detail := e.Detail(); detail != "" {
		return fmt.Sprintf("%s(cycle=%d %s)", e.Kind, e.CycleID, detail)
	}

	return fmt.Sprintf("%s(cycle=%d)", e.Kind, e.CycleID)
}

// Observer receives lifecycle events in emission order.
// Implementations must not block: they run on the coordinator goroutine.
type Observer interface {
	Observe(event LifecycleEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(event LifecycleEvent)

// Observe calls f(event).
func (f ObserverFunc) Observe(event LifecycleEvent) {
	f(event)
}
