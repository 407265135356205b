package coordinator

import (
	"time"

	domain "github.com/oshokin/stop-the-game/internal/domain/alarm"
)

// Status is a read-only view of the coordinator.
type Status struct {
	// State is the current lifecycle state.
	State domain.State
	// Cycle is a copy of the active cycle, nil when idle.
	Cycle *domain.Cycle
	// AlarmTime is the configured daily time.
	AlarmTime string
	// Enabled reports whether the daily trigger is on.
	Enabled bool
	// Running reports whether the coordinator loop is processing events.
	Running bool
	// NextFire is the next daily firing, zero when the trigger is disarmed.
	NextFire time.Time
	// SoundRemaining is the time left in the ringing window.
	SoundRemaining time.Duration
	// RestartRemaining is the time left until a cancelled alarm rings again.
	RestartRemaining time.Duration
}

// MenuState is the enabled state of each control surface action.
type MenuState struct {
	Start    bool
	Stop     bool
	Settings bool
	Exit     bool
}

// publish copies loop-owned fields into the snapshot.
func (c *Coordinator) publish() {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()

	c.status = Status{
		State:     c.state,
		Cycle:     c.cycle.Clone(),
		AlarmTime: c.cfg.Alarm.Time,
		Enabled:   c.cfg.Alarm.Enabled,
	}
}

// Status returns the current snapshot with live timer readings.
func (c *Coordinator) Status() Status {
	c.statusMu.RLock()
	status := c.status
	status.Cycle = status.Cycle.Clone()
	c.statusMu.RUnlock()

	status.Running = c.started.Load() && !c.IsStopped()

	if c.deps.Trigger.IsRunning() {
		status.NextFire = c.deps.Trigger.NextFire()
	}

	status.SoundRemaining = c.deps.Sound.RemainingTime()
	status.RestartRemaining = c.deps.Restart.RemainingTime()

	return status
}

// MenuState derives which actions make sense in the current state.
func (c *Coordinator) MenuState() MenuState {
	status := c.Status()

	return MenuState{
		Start:    status.Running && status.State == domain.StateIdle,
		Stop:     status.Running && (status.State == domain.StateRinging || status.State == domain.StateRestartArmed),
		Settings: true,
		Exit:     true,
	}
}
