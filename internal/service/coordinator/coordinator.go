package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oshokin/stop-the-game/internal/config"
	domain "github.com/oshokin/stop-the-game/internal/domain/alarm"
	"github.com/oshokin/stop-the-game/internal/logger"
)

const (
	// inboxSize is the capacity of the event queue.
	inboxSize = 32

	// ReasonStopped is the reason attached to a Stopped event.
	ReasonStopped = "stopped"
)

// message is a unit of work applied on the loop goroutine.
type message func(ctx context.Context)

// Coordinator drives alarm cycles.
type Coordinator struct {
	deps Dependencies
	now  func() time.Time

	// inbox is consumed only by Run.
	inbox chan message
	// stopped is closed when Run returns.
	stopped chan struct{}
	// started flips once, when Run begins.
	started atomic.Bool
	// listenerCycle is the cycle the keyboard listener was last armed for.
	listenerCycle atomic.Uint64

	// Fields below are owned by the loop goroutine.

	cfg      *config.Config
	cycle    *domain.Cycle
	state    domain.State
	nextID   uint64
	deadline *time.Timer

	observersMu sync.RWMutex
	observers   []domain.Observer

	// statusMu guards status, the snapshot published after every transition.
	statusMu sync.RWMutex
	status   Status
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the clock used for cycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a coordinator in the Idle state. Call Run to start it.
func New(cfg *config.Config, deps Dependencies, opts ...Option) (*Coordinator, error) {
	if cfg == nil {
		return nil, errConfigRequired
	}

	if err := deps.validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		deps:    deps,
		now:     time.Now,
		inbox:   make(chan message, inboxSize),
		stopped: make(chan struct{}),
		cfg:     cfg.Clone(),
		state:   domain.StateIdle,
	}

	for _, opt := range opts {
		opt(c)
	}

	deps.Sound.SetDuration(c.cfg.Sound.Duration)

	deps.Listener.OnCancellation(func(reason string) {
		cycleID := c.listenerCycle.Load()
		c.post(func(ctx context.Context) {
			c.onCancellation(ctx, cycleID, reason)
		})
	})

	deps.Trigger.OnFire(func(alarmTime string) {
		c.post(func(ctx context.Context) {
			c.onTrigger(ctx, alarmTime)
		})
	})

	c.publish()

	return c, nil
}

// Subscribe adds an observer. Observers run on the coordinator goroutine.
func (c *Coordinator) Subscribe(observer domain.Observer) {
	if observer == nil {
		return
	}

	c.observersMu.Lock()
	defer c.observersMu.Unlock()

	c.observers = append(c.observers, observer)
}

// Run processes events until ctx is cancelled, then disarms every component.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errCoordinatorIsRunning
	}

	defer close(c.stopped)

	ctx = logger.WithName(ctx, "coordinator")

	c.publish()
	c.armTrigger(ctx)

	logger.InfoKV(ctx, "Coordinator started", "alarm_time", c.cfg.Alarm.Time, "enabled", c.cfg.Alarm.Enabled)

	for {
		select {
		case <-ctx.Done():
			c.shutdown(ctx)
			logger.Info(ctx, "Coordinator stopped")

			return nil
		case msg := <-c.inbox:
			msg(ctx)
		}
	}
}

// BeginCycle starts a cycle immediately, as the tray Start action does.
func (c *Coordinator) BeginCycle(ctx context.Context) (*domain.Cycle, error) {
	var cycle *domain.Cycle

	err := c.call(ctx, func(loopCtx context.Context) error {
		started, err := c.beginCycle(loopCtx)
		cycle = started

		return err
	})

	return cycle, err
}

// ForceStop ends a ringing or restart-armed cycle and returns to Idle.
func (c *Coordinator) ForceStop(ctx context.Context) error {
	return c.call(ctx, c.forceStop)
}

// UpdateConfig applies new settings. A running cycle keeps the settings it started with.
func (c *Coordinator) UpdateConfig(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return errConfigRequired
	}

	cloned := cfg.Clone()

	return c.call(ctx, func(loopCtx context.Context) error {
		return c.applyConfig(loopCtx, cloned)
	})
}

// post queues msg for the loop. It is dropped once the loop has exited.
func (c *Coordinator) post(msg message) {
	select {
	case c.inbox <- msg:
	case <-c.stopped:
	}
}

// call runs fn on the loop and waits for its result.
func (c *Coordinator) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !c.started.Load() {
		return domain.ErrCoordinatorStopped
	}

	done := make(chan error, 1)
	msg := func(loopCtx context.Context) {
		done <- fn(loopCtx)
	}

	select {
	case c.inbox <- msg:
	case <-c.stopped:
		return domain.ErrCoordinatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-c.stopped:
		select {
		case err := <-done:
			return err
		default:
			return domain.ErrCoordinatorStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// armTrigger starts the daily trigger when the alarm is enabled.
func (c *Coordinator) armTrigger(ctx context.Context) {
	if !c.cfg.Alarm.Enabled || c.deps.Trigger.IsRunning() {
		return
	}

	if err := c.deps.Trigger.Start(ctx); err != nil {
		logger.ErrorKV(ctx, "Failed to arm daily trigger", "error", err)
		return
	}

	c.emit(ctx, domain.LifecycleEvent{Kind: domain.EventScheduled, AlarmTime: c.cfg.Alarm.Time})
}

// onTrigger begins the daily cycle.
func (c *Coordinator) onTrigger(ctx context.Context, alarmTime string) {
	if !c.cfg.Alarm.Enabled {
		logger.DebugKV(ctx, "Daily trigger ignored, alarm is disabled", "alarm_time", alarmTime)
		return
	}

	// beginCycle already logged the refusal.
	if _, err := c.beginCycle(ctx); err != nil {
		logger.DebugKV(ctx, "Daily alarm skipped", "alarm_time", alarmTime, "error", err)
	}
}

// beginCycle moves Idle to Ringing.
func (c *Coordinator) beginCycle(ctx context.Context) (*domain.Cycle, error) {
	if c.cycle != nil {
		logger.WarnKV(ctx, "Alarm cycle is already active", "cycle_id", c.cycle.ID, "state", c.state.String())
		return nil, domain.ErrAlreadyActive
	}

	c.nextID++

	var (
		now      = c.now()
		duration = c.cfg.Sound.Duration
		cycle    = &domain.Cycle{
			ID:        c.nextID,
			StartedAt: now,
			Deadline:  now.Add(duration),
			State:     domain.StateRinging,
			Config: domain.Config{
				Time:      c.cfg.Alarm.Time,
				Enabled:   c.cfg.Alarm.Enabled,
				SoundFile: c.cfg.Alarm.SoundFile,
			},
		}
	)

	c.cycle = cycle
	c.state = domain.StateRinging

	cycleCtx := logger.WithKV(ctx, "cycle_id", cycle.ID)

	// Sound failures must not keep the deadline from firing.
	if err := c.deps.Sound.Play(cycleCtx, cycle.Config.SoundFile); err != nil {
		logger.DebugKV(cycleCtx, "Ringing without sound", "error", err)
	}

	c.listenerCycle.Store(cycle.ID)

	if err := c.deps.Listener.Start(cycleCtx); err != nil {
		logger.DebugKV(cycleCtx, "Ringing without keyboard cancellation", "error", err)
	}

	id := cycle.ID
	c.deadline = time.AfterFunc(duration, func() {
		c.post(func(ctx context.Context) {
			c.onDeadline(ctx, id)
		})
	})

	c.emit(ctx, domain.LifecycleEvent{Kind: domain.EventRinging, CycleID: id})

	return cycle.Clone(), nil
}

// onCancellation moves Ringing to Cancelled and immediately to RestartArmed.
func (c *Coordinator) onCancellation(ctx context.Context, cycleID uint64, reason string) {
	if c.cycle == nil || c.cycle.ID != cycleID || c.state != domain.StateRinging {
		logger.DebugKV(ctx, "Stale cancellation suppressed", "cycle_id", cycleID, "state", c.state.String())
		return
	}

	ctx = logger.WithKV(ctx, "cycle_id", cycleID)

	c.stopDeadline()
	c.silence(ctx)

	c.cycle.CancelReason = reason
	c.cycle.State = domain.StateCancelled
	c.state = domain.StateCancelled

	c.emit(ctx, domain.LifecycleEvent{Kind: domain.EventCancelled, CycleID: cycleID, Reason: reason})

	var (
		delay   = c.cfg.Restart.Delay
		restart = func() {
			c.post(func(ctx context.Context) {
				c.onRestart(ctx, cycleID)
			})
		}
	)

	err := c.deps.Restart.Schedule(ctx, delay, restart)
	if errors.Is(err, domain.ErrAlreadyScheduled) {
		// The scheduler logged the refusal. A leftover ticket belongs to an older cycle and would never re-arm this one.
		_ = c.deps.Restart.Cancel(ctx)
		err = c.deps.Restart.Schedule(ctx, delay, restart)
	}

	if err != nil {
		logger.ErrorKV(ctx, "Failed to schedule restart", "error", err)
	}

	c.cycle.State = domain.StateRestartArmed
	c.state = domain.StateRestartArmed

	c.emit(ctx, domain.LifecycleEvent{Kind: domain.EventRestartArmed, CycleID: cycleID, Delay: delay})
}

// onDeadline moves Ringing to Sleeping and runs the suspend command off the loop.
func (c *Coordinator) onDeadline(ctx context.Context, cycleID uint64) {
	if c.cycle == nil || c.cycle.ID != cycleID || c.state != domain.StateRinging {
		logger.DebugKV(ctx, "Stale deadline suppressed", "cycle_id", cycleID, "state", c.state.String())
		return
	}

	ctx = logger.WithKV(ctx, "cycle_id", cycleID)

	c.deadline = nil

	if c.deps.Listener.IsListening() {
		_ = c.deps.Listener.Stop(ctx)
	}

	c.cycle.State = domain.StateSleeping
	c.state = domain.StateSleeping

	c.emit(ctx, domain.LifecycleEvent{Kind: domain.EventSleepAttempted, CycleID: cycleID})

	go func() {
		err := c.deps.Sleep.Execute(ctx)

		c.post(func(ctx context.Context) {
			c.onSleepResult(ctx, cycleID, err)
		})
	}()
}

// onSleepResult ends the cycle. A failed sleep is not retried.
func (c *Coordinator) onSleepResult(ctx context.Context, cycleID uint64, err error) {
	if c.cycle == nil || c.cycle.ID != cycleID || c.state != domain.StateSleeping {
		logger.DebugKV(ctx, "Stale sleep result suppressed", "cycle_id", cycleID)
		return
	}

	c.cycle = nil
	c.state = domain.StateIdle

	if err != nil {
		c.emit(ctx, domain.LifecycleEvent{Kind: domain.EventSleepFailed, CycleID: cycleID, Cause: err})
		return
	}

	c.emit(ctx, domain.LifecycleEvent{Kind: domain.EventSleepSucceeded, CycleID: cycleID})
}

// onRestart ends the cancelled cycle and begins a new one.
func (c *Coordinator) onRestart(ctx context.Context, cycleID uint64) {
	if c.cycle == nil || c.cycle.ID != cycleID || c.state != domain.StateRestartArmed {
		logger.DebugKV(ctx, "Stale restart suppressed", "cycle_id", cycleID)
		return
	}

	c.cycle = nil
	c.state = domain.StateIdle

	c.emit(ctx, domain.LifecycleEvent{Kind: domain.EventRestartFired, CycleID: cycleID})

	if _, err := c.beginCycle(ctx); err != nil {
		logger.ErrorKV(ctx, "Failed to restart alarm", "error", err)
	}
}

// forceStop ends the active cycle on request of the control surface.
func (c *Coordinator) forceStop(ctx context.Context) error {
	if c.cycle == nil {
		logger.Warn(ctx, "No active alarm cycle to stop")
		return domain.ErrNoActiveCycle
	}

	cycleID := c.cycle.ID
	ctx = logger.WithKV(ctx, "cycle_id", cycleID)

	switch c.state {
	case domain.StateSleeping:
		logger.Warn(ctx, "Sleep command is in progress, cannot stop")
		return domain.ErrSleepInProgress
	case domain.StateRinging:
		c.stopDeadline()
		c.silence(ctx)
	case domain.StateRestartArmed, domain.StateCancelled:
		if c.deps.Restart.IsScheduled() {
			_ = c.deps.Restart.Cancel(ctx)
		}
	case domain.StateIdle:
	}

	c.cycle = nil
	c.state = domain.StateIdle

	c.emit(ctx, domain.LifecycleEvent{Kind: domain.EventStopped, CycleID: cycleID, Reason: ReasonStopped})

	return nil
}

// applyConfig swaps the settings and re-arms the trigger for the new alarm time.
func (c *Coordinator) applyConfig(ctx context.Context, cfg *config.Config) error {
	previous := c.cfg
	c.cfg = cfg

	c.deps.Sound.SetDuration(cfg.Sound.Duration)

	switch {
	case !cfg.Alarm.Enabled && c.deps.Trigger.IsRunning():
		if err := c.deps.Trigger.Stop(ctx); err != nil {
			return fmt.Errorf("stop daily trigger: %w", err)
		}
	case cfg.Alarm.Enabled && !c.deps.Trigger.IsRunning():
		if cfg.Alarm.Time != previous.Alarm.Time {
			if err := c.deps.Trigger.Reschedule(ctx, cfg.Alarm.Time); err != nil {
				return fmt.Errorf("reschedule daily trigger: %w", err)
			}
		}

		c.armTrigger(ctx)
	case cfg.Alarm.Enabled && cfg.Alarm.Time != previous.Alarm.Time:
		if err := c.deps.Trigger.Reschedule(ctx, cfg.Alarm.Time); err != nil {
			return fmt.Errorf("reschedule daily trigger: %w", err)
		}

		c.emit(ctx, domain.LifecycleEvent{Kind: domain.EventScheduled, AlarmTime: cfg.Alarm.Time})
	}

	c.publish()

	logger.InfoKV(ctx, "Settings applied", "alarm_time", cfg.Alarm.Time, "enabled", cfg.Alarm.Enabled)

	return nil
}

// shutdown disarms every component when the loop exits.
func (c *Coordinator) shutdown(ctx context.Context) {
	c.stopDeadline()
	c.silence(ctx)

	if c.deps.Restart.IsScheduled() {
		_ = c.deps.Restart.Cancel(ctx)
	}

	if c.deps.Trigger.IsRunning() {
		_ = c.deps.Trigger.Stop(ctx)
	}

	c.cycle = nil
	c.state = domain.StateIdle
	c.publish()
}

// silence stops the sound and the keyboard listener when they are active.
func (c *Coordinator) silence(ctx context.Context) {
	if c.deps.Sound.IsPlaying() {
		_ = c.deps.Sound.Stop(ctx)
	}

	if c.deps.Listener.IsListening() {
		_ = c.deps.Listener.Stop(ctx)
	}
}

// stopDeadline cancels the ringing deadline timer.
func (c *Coordinator) stopDeadline() {
	if c.deadline != nil {
		c.deadline.Stop()
		c.deadline = nil
	}
}

// emit publishes the snapshot and delivers ev to every observer in order.
func (c *Coordinator) emit(ctx context.Context, ev domain.LifecycleEvent) {
	ev.At = c.now()
	ev.State = c.state

	c.publish()

	logger.InfoKV(ctx, "Lifecycle event", "event", ev.String(), "state", ev.State.String())

	c.observersMu.RLock()
	observers := append([]domain.Observer(nil), c.observers...)
	c.observersMu.RUnlock()

	for _, observer := range observers {
		notify(ctx, observer, ev)
	}
}

// notify shields the loop from a panicking observer.
func notify(ctx context.Context, observer domain.Observer, ev domain.LifecycleEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorKV(ctx, "Observer panicked", "event", ev.Kind.String(), "panic", r)
		}
	}()

	observer.Observe(ev)
}

// IsStopped reports whether Run has returned.
func (c *Coordinator) IsStopped() bool {
	select {
	case <-c.stopped:
		return true
	default:
		return false
	}
}

// Wait blocks until Run returns or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	select {
	case <-c.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
