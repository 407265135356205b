package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/oshokin/stop-the-game/internal/config"
	domain "github.com/oshokin/stop-the-game/internal/domain/alarm"
	"github.com/oshokin/stop-the-game/internal/logger"
	"github.com/oshokin/stop-the-game/internal/service/restart"
)

// fakeSound is an in-memory SoundPlayer.
type fakeSound struct {
	playing  bool
	plays    int
	files    []string
	duration time.Duration
	mu       sync.Mutex
}

func (s *fakeSound) Play(_ context.Context, file string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.playing {
		return domain.ErrAlreadyPlaying
	}

	s.playing = true
	s.plays++
	s.files = append(s.files, file)

	return nil
}

func (s *fakeSound) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.playing {
		return domain.ErrNotPlaying
	}

	s.playing = false

	return nil
}

func (s *fakeSound) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.playing
}

func (s *fakeSound) RemainingTime() time.Duration { return 0 }

func (s *fakeSound) SetDuration(duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.duration = duration
}

func (s *fakeSound) playCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.plays
}

// fakeListener is an in-memory CancellationListener.
type fakeListener struct {
	callback  func(reason string)
	listening bool
	mu        sync.Mutex
}

func (l *fakeListener) Start(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.listening {
		return domain.ErrAlreadyRunning
	}

	l.listening = true

	return nil
}

func (l *fakeListener) Stop(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.listening {
		return domain.ErrNotRunning
	}

	l.listening = false

	return nil
}

func (l *fakeListener) IsListening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.listening
}

func (l *fakeListener) OnCancellation(callback func(reason string)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.callback = callback
}

// press behaves like a key press: report, then disarm. It is ignored while disarmed.
func (l *fakeListener) press(reason string) {
	l.mu.Lock()
	if !l.listening {
		l.mu.Unlock()
		return
	}

	callback := l.callback
	l.listening = false
	l.mu.Unlock()

	callback(reason)
}

// pressLate delivers a cancellation even when disarmed, like a key read just before disarming.
func (l *fakeListener) pressLate(reason string) {
	l.mu.Lock()
	callback := l.callback
	l.mu.Unlock()

	callback(reason)
}

// fakeSleep is an in-memory SleepInvoker.
type fakeSleep struct {
	err     error
	release chan struct{}
	calls   atomic.Int32
}

func (s *fakeSleep) Execute(ctx context.Context) error {
	s.calls.Add(1)

	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return s.err
}

// fakeTrigger is an in-memory DailyTrigger.
type fakeTrigger struct {
	callback    func(alarmTime string)
	rescheduled []string
	running     bool
	starts      int
	mu          sync.Mutex
}

func (f *fakeTrigger) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return domain.ErrAlreadyRunning
	}

	f.running = true
	f.starts++

	return nil
}

func (f *fakeTrigger) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return domain.ErrNotRunning
	}

	f.running = false

	return nil
}

func (f *fakeTrigger) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.running
}

func (f *fakeTrigger) Reschedule(_ context.Context, alarmTime string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rescheduled = append(f.rescheduled, alarmTime)

	return nil
}

func (f *fakeTrigger) NextFire() time.Time {
	return time.Date(2025, 1, 1, 21, 0, 0, 0, time.UTC)
}

func (f *fakeTrigger) OnFire(callback func(alarmTime string)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.callback = callback
}

func (f *fakeTrigger) fire(alarmTime string) {
	f.mu.Lock()
	callback := f.callback
	f.mu.Unlock()

	callback(alarmTime)
}

// recorder is an Observer keeping every event.
type recorder struct {
	events []domain.LifecycleEvent
	mu     sync.Mutex
}

func (r *recorder) Observe(ev domain.LifecycleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []domain.LifecycleEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]domain.LifecycleEvent(nil), r.events...)
}

func (r *recorder) kinds() []domain.EventKind {
	events := r.snapshot()
	kinds := make([]domain.EventKind, 0, len(events))

	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}

	return kinds
}

func (r *recorder) waitKinds(t *testing.T, want ...domain.EventKind) []domain.LifecycleEvent {
	t.Helper()

	require.Eventually(t, func() bool {
		return len(r.snapshot()) >= len(want)
	}, 2*time.Second, 2*time.Millisecond, "waiting for %v, got %v", want, r.kinds())
	require.Equal(t, want, r.kinds())

	return r.snapshot()
}

// harness wires a coordinator to fakes and runs it.
type harness struct {
	coord    *Coordinator
	sound    *fakeSound
	listener *fakeListener
	sleep    *fakeSleep
	restart  *restart.Scheduler
	trigger  *fakeTrigger
	events   *recorder
	logs     *observer.ObservedLogs
	cancel   context.CancelFunc
}

// warnings returns the messages logged at warning level so far.
func (h *harness) warnings() []string {
	entries := h.logs.FilterLevelExact(zapcore.WarnLevel).All()
	messages := make([]string, 0, len(entries))

	for _, entry := range entries {
		messages = append(messages, entry.Message)
	}

	return messages
}

func newHarness(t *testing.T, soundDuration, restartDelay time.Duration, sleep *fakeSleep) *harness {
	t.Helper()

	cfg := config.Defaults()
	cfg.Sound.Duration = soundDuration
	cfg.Restart.Delay = restartDelay

	if sleep == nil {
		sleep = &fakeSleep{}
	}

	h := &harness{
		sound:    &fakeSound{},
		listener: &fakeListener{},
		sleep:    sleep,
		restart:  restart.New(),
		trigger:  &fakeTrigger{},
		events:   &recorder{},
	}

	coord, err := New(cfg, Dependencies{
		Sound:    h.sound,
		Listener: h.listener,
		Sleep:    h.sleep,
		Restart:  h.restart,
		Trigger:  h.trigger,
	})
	require.NoError(t, err)

	coord.Subscribe(h.events)
	h.coord = coord

	core, logs := observer.New(zapcore.DebugLevel)
	h.logs = logs

	ctx, cancel := context.WithCancel(logger.ToContext(context.Background(), zap.New(core).Sugar()))
	h.cancel = cancel

	go func() {
		_ = coord.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		_ = coord.Wait(context.Background())
	})

	require.Eventually(t, func() bool { return coord.Status().Running }, time.Second, time.Millisecond)

	return h
}

// TestScenarioUncancelledAlarmSleeps rings, lets the window elapse and suspends once.
func TestScenarioUncancelledAlarmSleeps(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 40*time.Millisecond, time.Hour, nil)

	cycle, err := h.coord.BeginCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(1), cycle.ID)
	require.Equal(t, domain.StateRinging, cycle.State)
	require.Equal(t, config.DefaultSoundFile, cycle.Config.SoundFile)
	require.Equal(t, 40*time.Millisecond, cycle.Deadline.Sub(cycle.StartedAt))

	events := h.events.waitKinds(t,
		domain.EventScheduled,
		domain.EventRinging,
		domain.EventSleepAttempted,
		domain.EventSleepSucceeded,
	)

	require.Equal(t, config.DefaultAlarmTime, events[0].AlarmTime)
	require.Equal(t, int32(1), h.sleep.calls.Load())
	require.False(t, h.listener.IsListening())
	require.False(t, h.restart.IsScheduled())
	require.Equal(t, domain.StateIdle, h.coord.Status().State)
	require.Nil(t, h.coord.Status().Cycle)
}

// TestScenarioCancelRearms cancels, waits for the restart and gets a fresh cycle.
func TestScenarioCancelRearms(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 500*time.Millisecond, 20*time.Millisecond, nil)

	_, err := h.coord.BeginCycle(context.Background())
	require.NoError(t, err)

	h.listener.press("manual")

	events := h.events.waitKinds(t,
		domain.EventScheduled,
		domain.EventRinging,
		domain.EventCancelled,
		domain.EventRestartArmed,
		domain.EventRestartFired,
		domain.EventRinging,
	)

	require.Equal(t, "manual", events[2].Reason)
	require.Equal(t, uint64(1), events[2].CycleID)
	require.Equal(t, 20*time.Millisecond, events[3].Delay)
	require.Equal(t, uint64(1), events[4].CycleID)
	require.Equal(t, uint64(2), events[5].CycleID)
	require.Zero(t, h.sleep.calls.Load())
	require.Equal(t, 2, h.sound.playCount())

	require.NoError(t, h.coord.ForceStop(context.Background()))

	events = h.events.snapshot()
	require.Equal(t, domain.EventStopped, events[len(events)-1].Kind)
	require.Equal(t, ReasonStopped, events[len(events)-1].Reason)
	require.False(t, h.sound.IsPlaying())
	require.False(t, h.listener.IsListening())
	require.Equal(t, domain.StateIdle, h.coord.Status().State)
}

// TestScenarioSleepFailureNoRetry returns to Idle after a failed suspend and does not retry.
func TestScenarioSleepFailureNoRetry(t *testing.T) {
	t.Parallel()

	sleepErr := &domain.InvocationError{Command: "systemctl suspend", Cause: errors.New("exit status 1")}
	h := newHarness(t, 20*time.Millisecond, time.Hour, &fakeSleep{err: sleepErr})

	_, err := h.coord.BeginCycle(context.Background())
	require.NoError(t, err)

	events := h.events.waitKinds(t,
		domain.EventScheduled,
		domain.EventRinging,
		domain.EventSleepAttempted,
		domain.EventSleepFailed,
	)

	require.ErrorIs(t, events[3].Cause, sleepErr)
	require.Equal(t, domain.StateIdle, events[3].State)

	require.Never(t, func() bool { return len(h.events.snapshot()) > 4 }, 80*time.Millisecond, 5*time.Millisecond)
	require.Equal(t, int32(1), h.sleep.calls.Load())
}

// TestBeginCycleWhileActive verifies a second cycle is refused and the first one is untouched.
func TestBeginCycleWhileActive(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Hour, time.Hour, nil)
	ctx := context.Background()

	first, err := h.coord.BeginCycle(ctx)
	require.NoError(t, err)

	_, err = h.coord.BeginCycle(ctx)
	require.ErrorIs(t, err, domain.ErrAlreadyActive)

	status := h.coord.Status()
	require.Equal(t, domain.StateRinging, status.State)
	require.Equal(t, first.ID, status.Cycle.ID)
	require.Equal(t, 1, h.sound.playCount())

	// Still refused while the restart is armed.
	h.listener.press("manual")
	h.events.waitKinds(t, domain.EventScheduled, domain.EventRinging, domain.EventCancelled, domain.EventRestartArmed)

	_, err = h.coord.BeginCycle(ctx)
	require.ErrorIs(t, err, domain.ErrAlreadyActive)
}

// TestTriggerDuringCycleWarnsOnce verifies a daily fire during an active cycle is refused with a single warning.
func TestTriggerDuringCycleWarnsOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Hour, time.Hour, nil)
	ctx := context.Background()

	first, err := h.coord.BeginCycle(ctx)
	require.NoError(t, err)

	h.trigger.fire(config.DefaultAlarmTime)

	// The loop handles messages in order, so the fire is processed before this call returns.
	require.NoError(t, h.coord.UpdateConfig(ctx, config.Defaults()))

	require.Equal(t, []string{"Alarm cycle is already active"}, h.warnings())
	require.Equal(t, first.ID, h.coord.Status().Cycle.ID)
	require.Equal(t, 1, h.sound.playCount())
}

// TestLeftoverRestartReplaced verifies a ticket left from an older cycle is reported once and replaced.
func TestLeftoverRestartReplaced(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Hour, 20*time.Millisecond, nil)
	stale := make(chan struct{}, 1)

	require.NoError(t, h.restart.Schedule(context.Background(), time.Hour, func() { stale <- struct{}{} }))

	_, err := h.coord.BeginCycle(context.Background())
	require.NoError(t, err)

	h.listener.press("manual")

	events := h.events.waitKinds(t,
		domain.EventScheduled,
		domain.EventRinging,
		domain.EventCancelled,
		domain.EventRestartArmed,
		domain.EventRestartFired,
		domain.EventRinging,
	)

	require.Equal(t, uint64(2), events[5].CycleID)
	require.Equal(t, []string{"Restart is already scheduled"}, h.warnings())
	require.Empty(t, stale)
}

// TestCancelSuppressesDeadline verifies the deadline loses once the cancellation won.
func TestCancelSuppressesDeadline(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 30*time.Millisecond, time.Hour, nil)

	_, err := h.coord.BeginCycle(context.Background())
	require.NoError(t, err)

	h.listener.press("manual")
	h.events.waitKinds(t, domain.EventScheduled, domain.EventRinging, domain.EventCancelled, domain.EventRestartArmed)

	require.Never(t, func() bool { return len(h.events.snapshot()) > 4 }, 100*time.Millisecond, 5*time.Millisecond)
	require.Zero(t, h.sleep.calls.Load())
	require.True(t, h.restart.IsScheduled())
}

// TestLateCancellationSuppressed verifies a cancellation after the deadline is dropped.
func TestLateCancellationSuppressed(t *testing.T) {
	t.Parallel()

	sleep := &fakeSleep{release: make(chan struct{})}
	h := newHarness(t, 20*time.Millisecond, time.Hour, sleep)
	ctx := context.Background()

	_, err := h.coord.BeginCycle(ctx)
	require.NoError(t, err)

	h.events.waitKinds(t, domain.EventScheduled, domain.EventRinging, domain.EventSleepAttempted)

	h.listener.pressLate("manual")
	require.ErrorIs(t, h.coord.ForceStop(ctx), domain.ErrSleepInProgress)

	close(sleep.release)

	h.events.waitKinds(t,
		domain.EventScheduled,
		domain.EventRinging,
		domain.EventSleepAttempted,
		domain.EventSleepSucceeded,
	)
	require.False(t, h.restart.IsScheduled())
}

// TestRaceExactlyOneWinner fires the cancellation as close to the deadline as possible.
func TestRaceExactlyOneWinner(t *testing.T) {
	t.Parallel()

	for i := 0; i < 10; i++ {
		h := newHarness(t, 5*time.Millisecond, time.Hour, nil)

		_, err := h.coord.BeginCycle(context.Background())
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		h.listener.pressLate("manual")

		require.Eventually(t, func() bool {
			return len(h.events.snapshot()) >= 4
		}, 2*time.Second, time.Millisecond)

		time.Sleep(20 * time.Millisecond)

		var cancelled, slept int

		for _, kind := range h.events.kinds() {
			switch kind { //nolint:exhaustive // Only the two outcomes matter.
			case domain.EventCancelled:
				cancelled++
			case domain.EventSleepAttempted:
				slept++
			}
		}

		require.Equal(t, 1, cancelled+slept, "events: %v", h.events.kinds())

		h.cancel()
	}
}

// TestForceStopIdle verifies stopping without a cycle is refused.
func TestForceStopIdle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Hour, time.Hour, nil)

	require.ErrorIs(t, h.coord.ForceStop(context.Background()), domain.ErrNoActiveCycle)
}

// TestForceStopRestartArmed verifies the pending restart is dropped.
func TestForceStopRestartArmed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Hour, time.Hour, nil)
	ctx := context.Background()

	_, err := h.coord.BeginCycle(ctx)
	require.NoError(t, err)

	h.listener.press("interrupt")
	h.events.waitKinds(t, domain.EventScheduled, domain.EventRinging, domain.EventCancelled, domain.EventRestartArmed)
	require.True(t, h.restart.IsScheduled())
	require.Positive(t, h.coord.Status().RestartRemaining)

	require.NoError(t, h.coord.ForceStop(ctx))
	require.False(t, h.restart.IsScheduled())

	// The next cycle gets a new id.
	cycle, err := h.coord.BeginCycle(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), cycle.ID)
}

// TestDailyTriggerBeginsCycle verifies the trigger callback starts a cycle only when enabled.
func TestDailyTriggerBeginsCycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Hour, time.Hour, nil)
	require.True(t, h.trigger.IsRunning())

	h.trigger.fire("21:00")
	h.events.waitKinds(t, domain.EventScheduled, domain.EventRinging)

	// A second firing during the cycle is ignored.
	h.trigger.fire("21:00")
	require.Never(t, func() bool { return len(h.events.snapshot()) > 2 }, 30*time.Millisecond, 5*time.Millisecond)
}

// TestUpdateConfig verifies rescheduling and disabling the trigger.
func TestUpdateConfig(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Hour, time.Hour, nil)
	ctx := context.Background()

	cfg := config.Defaults()
	cfg.Alarm.Time = "22:15"
	cfg.Sound.Duration = 45 * time.Second

	require.NoError(t, h.coord.UpdateConfig(ctx, cfg))

	events := h.events.waitKinds(t, domain.EventScheduled, domain.EventScheduled)
	require.Equal(t, "22:15", events[1].AlarmTime)
	require.Equal(t, "22:15", h.coord.Status().AlarmTime)

	h.trigger.mu.Lock()
	require.Equal(t, []string{"22:15"}, h.trigger.rescheduled)
	h.trigger.mu.Unlock()

	h.sound.mu.Lock()
	require.Equal(t, 45*time.Second, h.sound.duration)
	h.sound.mu.Unlock()

	cfg.Alarm.Enabled = false
	require.NoError(t, h.coord.UpdateConfig(ctx, cfg))
	require.False(t, h.trigger.IsRunning())
	require.False(t, h.coord.Status().Enabled)

	// Firings while disabled are ignored.
	h.trigger.fire("22:15")
	require.Never(t, func() bool { return len(h.events.snapshot()) > 2 }, 30*time.Millisecond, 5*time.Millisecond)

	cfg.Alarm.Enabled = true
	require.NoError(t, h.coord.UpdateConfig(ctx, cfg))
	require.True(t, h.trigger.IsRunning())
	h.events.waitKinds(t, domain.EventScheduled, domain.EventScheduled, domain.EventScheduled)
}

// TestCycleKeepsItsConfig verifies a running cycle is isolated from settings updates.
func TestCycleKeepsItsConfig(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Hour, time.Hour, nil)
	ctx := context.Background()

	_, err := h.coord.BeginCycle(ctx)
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.Alarm.SoundFile = "./sounds/other.mp3"
	require.NoError(t, h.coord.UpdateConfig(ctx, cfg))

	require.Equal(t, config.DefaultSoundFile, h.coord.Status().Cycle.Config.SoundFile)
}

// TestMenuState verifies action availability per state.
func TestMenuState(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Hour, time.Hour, nil)

	require.Equal(t, MenuState{Start: true, Stop: false, Settings: true, Exit: true}, h.coord.MenuState())

	_, err := h.coord.BeginCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, MenuState{Start: false, Stop: true, Settings: true, Exit: true}, h.coord.MenuState())

	h.cancel()
	require.NoError(t, h.coord.Wait(context.Background()))
	require.Equal(t, MenuState{Start: false, Stop: false, Settings: true, Exit: true}, h.coord.MenuState())
}

// TestObserverPanicIsContained verifies one broken observer does not stop delivery.
func TestObserverPanicIsContained(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Hour, time.Hour, nil)
	h.coord.Subscribe(domain.ObserverFunc(func(domain.LifecycleEvent) {
		panic("broken observer")
	}))

	late := &recorder{}
	h.coord.Subscribe(late)

	_, err := h.coord.BeginCycle(context.Background())
	require.NoError(t, err)
	late.waitKinds(t, domain.EventRinging)
}

// TestShutdownDisarms verifies Run cleans up and later calls fail fast.
func TestShutdownDisarms(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Hour, time.Hour, nil)
	ctx := context.Background()

	_, err := h.coord.BeginCycle(ctx)
	require.NoError(t, err)

	h.cancel()
	require.NoError(t, h.coord.Wait(ctx))

	require.False(t, h.sound.IsPlaying())
	require.False(t, h.listener.IsListening())
	require.False(t, h.trigger.IsRunning())
	require.Equal(t, domain.StateIdle, h.coord.Status().State)

	_, err = h.coord.BeginCycle(ctx)
	require.ErrorIs(t, err, domain.ErrCoordinatorStopped)
	require.Error(t, h.coord.Run(ctx))
}

// TestNewValidatesDependencies verifies construction guards.
func TestNewValidatesDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Dependencies{})
	require.ErrorIs(t, err, errConfigRequired)

	_, err = New(config.Defaults(), Dependencies{Sound: &fakeSound{}})
	require.ErrorIs(t, err, errListenerRequired)

	coord, err := New(config.Defaults(), Dependencies{
		Sound:    &fakeSound{},
		Listener: &fakeListener{},
		Sleep:    &fakeSleep{},
		Restart:  restart.New(),
		Trigger:  &fakeTrigger{},
	})
	require.NoError(t, err)

	_, err = coord.BeginCycle(context.Background())
	require.ErrorIs(t, err, domain.ErrCoordinatorStopped)
}
