// Package trigger fires a callback once per calendar day at a local wall-clock time.
//
// The wall clock is re-read at a bounded interval and the last fired date is
// remembered, so clock adjustments and DST transitions neither skip a day nor
// fire it twice.
package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oshokin/stop-the-game/internal/config"
	domain "github.com/oshokin/stop-the-game/internal/domain/alarm"
	"github.com/oshokin/stop-the-game/internal/logger"
)

// DefaultCheckInterval bounds how long the trigger sleeps before re-reading the clock.
const DefaultCheckInterval = 30 * time.Second

// dateLayout identifies a calendar day.
const dateLayout = "2006-01-02"

// Callback receives the configured alarm time when the trigger fires.
type Callback = func(alarmTime string)

// Daily is a once-per-day trigger.
type Daily struct {
	// callback runs on the trigger goroutine when the time is reached.
	callback Callback
	// now is the wall clock.
	now func() time.Time
	// wake interrupts the wait after a reschedule.
	wake chan struct{}
	// cancel stops the running loop, nil when disarmed.
	cancel context.CancelFunc
	// alarmTime is the configured HH:MM value.
	alarmTime string
	// lastFired is the date of the last firing or skipped day.
	lastFired string
	// checkInterval is the upper bound for a single wait.
	checkInterval time.Duration
	// hour and minute are the parsed alarm time.
	hour, minute int
	// mu protects every field above.
	mu sync.Mutex
}

// Option configures the trigger.
type Option func(*Daily)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(d *Daily) {
		if now != nil {
			d.now = now
		}
	}
}

// WithCheckInterval overrides the maximum wait between clock checks.
func WithCheckInterval(interval time.Duration) Option {
	return func(d *Daily) {
		if interval > 0 {
			d.checkInterval = interval
		}
	}
}

// New creates a disarmed trigger for the HH:MM alarm time.
func New(alarmTime string, callback Callback, opts ...Option) (*Daily, error) {
	hour, minute, err := config.ParseAlarmTime(alarmTime)
	if err != nil {
		return nil, err
	}

	d := &Daily{
		callback:      callback,
		now:           time.Now,
		wake:          make(chan struct{}, 1),
		alarmTime:     alarmTime,
		checkInterval: DefaultCheckInterval,
		hour:          hour,
		minute:        minute,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// OnFire replaces the callback.
func (d *Daily) OnFire(callback Callback) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback
}

// Start arms the trigger. If today's time has already passed, the first firing is tomorrow.
func (d *Daily) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		logger.Warn(ctx, "Daily trigger is already running")
		return domain.ErrAlreadyRunning
	}

	now := d.now()
	d.lastFired = ""

	if !now.Before(d.targetOn(now)) {
		d.lastFired = now.Format(dateLayout)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.loop(runCtx)

	logger.InfoKV(ctx, "Daily trigger armed",
		"alarm_time", d.alarmTime,
		"next_fire", d.nextFireLocked(now).Format(time.RFC3339))

	return nil
}

// Stop disarms the trigger.
func (d *Daily) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel == nil {
		logger.Warn(ctx, "Daily trigger is not running")
		return domain.ErrNotRunning
	}

	d.cancel()
	d.cancel = nil

	logger.Info(ctx, "Daily trigger stopped")

	return nil
}

// IsRunning reports whether the trigger is armed.
func (d *Daily) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.cancel != nil
}

// AlarmTime returns the configured HH:MM value.
func (d *Daily) AlarmTime() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.alarmTime
}

// Reschedule changes the alarm time. A time that already passed today fires tomorrow.
func (d *Daily) Reschedule(ctx context.Context, alarmTime string) error {
	hour, minute, err := config.ParseAlarmTime(alarmTime)
	if err != nil {
		return fmt.Errorf("reschedule: %w", err)
	}

	d.mu.Lock()

	d.alarmTime = alarmTime
	d.hour = hour
	d.minute = minute

	now := d.now()
	if now.Before(d.targetOn(now)) {
		d.lastFired = ""
	} else {
		d.lastFired = now.Format(dateLayout)
	}

	next := d.nextFireLocked(now)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}

	logger.InfoKV(ctx, "Daily trigger rescheduled", "alarm_time", alarmTime, "next_fire", next.Format(time.RFC3339))

	return nil
}

// NextFire returns the next time the callback will run.
func (d *Daily) NextFire() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.nextFireLocked(d.now())
}

// loop waits for the alarm time, re-reading the clock at least every check interval.
func (d *Daily) loop(ctx context.Context) {
	for {
		timer := time.NewTimer(d.wait())

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-d.wake:
			timer.Stop()
		case <-timer.C:
			d.check(ctx)
		}
	}
}

// wait returns how long to sleep before the next clock check.
func (d *Daily) wait() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	until := d.nextFireLocked(now).Sub(now)

	switch {
	case until <= 0:
		return 0
	case until > d.checkInterval:
		return d.checkInterval
	default:
		return until
	}
}

// check fires the callback when today's time is reached and today has not fired yet.
func (d *Daily) check(ctx context.Context) {
	d.mu.Lock()

	now := d.now()
	today := now.Format(dateLayout)

	if d.firedOn(today) || now.Before(d.targetOn(now)) {
		d.mu.Unlock()
		return
	}

	d.lastFired = today
	alarmTime := d.alarmTime
	callback := d.callback
	d.mu.Unlock()

	// The loop may have been stopped while the timer was pending.
	if ctx.Err() != nil {
		return
	}

	logger.InfoKV(ctx, "Daily trigger fired", "alarm_time", alarmTime)

	if callback != nil {
		callback(alarmTime)
	}
}

// firedOn reports whether the day already fired. A clock moved back keeps counting as fired.
func (d *Daily) firedOn(day string) bool {
	return d.lastFired != "" && d.lastFired >= day
}

// targetOn returns the alarm time on the calendar day of t.
func (d *Daily) targetOn(t time.Time) time.Time {
	year, month, day := t.Date()

	return time.Date(year, month, day, d.hour, d.minute, 0, 0, t.Location())
}

// nextFireLocked returns the next firing time relative to now.
func (d *Daily) nextFireLocked(now time.Time) time.Time {
	if !d.firedOn(now.Format(dateLayout)) {
		return d.targetOn(now)
	}

	last, err := time.ParseInLocation(dateLayout, d.lastFired, now.Location())
	if err != nil {
		last = now
	}

	year, month, day := last.Date()

	return d.targetOn(time.Date(year, month, day+1, 0, 0, 0, 0, now.Location()))
}
