// Package restart keeps the single delayed re-arm that follows a cancelled alarm.
package restart

import (
	"context"
	"sync"
	"time"

	domain "github.com/oshokin/stop-the-game/internal/domain/alarm"
	"github.com/oshokin/stop-the-game/internal/logger"
)

// ticket is a live restart request.
type ticket struct {
	// id distinguishes tickets so a stale timer never fires a newer one.
	id uint64
	// startedAt is when Schedule was called.
	startedAt time.Time
	// deadline is when the callback runs.
	deadline time.Time
	// timer is the one-shot timer driving the callback.
	timer *time.Timer
}

// Scheduler holds at most one live restart ticket.
type Scheduler struct {
	// now is the clock used for remaining time reports.
	now func() time.Time
	// ticket is the live ticket, nil when nothing is scheduled.
	ticket *ticket
	// seq is the last issued ticket id.
	seq uint64
	// mu protects ticket and seq.
	mu sync.Mutex
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithClock overrides the clock used by RemainingTime.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{now: time.Now}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Schedule runs callback once after delay.
// The ticket is cleared before callback runs, so callback may schedule again.
func (s *Scheduler) Schedule(ctx context.Context, delay time.Duration, callback func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticket != nil {
		logger.Warn(ctx, "Restart is already scheduled")
		return domain.ErrAlreadyScheduled
	}

	if delay < 0 {
		delay = 0
	}

	s.seq++

	now := s.now()
	t := &ticket{
		id:        s.seq,
		startedAt: now,
		deadline:  now.Add(delay),
	}

	t.timer = time.AfterFunc(delay, func() {
		s.fire(ctx, t.id, callback)
	})

	s.ticket = t

	logger.InfoKV(ctx, "Restart scheduled", "delay", delay.String())

	return nil
}

// fire clears the ticket and runs callback unless the ticket was cancelled or replaced.
func (s *Scheduler) fire(ctx context.Context, id uint64, callback func()) {
	s.mu.Lock()

	if s.ticket == nil || s.ticket.id != id {
		s.mu.Unlock()
		return
	}

	s.ticket = nil
	s.mu.Unlock()

	logger.Info(ctx, "Restart delay elapsed")

	if callback != nil {
		callback()
	}
}

// Cancel drops the live ticket.
func (s *Scheduler) Cancel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticket == nil {
		logger.Warn(ctx, "No restart scheduled to cancel")
		return domain.ErrNotScheduled
	}

	s.ticket.timer.Stop()
	s.ticket = nil

	logger.Info(ctx, "Restart cancelled")

	return nil
}

// IsScheduled reports whether a ticket is live.
func (s *Scheduler) IsScheduled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ticket != nil
}

// RemainingTime returns the time left until the callback, rounded up to whole seconds.
func (s *Scheduler) RemainingTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticket == nil {
		return 0
	}

	return domain.CeilSeconds(s.ticket.deadline.Sub(s.now()))
}
