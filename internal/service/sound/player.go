package sound

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/oshokin/stop-the-game/internal/domain/alarm"
	"github.com/oshokin/stop-the-game/internal/logger"
)

// Backend starts audio output for a file.
type Backend interface {
	// Start begins looping playback and returns a handle that stops it.
	Start(ctx context.Context, file string) (Handle, error)
}

// Handle is a running playback.
type Handle interface {
	// Stop ends playback and releases the device.
	Stop() error
}

// session is the active playback with its hard cap.
type session struct {
	// id distinguishes sessions so a stale cap timer never stops a newer one.
	id uint64
	// handle is the backend playback.
	handle Handle
	// timer stops the session after the configured duration.
	timer *time.Timer
	// deadline is when the cap timer fires.
	deadline time.Time
}

// Player plays the alarm for at most duration per Play call.
type Player struct {
	// backend produces the audio.
	backend Backend
	// now is the clock used for remaining time reports.
	now func() time.Time
	// session is the active playback, nil when idle.
	session *session
	// duration is the hard cap for one session.
	duration time.Duration
	// seq is the last issued session id.
	seq uint64
	// mu protects session and seq.
	mu sync.Mutex
}

// Option configures the player.
type Option func(*Player)

// WithClock overrides the clock used by RemainingTime.
func WithClock(now func() time.Time) Option {
	return func(p *Player) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPlayer creates an idle player.
func NewPlayer(backend Backend, duration time.Duration, opts ...Option) *Player {
	p := &Player{
		backend:  backend,
		now:      time.Now,
		duration: duration,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Duration returns the playback cap.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.duration
}

// SetDuration changes the cap for sessions started afterwards.
func (p *Player) SetDuration(duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if duration > 0 {
		p.duration = duration
	}
}

// Play starts the alarm. Playback stops by itself after the configured duration.
func (p *Player) Play(ctx context.Context, file string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil {
		logger.Warn(ctx, "Alarm sound is already playing")
		return domain.ErrAlreadyPlaying
	}

	handle, err := p.backend.Start(ctx, file)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to start alarm sound", "file", file, "error", err)

		return fmt.Errorf("start playback of %s: %w", file, err)
	}

	p.seq++

	s := &session{
		id:       p.seq,
		handle:   handle,
		deadline: p.now().Add(p.duration),
	}

	s.timer = time.AfterFunc(p.duration, func() {
		p.expire(ctx, s.id)
	})

	p.session = s

	logger.InfoKV(ctx, "Alarm sound started", "file", file, "duration", p.duration.String())

	return nil
}

// expire stops the session when its cap elapses.
func (p *Player) expire(ctx context.Context, id uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil || p.session.id != id {
		return
	}

	p.stopLocked(ctx)

	logger.Info(ctx, "Alarm sound stopped after maximum duration")
}

// Stop ends the active playback.
func (p *Player) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		logger.Warn(ctx, "Alarm sound is not playing")
		return domain.ErrNotPlaying
	}

	p.stopLocked(ctx)

	logger.Info(ctx, "Alarm sound stopped")

	return nil
}

// stopLocked tears down the session. Backend errors are logged, never returned.
func (p *Player) stopLocked(ctx context.Context) {
	s := p.session
	p.session = nil

	s.timer.Stop()

	if err := s.handle.Stop(); err != nil {
		logger.WarnKV(ctx, "Failed to stop alarm sound backend", "error", err)
	}
}

// IsPlaying reports whether a session is active.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.session != nil
}

// RemainingTime returns the time left in the session, rounded up to whole seconds.
func (p *Player) RemainingTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return 0
	}

	return domain.CeilSeconds(p.session.deadline.Sub(p.now()))
}
