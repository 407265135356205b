package keyboard

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/oshokin/stop-the-game/internal/domain/alarm"
	"github.com/oshokin/stop-the-game/internal/logger"
)

const (
	// ReasonManual is reported for any key press.
	ReasonManual = "manual"
	// ReasonInterrupt is reported for Ctrl+C.
	ReasonInterrupt = "interrupt"

	// keyInterrupt is the ETX rune produced by Ctrl+C in raw mode.
	keyInterrupt = '\x03'
)

// Terminal delivers key presses while open.
type Terminal interface {
	// Open starts key capture. Keys pressed while closed are dropped.
	Open() (<-chan rune, error)
	// Close stops key capture and restores the terminal.
	Close() error
}

// Listener reports the first key press after Start as a cancellation.
type Listener struct {
	// terminal is the key source.
	terminal Terminal
	// callback receives the cancellation reason.
	callback func(reason string)
	// stop ends the watch goroutine of the current arm.
	stop chan struct{}
	// gen identifies the current arm.
	gen uint64
	// armed is true between Start and Stop.
	armed bool
	// fired is true once the current arm reported a cancellation.
	fired bool
	// mu protects every field above.
	mu sync.Mutex
}

// NewListener creates a disarmed listener.
func NewListener(terminal Terminal) *Listener {
	return &Listener{terminal: terminal}
}

// OnCancellation registers the callback. It survives Stop and replaces any previous one.
func (l *Listener) OnCancellation(callback func(reason string)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.callback = callback
}

// Start arms key capture.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.armed {
		logger.Warn(ctx, "Keyboard listener is already active")
		return domain.ErrAlreadyRunning
	}

	keys, err := l.terminal.Open()
	if err != nil {
		logger.ErrorKV(ctx, "Failed to capture keyboard", "error", err)

		return fmt.Errorf("open terminal: %w", err)
	}

	l.gen++
	l.armed = true
	l.fired = false
	l.stop = make(chan struct{})

	go l.watch(ctx, l.gen, keys, l.stop)

	logger.Info(ctx, "Keyboard listener armed, press any key to cancel the alarm")

	return nil
}

// Stop disarms key capture and restores the terminal.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.armed {
		logger.Warn(ctx, "Keyboard listener is not active")
		return domain.ErrNotRunning
	}

	l.disarmLocked(ctx)

	return nil
}

// IsListening reports whether the listener is armed.
func (l *Listener) IsListening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.armed
}

// watch forwards the first key of an arm.
func (l *Listener) watch(ctx context.Context, gen uint64, keys <-chan rune, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case key, ok := <-keys:
			if !ok {
				return
			}

			if l.handle(ctx, gen, key) {
				return
			}
		}
	}
}

// handle reports the key as a cancellation, then disarms. Returns false for a stale arm.
func (l *Listener) handle(ctx context.Context, gen uint64, key rune) bool {
	l.mu.Lock()

	if !l.armed || l.gen != gen || l.fired {
		l.mu.Unlock()
		return false
	}

	l.fired = true
	callback := l.callback
	l.mu.Unlock()

	reason := ReasonManual
	if key == keyInterrupt {
		reason = ReasonInterrupt
	}

	logger.InfoKV(ctx, "Alarm cancelled from keyboard", "reason", reason)

	if callback != nil {
		callback(reason)
	}

	l.mu.Lock()
	if l.armed && l.gen == gen {
		l.disarmLocked(ctx)
	}
	l.mu.Unlock()

	return true
}

// disarmLocked ends the current arm.
func (l *Listener) disarmLocked(ctx context.Context) {
	l.armed = false
	close(l.stop)

	if err := l.terminal.Close(); err != nil {
		logger.WarnKV(ctx, "Failed to restore terminal", "error", err)
	}

	logger.Debug(ctx, "Keyboard listener disarmed")
}
