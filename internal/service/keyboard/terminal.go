package keyboard

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/chzyer/readline"
)

// StdinTerminal captures single key presses from standard input.
// When stdin is a TTY it is switched to raw mode while open.
type StdinTerminal struct {
	in    *os.File
	keys  chan rune
	state *readline.State
	// pumping is true while the reader goroutine is alive. It outlives Close,
	// since a blocked read on stdin cannot be interrupted.
	pumping bool
	mu      sync.Mutex
}

// NewStdinTerminal creates a closed terminal on os.Stdin.
func NewStdinTerminal() *StdinTerminal {
	return &StdinTerminal{in: os.Stdin}
}

// Open switches stdin to raw mode and starts delivering keys.
func (t *StdinTerminal) Open() (<-chan rune, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.keys != nil {
		return t.keys, nil
	}

	fd := int(t.in.Fd()) //nolint:gosec // File descriptors fit in int.
	if readline.IsTerminal(fd) {
		state, err := readline.MakeRaw(fd)
		if err != nil {
			return nil, fmt.Errorf("enable raw mode: %w", err)
		}

		t.state = state
	}

	t.keys = make(chan rune, 1)

	if !t.pumping {
		t.pumping = true

		go t.pump()
	}

	return t.keys, nil
}

// Close restores the terminal mode and stops delivering keys.
func (t *StdinTerminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.keys == nil {
		return nil
	}

	close(t.keys)
	t.keys = nil

	if t.state == nil {
		return nil
	}

	fd := int(t.in.Fd()) //nolint:gosec // File descriptors fit in int.
	state := t.state
	t.state = nil

	if err := readline.Restore(fd, state); err != nil {
		return fmt.Errorf("restore terminal: %w", err)
	}

	return nil
}

// pump reads runes for the process lifetime and drops those typed while closed.
func (t *StdinTerminal) pump() {
	reader := bufio.NewReader(t.in)

	for {
		key, _, err := reader.ReadRune()
		if err != nil {
			t.mu.Lock()
			t.pumping = false
			t.mu.Unlock()

			return
		}

		t.mu.Lock()
		if t.keys != nil {
			select {
			case t.keys <- key:
			default:
			}
		}
		t.mu.Unlock()
	}
}
