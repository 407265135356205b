package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/oshokin/stop-the-game/internal/logger"
)

// Run reads commands until exit, EOF or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	ctx = logger.WithName(ctx, "console")

	rl, err := readline.NewEx(&readline.Config{
		Prompt:              c.prompt,
		HistoryFile:         filepath.Join(os.TempDir(), "stop-the-game-console.history"),
		InterruptPrompt:     "^C",
		EOFPrompt:           ActionExit,
		FuncFilterInputRune: c.filterRune,
	})
	if err != nil {
		return fmt.Errorf("open console: %w", err)
	}

	defer func() {
		_ = rl.Close()
	}()

	c.outMu.Lock()
	c.out = rl.Stdout()
	c.outMu.Unlock()

	go func() {
		<-ctx.Done()
		_ = rl.Close()
	}()

	c.printMenu()

	for {
		line, err := rl.Readline()

		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF), ctx.Err() != nil:
			return nil
		case err != nil:
			return fmt.Errorf("read command: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		done, err := c.Execute(ctx, line)
		if err != nil {
			c.println("Error: " + err.Error())
		}

		if done {
			return nil
		}
	}
}

// Open implements keyboard.Terminal: typed runes go to the returned channel
// instead of the command line until Close.
func (c *Console) Open() (<-chan rune, error) {
	c.keysMu.Lock()
	defer c.keysMu.Unlock()

	if c.keys == nil {
		c.keys = make(chan rune, 1)
	}

	return c.keys, nil
}

// Close implements keyboard.Terminal.
func (c *Console) Close() error {
	c.keysMu.Lock()
	defer c.keysMu.Unlock()

	if c.keys != nil {
		close(c.keys)
		c.keys = nil
	}

	return nil
}

// filterRune swallows runes routed to the cancellation listener.
func (c *Console) filterRune(r rune) (rune, bool) {
	c.keysMu.Lock()
	defer c.keysMu.Unlock()

	if c.keys == nil {
		return r, true
	}

	select {
	case c.keys <- r:
	default:
	}

	return r, false
}
