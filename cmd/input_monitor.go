package cmd

import (
	"context"
	"os"
	"sync"
	"time"

	"AgentConsole/cmd/ui"
	"AgentConsole/pkg/logger"

	"github.com/muesli/cancelreader"
	"golang.org/x/term"
)

const (
	keyEsc         = 27
	escPressWindow = 3 * time.Second
)

// escCounter fires after two ESC presses within escPressWindow. Any other key
// resets it.
type escCounter struct {
	count int
	last  time.Time
}

func (c *escCounter) press(key byte, now time.Time) (first, fire bool) {
	if key != keyEsc {
		c.count = 0
		return false, false
	}
	if now.Sub(c.last) > escPressWindow {
		c.count = 0
	}
	c.count++
	c.last = now
	return c.count == 1, c.count >= 2
}

// monitorAbort holds the terminal in raw mode and calls onAbort after a
// double ESC. The returned cleanup restores the terminal and must be called
// before anything else reads stdin.
func monitorAbort(ctx context.Context, onAbort func()) func() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		logger.Warn("cli", "raw mode unavailable, abort disabled", map[string]interface{}{"err": err.Error()})
		return func() {}
	}
	ui.IsRawMode = true

	cr, err := cancelreader.NewReader(os.Stdin)
	if err != nil {
		_ = term.Restore(fd, oldState)
		ui.IsRawMode = false
		logger.Warn("cli", "cancelreader unavailable, abort disabled", map[string]interface{}{"err": err.Error()})
		return func() {}
	}

	stopCh := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		buf := make([]byte, 1)
		var esc escCounter
		for {
			n, err := cr.Read(buf)
			if err != nil || n == 0 {
				return
			}
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			default:
			}

			first, fire := esc.press(buf[0], time.Now())
			switch {
			case first:
				ui.Print("\n⚠️  Press ESC again to stop...\n")
			case fire:
				ui.Print("\n🛑 Stopping...\n")
				logger.Info("cli", "abort requested from keyboard")
				onAbort()
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopCh)
			if cr.Cancel() {
				<-done
			}
			cr.Close()
			_ = term.Restore(fd, oldState)
			ui.IsRawMode = false
		})
	}
}
