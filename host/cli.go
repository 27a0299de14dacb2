package host

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/janelia-flyem/acseg/acseg"
)

// CLI is a Host for a command-line process.  Work items come from a fixed list
// or, when the list is empty, from lines of a reader.  Blank lines and lines
// starting with '#' are skipped.
type CLI struct {
	items   []string
	scanner *bufio.Scanner
	out     io.Writer

	interrupted atomic.Bool

	mu          sync.Mutex
	lastPercent int
}

// NewCLI returns a host that hands out items, then lines of r if items is
// empty.  Progress is printed to out if non-nil.
func NewCLI(items []string, r io.Reader, out io.Writer) *CLI {
	c := &CLI{items: items, out: out, lastPercent: -1}
	if len(items) == 0 && r != nil {
		c.scanner = bufio.NewScanner(r)
	}
	return c
}

// GetMoreWork returns the next work item or io.EOF.
func (c *CLI) GetMoreWork() (string, error) {
	if len(c.items) != 0 {
		item := c.items[0]
		c.items = c.items[1:]
		return item, nil
	}
	if c.scanner == nil {
		return "", io.EOF
	}
	for c.scanner.Scan() {
		line := strings.TrimSpace(c.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, nil
	}
	if err := c.scanner.Err(); err != nil {
		return "", fmt.Errorf("reading work items: %w", err)
	}
	return "", io.EOF
}

// Progress prints the percentage when it changes.
func (c *CLI) Progress(percent int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if percent == c.lastPercent {
		return
	}
	c.lastPercent = percent
	if c.out != nil {
		fmt.Fprintf(c.out, "progress: %d%%\n", percent)
	}
}

// ShouldInterrupt returns true once Interrupt has been called or a stop
// signal was captured.
func (c *CLI) ShouldInterrupt() bool {
	return c.interrupted.Load()
}

// Interrupt requests that the current run stop at its next checkpoint.
func (c *CLI) Interrupt() {
	c.interrupted.Store(true)
}

// Logger keeps the process logger.
func (c *CLI) Logger() acseg.Logger {
	return nil
}

// HandleSignals captures ctrl+c and SIGTERM as an interrupt so that a run can
// write its partial output.  A second signal exits immediately.  The returned
// function stops signal capture.
func (c *CLI) HandleSignals() (stop func()) {
	stopSig := make(chan os.Signal, 2)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-stopSig:
				if c.interrupted.Load() {
					acseg.Criticalf("Second stop signal captured: %q.  Exiting without output.\n", sig)
					acseg.Shutdown()
					os.Exit(1)
				}
				acseg.Warningf("Stop signal captured: %q.  Stopping after the current round...\n", sig)
				c.Interrupt()
			case <-done:
				return
			}
		}
	}()
	signal.Notify(stopSig, os.Interrupt, syscall.SIGTERM)
	return func() {
		signal.Stop(stopSig)
		close(done)
	}
}
