// Package countdown implements the visual capture countdown: ticks from N
// down to 0, one per interval, then a single completion signal.
package countdown

import (
	"errors"
	"sync"
	"time"

	"github.com/cjeanneret/SnapGo/internal/clock"
)

// Interval is the time between two ticks.
const Interval = 600 * time.Millisecond

var (
	// ErrNegativeStart is returned by Start for a starting value below 0.
	ErrNegativeStart = errors.New("countdown start must be >= 0")

	// ErrAlreadyStarted is returned by Start on a countdown that already ran.
	ErrAlreadyStarted = errors.New("countdown already started")
)

// Countdown is a one-shot timed counter. The zero value is not usable; use New.
type Countdown struct {
	clock    clock.Clock
	interval time.Duration

	mu      sync.Mutex
	step    int
	started bool
	done    bool
	timer   clock.Timer
	onTick  func(int)
	onEnd   func()
}

// New returns a countdown ticking every Interval on c.
func New(c clock.Clock) *Countdown {
	return NewWithInterval(c, Interval)
}

// NewWithInterval returns a countdown with a custom tick interval.
func NewWithInterval(c clock.Clock, interval time.Duration) *Countdown {
	return &Countdown{clock: c, interval: interval}
}

// Start emits tick n synchronously, then n-1 ... 0 one interval apart.
// One interval after tick 0, onEnd is called exactly once.
// onTick and onEnd may be nil.
func (c *Countdown) Start(n int, onTick func(int), onEnd func()) error {
	if n < 0 {
		return ErrNegativeStart
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.step = n
	c.onTick = onTick
	c.onEnd = onEnd
	c.timer = c.clock.AfterFunc(c.interval, c.fire)
	c.mu.Unlock()

	if onTick != nil {
		onTick(n)
	}
	return nil
}

func (c *Countdown) fire() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.step--
	if c.step < 0 {
		// terminal: no further timer, completion exactly once
		c.done = true
		c.timer = nil
		onEnd := c.onEnd
		c.mu.Unlock()
		if onEnd != nil {
			onEnd()
		}
		return
	}
	step := c.step
	c.timer = c.clock.AfterFunc(c.interval, c.fire)
	onTick := c.onTick
	c.mu.Unlock()

	if onTick != nil {
		onTick(step)
	}
}

// Stop cancels the countdown. onEnd will not be called afterwards.
// It reports whether the countdown was still running.
func (c *Countdown) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started || c.done {
		return false
	}
	c.done = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	return true
}

// Value returns the last emitted tick.
func (c *Countdown) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return max(c.step, 0)
}

// Running reports whether ticks or the completion are still pending.
func (c *Countdown) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.done
}
