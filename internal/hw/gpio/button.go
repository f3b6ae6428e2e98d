package gpio

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// Button is a push button wired between a GPIO pin and GND, read with the
// internal pull-up: LOW means pressed.
type Button struct {
	gpio     Driver
	pin      int
	poll     time.Duration
	debounce time.Duration
}

// NewButton configures pin as a pulled-up input.
// poll is the sampling period, debounce how long a level must stay stable
// before it counts.
func NewButton(g Driver, pin int, poll, debounce time.Duration) (*Button, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("invalid button pin %d", pin)
	}
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	if err := g.SetupPin(pin, InputPullUp); err != nil {
		return nil, err
	}
	return &Button{gpio: g, pin: pin, poll: poll, debounce: debounce}, nil
}

// Watch samples the button until ctx is done and calls onPress once per
// debounced press (release-to-press edge). It returns ctx.Err() on
// cancellation or the first read error.
func (b *Button) Watch(ctx context.Context, onPress func()) error {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	stable := false // pressed
	raw := false
	changedAt := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			level, err := b.gpio.ReadPin(b.pin)
			if err != nil {
				return fmt.Errorf("read button pin %d: %w", b.pin, err)
			}
			pressed := level == Low
			if pressed != raw {
				raw = pressed
				changedAt = now
			}
			if raw == stable || now.Sub(changedAt) < b.debounce {
				continue
			}
			stable = raw
			if stable {
				debug.Live("Button on pin %d pressed", b.pin)
				onPress()
			}
		}
	}
}
