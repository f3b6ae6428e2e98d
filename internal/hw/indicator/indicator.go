package indicator

import (
	"sync"
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/gpio"
)

// Buzzer drives a piezo buzzer used as the shutter click.
// A click is a single HIGH pulse on the pin.
type Buzzer struct {
	gpio  gpio.Driver
	pin   int
	pulse time.Duration
	sleep func(time.Duration)
}

// NewBuzzer configures pin as an output held LOW (silent).
// pulse: if 0, defaults to 30ms.
func NewBuzzer(g gpio.Driver, pin int, pulse time.Duration) *Buzzer {
	_ = g.SetupPin(pin, gpio.Output)
	_ = g.WritePin(pin, gpio.Low)

	if pulse <= 0 {
		pulse = 30 * time.Millisecond
	}
	return &Buzzer{
		gpio:  g,
		pin:   pin,
		pulse: pulse,
		sleep: time.Sleep,
	}
}

// Click plays the shutter click. It does not block the caller: the pulse
// is released from its own goroutine.
func (b *Buzzer) Click() {
	go func() {
		if err := b.click(); err != nil {
			debug.Error(err)
		}
	}()
}

func (b *Buzzer) click() error {
	debug.Verbose("Buzzer: click on pin %d (%v)", b.pin, b.pulse)
	if err := b.gpio.WritePin(b.pin, gpio.High); err != nil {
		return err
	}
	b.sleep(b.pulse)
	return b.gpio.WritePin(b.pin, gpio.Low)
}

// FlashLamp is a lamp (LED strip, relay) lit while the flash overlay is up.
type FlashLamp struct {
	gpio gpio.Driver
	pin  int

	mu sync.Mutex
	on bool
}

// NewFlashLamp configures pin as an output, lamp off.
func NewFlashLamp(g gpio.Driver, pin int) *FlashLamp {
	_ = g.SetupPin(pin, gpio.Output)
	_ = g.WritePin(pin, gpio.Low)
	return &FlashLamp{gpio: g, pin: pin}
}

// Set switches the lamp; repeated calls with the same state do nothing.
func (f *FlashLamp) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.on == on {
		return nil
	}
	debug.Verbose("Flash lamp: on=%v (pin %d)", on, f.pin)
	if err := f.gpio.WritePin(f.pin, gpio.Level(on)); err != nil {
		return err
	}
	f.on = on
	return nil
}

// On reports the last state written to the lamp.
func (f *FlashLamp) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}
