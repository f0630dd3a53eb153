// Package actuator drives the recovery servos (drogue and main bay
// releases). It is grounded on the teacher's internal/actuators/mavlink.go
// Run/processCommands ticker-loop shape, adapted from MAVLink attitude
// commands to direct PWM set-points, and on original_source's
// STM32Servo.h pulse-width clamp.
package actuator

import (
	"context"
	"sync"
	"time"
)

// Pulse-width bounds in microseconds, matching STM32Servo.h's servo range.
const (
	MinPulseUs = 500
	MaxPulseUs = 2450
)

// Channel identifies one servo output.
type Channel int

const (
	ChannelDrogue Channel = iota
	ChannelMain
)

// Driver repeatedly rewrites every channel's set-point onto the
// hardware at a fixed rate — a retain loop, mirroring the physical servo's
// need for a continuously refreshed PWM signal rather than a one-shot write.
type Driver struct {
	mu       sync.Mutex
	setpoint map[Channel]int // microseconds
	locked   map[Channel]bool

	write func(ch Channel, pulseUs int)
}

// New constructs a Driver. write is called on every retain tick for every
// channel, regardless of lock state; a nil write is a no-op sink (used in
// tests and simulation). Both channels start at MaxPulseUs, the locked
// (180°) position, until a deployment drives them to the released one.
func New(write func(ch Channel, pulseUs int)) *Driver {
	if write == nil {
		write = func(Channel, int) {}
	}
	return &Driver{
		setpoint: map[Channel]int{ChannelDrogue: MaxPulseUs, ChannelMain: MaxPulseUs},
		locked:   map[Channel]bool{},
		write:    write,
	}
}

func clamp(pulseUs int) int {
	if pulseUs < MinPulseUs {
		return MinPulseUs
	}
	if pulseUs > MaxPulseUs {
		return MaxPulseUs
	}
	return pulseUs
}

// Set stages a new set-point for ch, clamped to [MinPulseUs, MaxPulseUs].
// It has no effect if the channel is locked.
func (d *Driver) Set(ch Channel, pulseUs int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locked[ch] {
		return
	}
	d.setpoint[ch] = clamp(pulseUs)
}

// Lock freezes ch's current set-point; subsequent Set calls are ignored
// until Release. Used once a deploy command has fired, so a later spurious
// command cannot retract the pyro/servo release.
func (d *Driver) Lock(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locked[ch] = true
}

// Release unfreezes ch.
func (d *Driver) Release(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locked[ch] = false
}

// Locked reports whether ch is currently frozen.
func (d *Driver) Locked(ch Channel) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locked[ch]
}

// Setpoint returns ch's current staged pulse width.
func (d *Driver) Setpoint(ch Channel) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setpoint[ch]
}

// Retain runs the write-refresh loop at the given rate until ctx is
// cancelled. Every tick, every channel's current set-point (locked or not)
// is rewritten via write, resisting glitches on the physical PWM line.
func (d *Driver) Retain(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *Driver) tick() {
	d.mu.Lock()
	snapshot := make(map[Channel]int, len(d.setpoint))
	for ch, pw := range d.setpoint {
		snapshot[ch] = pw
	}
	d.mu.Unlock()

	for ch, pw := range snapshot {
		d.write(ch, pw)
	}
}
