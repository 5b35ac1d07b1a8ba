package main

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"cecpad/internal/uinput"
)

// ============================================================================
// Virtual Input Device
// ============================================================================
// VirtualPad serializes all writes to the uinput handle. Each operation holds
// the mutex for its whole duration, including the hold of PressAndRelease, so
// two operations never interleave on the device.
// ============================================================================

// ErrDeviceEmit marks a failed write to the virtual device.
var ErrDeviceEmit = errors.New("device emit failed")

// eventEmitter is the subset of *uinput.Device the pad needs.
type eventEmitter interface {
	Emit(events ...uinput.Event) error
}

// VirtualPad is the synthetic gamepad.
type VirtualPad struct {
	mu  sync.Mutex
	dev eventEmitter

	// sleep is time.Sleep outside of tests.
	sleep func(time.Duration)
}

// NewVirtualPad wraps an already-created device.
func NewVirtualPad(dev eventEmitter) *VirtualPad {
	return &VirtualPad{dev: dev, sleep: time.Sleep}
}

// Press sets button b down.
func (p *VirtualPad) Press(b Button) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.key(b, 1, "press")
}

// Release sets button b up.
func (p *VirtualPad) Release(b Button) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.key(b, 0, "release")
}

// Axis sets absolute axis a to pos.
func (p *VirtualPad) Axis(a Axis, pos int32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.dev.Emit(uinput.Event{Type: uinput.EvAbs, Code: uint16(a), Value: pos}); err != nil {
		return fmt.Errorf("%w: axis %s=%d: %w", ErrDeviceEmit, a, pos, err)
	}
	return nil
}

// PressAndRelease presses b, waits hold, then releases it without giving up
// the device in between. If the press fails the release is not attempted.
func (p *VirtualPad) PressAndRelease(b Button, hold time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.key(b, 1, "press"); err != nil {
		return err
	}
	p.sleep(hold)
	return p.key(b, 0, "release")
}

// Close releases the underlying device if it supports closing.
func (p *VirtualPad) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.dev.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// key writes one EV_KEY event. Caller holds p.mu.
func (p *VirtualPad) key(b Button, value int32, op string) error {
	if err := p.dev.Emit(uinput.Event{Type: uinput.EvKey, Code: uint16(b), Value: value}); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrDeviceEmit, op, b, err)
	}
	return nil
}

// padDescriptor is the uinput capability set for the pad: every button the
// keymap can produce, both hat axes in -1..1, and MSC_SCAN.
func padDescriptor(cfg DeviceConfig, km *Keymap) uinput.Descriptor {
	buttons := km.Buttons()
	keys := make([]uint16, len(buttons))
	for i, b := range buttons {
		keys[i] = uint16(b)
	}
	return uinput.Descriptor{
		Name:    cfg.Name,
		BusType: cfg.BusType,
		Vendor:  cfg.Vendor,
		Product: cfg.Product,
		Version: cfg.Version,
		Keys:    keys,
		Abs: []uinput.AbsAxis{
			{Code: uint16(AxisHat0X), Min: hatMin, Max: hatMax},
			{Code: uint16(AxisHat0Y), Min: hatMin, Max: hatMax},
		},
		Misc: []uint16{uinput.MscScan},
	}
}
