//go:build linux

// Package uinput creates synthetic input devices through /dev/uinput.
package uinput

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("uinput: device closed")

// Device is a created uinput device. Emit is not synchronized; callers own serialization.
type Device struct {
	f       *os.File
	sysname string

	closeOnce sync.Once
	closed    bool
}

// Create opens path, registers the capabilities from desc and creates the device.
func Create(path string, desc Descriptor) (*Device, error) {
	if path == "" {
		path = DefaultPath
	}
	if len(desc.Name) == 0 || len(desc.Name) >= maxNameSize {
		return nil, fmt.Errorf("uinput: device name must be 1..%d bytes", maxNameSize-1)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	fd := int(f.Fd())

	fail := func(err error) (*Device, error) {
		_ = f.Close()
		return nil, err
	}

	if len(desc.Keys) > 0 {
		if err := unix.IoctlSetInt(fd, uiSetEvBit, EvKey); err != nil {
			return fail(fmt.Errorf("UI_SET_EVBIT EV_KEY: %w", err))
		}
		for _, k := range desc.Keys {
			if err := unix.IoctlSetInt(fd, uiSetKeyBit, int(k)); err != nil {
				return fail(fmt.Errorf("UI_SET_KEYBIT %#x: %w", k, err))
			}
		}
	}

	if len(desc.Abs) > 0 {
		if err := unix.IoctlSetInt(fd, uiSetEvBit, EvAbs); err != nil {
			return fail(fmt.Errorf("UI_SET_EVBIT EV_ABS: %w", err))
		}
		for _, a := range desc.Abs {
			if int(a.Code) >= absSize {
				return fail(fmt.Errorf("abs code %#x out of range", a.Code))
			}
			if err := unix.IoctlSetInt(fd, uiSetAbsBit, int(a.Code)); err != nil {
				return fail(fmt.Errorf("UI_SET_ABSBIT %#x: %w", a.Code, err))
			}
		}
	}

	if len(desc.Misc) > 0 {
		if err := unix.IoctlSetInt(fd, uiSetEvBit, EvMsc); err != nil {
			return fail(fmt.Errorf("UI_SET_EVBIT EV_MSC: %w", err))
		}
		for _, m := range desc.Misc {
			if err := unix.IoctlSetInt(fd, uiSetMscBit, int(m)); err != nil {
				return fail(fmt.Errorf("UI_SET_MSCBIT %#x: %w", m, err))
			}
		}
	}

	if err := binary.Write(f, binary.NativeEndian, newUserDev(desc)); err != nil {
		return fail(fmt.Errorf("write uinput_user_dev: %w", err))
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uiDevCreate, 0); errno != 0 {
		return fail(fmt.Errorf("UI_DEV_CREATE: %w", errno))
	}

	d := &Device{f: f}

	// Best effort: older kernels lack UI_GET_SYSNAME.
	buf := make([]byte, sysnameLen)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uiGetSysname, uintptr(unsafe.Pointer(&buf[0]))); errno == 0 {
		d.sysname = strings.TrimRight(string(buf), "\x00")
	}

	return d, nil
}

// Sysname returns the kernel name of the device (e.g. "input17"), or "" if unknown.
func (d *Device) Sysname() string { return d.sysname }

// Emit writes events followed by a SYN_REPORT in a single write.
func (d *Device) Emit(events ...Event) error {
	if d.closed {
		return ErrClosed
	}
	if _, err := d.f.Write(EncodeEvents(events)); err != nil {
		return fmt.Errorf("uinput write: %w", err)
	}
	return nil
}

// Close destroys the device and closes the file. Safe to call more than once.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.closed = true
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), uiDevDestroy, 0); errno != 0 {
			err = fmt.Errorf("UI_DEV_DESTROY: %w", errno)
		}
		if cerr := d.f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
