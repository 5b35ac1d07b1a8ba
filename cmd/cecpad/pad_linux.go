//go:build linux

package main

import (
	"fmt"

	"cecpad/internal/uinput"
)

// openVirtualPad creates the uinput device described by cfg and km.
// It returns the pad and the kernel sysname of the new device ("" if unknown).
func openVirtualPad(cfg DeviceConfig, km *Keymap) (*VirtualPad, string, error) {
	dev, err := uinput.Create(cfg.UinputPath, padDescriptor(cfg, km))
	if err != nil {
		return nil, "", fmt.Errorf("create virtual device: %w", err)
	}
	return NewVirtualPad(dev), dev.Sysname(), nil
}
