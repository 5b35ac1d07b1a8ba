//go:build !linux

package main

import "errors"

func openVirtualPad(cfg DeviceConfig, km *Keymap) (*VirtualPad, string, error) {
	return nil, "", errors.New("virtual input devices require Linux uinput")
}
