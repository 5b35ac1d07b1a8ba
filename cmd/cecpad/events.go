package main

import (
	"fmt"
	"time"
)

// This file holds the reducer vocabulary:
//
//   - Events: inputs to the reducer (remote keys, bus commands, control requests,
//     observations reported back by effects)
//   - Commands: side effects requested by the reducer (device writes, CPU quota)
//   - Broadcasts: state changes published to websocket clients
//
// The daemon loop executes Commands and feeds observations back as Events.

// ==============================
// Session-facing types
// ==============================

// KeyPress is one remote key notification from the CEC session.
// Duration 0 is a press; a positive Duration is the release of a held key.
type KeyPress struct {
	Code     RemoteCode
	Duration time.Duration
}

// IsRelease reports whether kp ends a press.
func (kp KeyPress) IsRelease() bool { return kp.Duration > 0 }

// BusCommand is a decoded CEC message seen on the bus.
type BusCommand struct {
	Opcode      Opcode
	Initiator   LogicalAddress
	Destination LogicalAddress
	Parameters  []byte
}

func (c BusCommand) String() string {
	return fmt.Sprintf("%s %s->%s %x", c.Opcode, c.Initiator, c.Destination, c.Parameters)
}

// ==============================
// Events
// ==============================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// KeyPressed is emitted by the CEC session for every remote key press or release.
type KeyPressed struct {
	Press KeyPress
	At    time.Time
}

func (KeyPressed) eventMarker() {}

// BusCommandReceived is emitted by the CEC session for every bus command addressed
// to us or broadcast.
type BusCommandReceived struct {
	Command BusCommand
	At      time.Time
}

func (BusCommandReceived) eventMarker() {}

// QuotaRequested is a manual CPU quota change from the control plane.
type QuotaRequested struct {
	Limit   bool
	Percent int // only meaningful when Limit; 0 means the configured default
	Origin  string
	At      time.Time
}

func (QuotaRequested) eventMarker() {}

// TapRequested is a manual button tap from the control plane.
type TapRequested struct {
	Button Button
	Hold   time.Duration // 0 means the configured default
	Origin string
	At     time.Time
}

func (TapRequested) eventMarker() {}

// ControlExecuted reports a synchronous control-plane action (TV power, host
// power) so it can be published to state stream clients.
type ControlExecuted struct {
	Action ControlAction
	Origin string
	Err    error
	At     time.Time
}

func (ControlExecuted) eventMarker() {}

// RequestStateSnapshot asks the daemon loop for a coherent status snapshot.
// Reply should be buffered (cap 1); the loop never blocks on it.
type RequestStateSnapshot struct {
	Reply chan StatusSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// DeviceEmitFailed is emitted when a device command fails.
type DeviceEmitFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (DeviceEmitFailed) eventMarker() {}

// QuotaApplied is emitted after a quota command exits successfully.
type QuotaApplied struct {
	State   QuotaState
	Percent int
	At      time.Time
}

func (QuotaApplied) eventMarker() {}

// QuotaFailed is emitted when a quota command cannot be run or exits non-zero.
type QuotaFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (QuotaFailed) eventMarker() {}

// ==============================
// Commands (side effects)
// ==============================

// Command represents a side effect to be executed by the daemon loop.
type Command interface {
	commandMarker()
	String() string
}

// CmdButton sets a button down or up.
type CmdButton struct {
	Button Button
	Down   bool
}

func (CmdButton) commandMarker() {}
func (c CmdButton) String() string {
	return fmt.Sprintf("CmdButton(%s, down=%v)", c.Button, c.Down)
}

// CmdAxis moves an absolute axis.
type CmdAxis struct {
	Axis     Axis
	Position int32
}

func (CmdAxis) commandMarker() {}
func (c CmdAxis) String() string {
	return fmt.Sprintf("CmdAxis(%s=%d)", c.Axis, c.Position)
}

// CmdTap presses and releases a button with a hold in between.
type CmdTap struct {
	Button Button
	Hold   time.Duration
}

func (CmdTap) commandMarker() {}
func (c CmdTap) String() string {
	return fmt.Sprintf("CmdTap(%s, hold=%s)", c.Button, c.Hold)
}

// CmdLimitCPU restricts the user slice to Percent of one CPU.
type CmdLimitCPU struct {
	Percent int
}

func (CmdLimitCPU) commandMarker()   {}
func (c CmdLimitCPU) String() string { return fmt.Sprintf("CmdLimitCPU(%d%%)", c.Percent) }

// CmdUnlimitCPU lifts the user slice restriction.
type CmdUnlimitCPU struct{}

func (CmdUnlimitCPU) commandMarker() {}
func (CmdUnlimitCPU) String() string { return "CmdUnlimitCPU()" }

// CmdPublishStateSnapshot delivers a reducer-built snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan StatusSnapshot
	Snapshot StatusSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }

// isDeviceCommand reports whether cmd writes to the virtual pad and must run on
// the daemon goroutine.
func isDeviceCommand(cmd Command) bool {
	switch cmd.(type) {
	case CmdButton, CmdAxis, CmdTap:
		return true
	default:
		return false
	}
}

// ==============================
// Broadcasts
// ==============================

// StateBroadcast is a reducer-emitted state change for websocket clients.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastKey reports a translated remote key.
type BroadcastKey struct {
	Code    RemoteCode
	Target  string
	Release bool
	At      time.Time
}

func (BroadcastKey) broadcastMarker() {}

// BroadcastQuotaChanged reports a confirmed quota transition.
type BroadcastQuotaChanged struct {
	State   QuotaState
	Percent int
	At      time.Time
}

func (BroadcastQuotaChanged) broadcastMarker() {}

// BroadcastTVPowerChanged reports an inferred TV power transition.
type BroadcastTVPowerChanged struct {
	Power TVPower
	At    time.Time
}

func (BroadcastTVPowerChanged) broadcastMarker() {}

// BroadcastControl reports a control-plane action and its outcome.
type BroadcastControl struct {
	Action ControlAction
	Origin string
	Error  string
	At     time.Time
}

func (BroadcastControl) broadcastMarker() {}
