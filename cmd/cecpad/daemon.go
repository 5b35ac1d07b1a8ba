package main

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop
// ============================================================================
//
// Design rules enforced here:
//   - The reducer performs no I/O and computes: next state + commands + broadcasts.
//   - The daemon goroutine is the only caller of the virtual pad. Device commands
//     run inline, in reducer order.
//   - Quota commands are handed to the effects worker so a slow systemctl never
//     delays key handling. The worker reports back with QuotaApplied/QuotaFailed.
//   - Session callbacks never touch the pad; they only enqueue Events.
//
// ============================================================================

// errEffectsQueueFull is reported when the effects worker is saturated.
var errEffectsQueueFull = errors.New("effects queue full")

// inputPad is what the daemon loop needs from the virtual pad.
type inputPad interface {
	Press(b Button) error
	Release(b Button) error
	Axis(a Axis, pos int32) error
	PressAndRelease(b Button, hold time.Duration) error
}

// daemonLoop bundles the loop collaborators.
type daemonLoop struct {
	pad    inputPad
	keymap *Keymap
	cfg    CoordinatorConfig

	// effects receives non-device commands. Sends never block.
	effects chan<- Command
	// broadcasts receives reducer broadcasts for the websocket hub. May be nil.
	broadcasts chan<- StateBroadcast

	stats  *Stats
	logger *slog.Logger
}

// run is the main daemon loop. It exits when ctx is canceled or events is closed.
func (d *daemonLoop) run(ctx context.Context, events <-chan Event, state *DaemonState) {
	if state == nil {
		d.logger.Error("daemon state is nil")
		return
	}

	// Explicit queues:
	// - eventQueue holds events awaiting reduction
	// - cmdQueue holds commands awaiting execution
	var eventQueue []Event
	var cmdQueue []Command

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}

	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := Reduce(state, ev, d.keymap, d.cfg)
			if rr.State != nil {
				state = rr.State
			}
			d.observe(ev, rr)
			cmdQueue = append(cmdQueue, rr.Commands...)
			d.publish(rr.Broadcasts)
		}
	}

	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			d.dispatch(cmd, enqueueEvent)

			// Reduce observations promptly so state stays coherent.
			flushEvents()
		}
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				d.logger.Info("daemon stopping (events channel closed)")
				return
			}
			enqueueEvent(ev)
			flushEvents()
			flushCommands()
		}
	}
}

// dispatch executes device commands inline and forwards the rest to the
// effects worker without blocking.
func (d *daemonLoop) dispatch(cmd Command, onEvent func(Event)) {
	if _, snap := cmd.(CmdPublishStateSnapshot); snap || isDeviceCommand(cmd) {
		runDeviceEffect(d.pad, cmd, d.logger, onEvent)
		return
	}

	if d.effects == nil {
		onEvent(QuotaFailed{Command: cmd, Err: errNoEffectsWorker, At: time.Now()})
		return
	}
	select {
	case d.effects <- cmd:
	default:
		d.logger.Warn("effects queue full, dropping command", "command", cmd.String())
		onEvent(QuotaFailed{Command: cmd, Err: errEffectsQueueFull, At: time.Now()})
	}
}

// observe does the logging and counting for one reduced event.
func (d *daemonLoop) observe(ev Event, rr ReduceResult) {
	switch e := ev.(type) {
	case KeyPressed:
		d.stats.KeyPresses.Inc()
		if len(rr.Commands) == 0 {
			d.stats.UnmappedKeys.Inc()
			d.logger.Debug("unmapped remote key", "code", e.Press.Code.String(), "release", e.Press.IsRelease())
		}

	case BusCommandReceived:
		d.stats.BusCommands.Inc()
		if len(rr.Commands) == 0 {
			d.logger.Debug("bus command ignored", "command", e.Command.String())
			return
		}
		switch rr.Commands[0].(type) {
		case CmdUnlimitCPU:
			d.logger.Info("TV came online, unrestricting CPU")
		case CmdLimitCPU:
			d.logger.Info("TV came offline, restricting CPU", "percent", d.cfg.LimitPercent)
		case CmdTap:
			d.logger.Debug("bus play command", "initiator", e.Command.Initiator.String())
		}

	case DeviceEmitFailed:
		d.stats.DeviceErrors.Inc()

	case QuotaFailed:
		d.stats.QuotaErrors.Inc()

	case QuotaApplied:
		d.logger.Debug("quota applied", "state", e.State.String(), "percent", e.Percent)
	}
}

// publish forwards broadcasts to the hub. Broadcasts are best-effort.
func (d *daemonLoop) publish(bcs []StateBroadcast) {
	if d.broadcasts == nil {
		return
	}
	for _, b := range bcs {
		select {
		case d.broadcasts <- b:
		default:
			d.logger.Debug("broadcast queue full, dropping", "broadcast", b)
		}
	}
}

// ============================================================================
// Event sink
// ============================================================================

// eventSink is the non-blocking entry point into the daemon loop used by the
// CEC session and the control plane.
type eventSink struct {
	events chan<- Event
	stats  *Stats
	logger *slog.Logger
}

// Post enqueues ev. A full queue drops the event with a warning and reports false.
func (s eventSink) Post(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	default:
		s.stats.DroppedEvents.Inc()
		s.logger.Warn("event queue full, dropping event", "event", eventName(ev))
		return false
	}
}

func eventName(ev Event) string {
	switch e := ev.(type) {
	case KeyPressed:
		return "key:" + e.Press.Code.String()
	case BusCommandReceived:
		return "bus:" + e.Command.Opcode.String()
	case QuotaRequested:
		return "quota_requested"
	case TapRequested:
		return "tap_requested"
	case ControlExecuted:
		return "control:" + string(e.Action)
	case RequestStateSnapshot:
		return "snapshot"
	default:
		return "event"
	}
}
