package main

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// errNoEffectsWorker means a power command was produced with no worker to run it.
var errNoEffectsWorker = errors.New("no effects worker")

// runDeviceEffect executes a device command (or snapshot delivery) on the
// daemon goroutine and reports failures via onEvent.
//
// Design rules:
// - This function is allowed to perform I/O.
// - It must never call Reduce() directly; it only emits Events.
func runDeviceEffect(pad inputPad, cmd Command, logger *slog.Logger, onEvent func(Event)) {
	if onEvent == nil {
		return
	}

	var err error
	switch c := cmd.(type) {
	case CmdButton:
		if pad == nil {
			err = ErrDeviceEmit
			break
		}
		if c.Down {
			err = pad.Press(c.Button)
		} else {
			err = pad.Release(c.Button)
		}
		if err == nil {
			logger.Debug("button", "button", c.Button.String(), "down", c.Down)
		}

	case CmdAxis:
		if pad == nil {
			err = ErrDeviceEmit
			break
		}
		err = pad.Axis(c.Axis, c.Position)
		if err == nil {
			logger.Debug("axis", "axis", c.Axis.String(), "position", c.Position)
		}

	case CmdTap:
		if pad == nil {
			err = ErrDeviceEmit
			break
		}
		err = pad.PressAndRelease(c.Button, c.Hold)
		if err == nil {
			logger.Debug("tapped", "button", c.Button.String(), "hold", c.Hold)
		}

	case CmdPublishStateSnapshot:
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}
		// Never block the daemon loop on a requester.
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}
		return

	default:
		logger.Warn("unexpected command on device path", "command", cmd.String())
		return
	}

	if err != nil {
		logger.Error("device write failed", "command", cmd.String(), "error", err)
		onEvent(DeviceEmitFailed{Command: cmd, Err: err, At: time.Now()})
	}
}

// quotaController is the CPU-quota surface used by the effects worker.
type quotaController interface {
	Limit(percent int) error
	Unlimit() error
}

// runPowerEffect executes one quota command and reports the outcome.
func runPowerEffect(quota quotaController, cmd Command, logger *slog.Logger, onEvent func(Event)) {
	now := time.Now()

	switch c := cmd.(type) {
	case CmdLimitCPU:
		if err := quota.Limit(c.Percent); err != nil {
			logger.Error("failed limiting CPU", "percent", c.Percent, "error", err)
			onEvent(QuotaFailed{Command: cmd, Err: err, At: now})
			return
		}
		onEvent(QuotaApplied{State: QuotaLimited, Percent: c.Percent, At: now})

	case CmdUnlimitCPU:
		if err := quota.Unlimit(); err != nil {
			logger.Error("failed unlimiting CPU", "error", err)
			onEvent(QuotaFailed{Command: cmd, Err: err, At: now})
			return
		}
		onEvent(QuotaApplied{State: QuotaUnrestricted, At: now})

	default:
		logger.Warn("unknown command type", "command", cmd.String())
		onEvent(QuotaFailed{Command: cmd, Err: errUnknownCommand{cmd: cmd}, At: now})
	}
}

// runEffectsWorker runs power commands one at a time until ctx is canceled.
// Outcomes go back to the daemon loop as events.
func runEffectsWorker(ctx context.Context, cmds <-chan Command, quota quotaController, events chan<- Event, stats *Stats, logger *slog.Logger) {
	report := func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			stats.QuotaCommands.Inc()
			runPowerEffect(quota, cmd, logger, report)
		}
	}
}

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
