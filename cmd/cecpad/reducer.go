package main

import (
	"errors"
	"time"
)

// Reduce is the pure reducer for the daemon.
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Must not mutate anything outside the returned state
//
// The daemon loop executes the returned Commands, turns their outcomes into
// Events and feeds those back into Reduce.

// CoordinatorConfig holds the reducer policy knobs.
type CoordinatorConfig struct {
	// LimitPercent is the CPU quota applied when the TV goes to standby.
	LimitPercent int

	// PlayHold is how long KEY_PLAYPAUSE is held for a bus Play command.
	PlayHold time.Duration

	// TapHold is the default hold for manual taps.
	TapHold time.Duration
}

// ReduceResult is the output of Reduce: next state, side effects and broadcasts.
type ReduceResult struct {
	State      *DaemonState
	Commands   []Command
	Broadcasts []StateBroadcast
}

func Reduce(s *DaemonState, e Event, km *Keymap, cfg CoordinatorConfig) ReduceResult {
	if s == nil {
		s = NewDaemonState(time.Time{})
	}

	var (
		cmds []Command
		bcs  []StateBroadcast
	)

	switch ev := e.(type) {
	case KeyPressed:
		s.SetLastKey(ev.Press, ev.At)

		target, ok := km.Translate(ev.Press.Code)
		if !ok {
			break
		}
		release := ev.Press.IsRelease()

		switch target.Kind {
		case KindButton:
			cmds = append(cmds, CmdButton{Button: target.Button, Down: !release})
			s.SetButton(target.Button, !release)
		case KindHat:
			// A release recenters the axis whichever direction was held.
			pos := target.Position
			if release {
				pos = 0
			}
			cmds = append(cmds, CmdAxis{Axis: target.Axis, Position: pos})
			s.SetHat(target.Axis, pos)
		}
		bcs = append(bcs, BroadcastKey{Code: ev.Press.Code, Target: target.String(), Release: release, At: ev.At})

	case BusCommandReceived:
		c := ev.Command
		switch {
		case c.Opcode == OpRequestActiveSource && c.Initiator == AddressTV:
			// TV came online.
			cmds = append(cmds, CmdUnlimitCPU{})
			s.SetCommandedQuota(QuotaUnrestricted, 0, ev.At)
			if s.SetTVPower(TVOn, ev.At) {
				bcs = append(bcs, BroadcastTVPowerChanged{Power: TVOn, At: ev.At})
			}

		case c.Opcode == OpStandby && c.Initiator == AddressTV:
			// TV came offline.
			cmds = append(cmds, CmdLimitCPU{Percent: cfg.LimitPercent})
			s.SetCommandedQuota(QuotaLimited, cfg.LimitPercent, ev.At)
			if s.SetTVPower(TVStandby, ev.At) {
				bcs = append(bcs, BroadcastTVPowerChanged{Power: TVStandby, At: ev.At})
			}

		case c.Opcode == OpPlay:
			cmds = append(cmds, CmdTap{Button: KeyPlayPause, Hold: cfg.PlayHold})
		}

	case QuotaRequested:
		if ev.Limit {
			pct := ev.Percent
			if pct <= 0 {
				pct = cfg.LimitPercent
			}
			cmds = append(cmds, CmdLimitCPU{Percent: pct})
			s.SetCommandedQuota(QuotaLimited, pct, ev.At)
		} else {
			cmds = append(cmds, CmdUnlimitCPU{})
			s.SetCommandedQuota(QuotaUnrestricted, 0, ev.At)
		}

	case TapRequested:
		hold := ev.Hold
		if hold <= 0 {
			hold = cfg.TapHold
		}
		cmds = append(cmds, CmdTap{Button: ev.Button, Hold: hold})

	case ControlExecuted:
		bc := BroadcastControl{Action: ev.Action, Origin: ev.Origin, At: ev.At}
		if ev.Err != nil {
			bc.Error = ev.Err.Error()
		}
		bcs = append(bcs, bc)

	case RequestStateSnapshot:
		cmds = append(cmds, CmdPublishStateSnapshot{Reply: ev.Reply, Snapshot: s.Snapshot()})

	case DeviceEmitFailed:
		s.SetDeviceError(ev.Err, ev.At)
		// The kernel never saw the transition; don't report it as held.
		if b, ok := ev.Command.(CmdButton); ok && b.Down {
			s.SetButton(b.Button, false)
		}

	case QuotaApplied:
		if s.SetConfirmedQuota(ev.State, ev.Percent, ev.At) {
			bcs = append(bcs, BroadcastQuotaChanged{State: ev.State, Percent: ev.Percent, At: ev.At})
		}

	case QuotaFailed:
		err := ev.Err
		if err == nil {
			err = errors.New("quota command failed")
		}
		s.SetQuotaError(err, ev.At)

	default:
		// Unknown event type: no-op.
	}

	return ReduceResult{
		State:      s,
		Commands:   cmds,
		Broadcasts: bcs,
	}
}
