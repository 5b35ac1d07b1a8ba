package main

import (
	"errors"
	"testing"
	"time"
)

var testCoordinator = CoordinatorConfig{
	LimitPercent: 10,
	PlayHold:     16 * time.Millisecond,
	TapHold:      16 * time.Millisecond,
}

func reduce(t *testing.T, s *DaemonState, e Event) ReduceResult {
	t.Helper()
	rr := Reduce(s, e, DefaultKeymap(), testCoordinator)
	if rr.State == nil {
		t.Fatalf("reducer returned nil state")
	}
	return rr
}

func busEvent(op Opcode, from LogicalAddress) Event {
	return BusCommandReceived{
		Command: BusCommand{Opcode: op, Initiator: from, Destination: AddressBroadcast},
		At:      time.Now(),
	}
}

func TestReducer_BusRequestActiveSourceFromTVUnlimits(t *testing.T) {
	s := NewDaemonState(time.Now())
	rr := reduce(t, s, busEvent(OpRequestActiveSource, AddressTV))

	if len(rr.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(rr.Commands))
	}
	if _, ok := rr.Commands[0].(CmdUnlimitCPU); !ok {
		t.Fatalf("expected CmdUnlimitCPU, got %T", rr.Commands[0])
	}
	if rr.State.TV.Power != TVOn {
		t.Fatalf("TV power = %s, want on", rr.State.TV.Power)
	}
	if rr.State.Quota.Commanded != QuotaUnrestricted {
		t.Fatalf("commanded quota = %s, want unrestricted", rr.State.Quota.Commanded)
	}
}

func TestReducer_BusStandbyFromTVLimits(t *testing.T) {
	s := NewDaemonState(time.Now())
	rr := reduce(t, s, busEvent(OpStandby, AddressTV))

	if len(rr.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(rr.Commands))
	}
	cmd, ok := rr.Commands[0].(CmdLimitCPU)
	if !ok {
		t.Fatalf("expected CmdLimitCPU, got %T", rr.Commands[0])
	}
	if cmd.Percent != 10 {
		t.Fatalf("percent = %d, want 10", cmd.Percent)
	}
	if rr.State.TV.Power != TVStandby {
		t.Fatalf("TV power = %s, want standby", rr.State.TV.Power)
	}
}

func TestReducer_BusCommandsFromOtherDevicesIgnored(t *testing.T) {
	s := NewDaemonState(time.Now())
	for _, op := range []Opcode{OpRequestActiveSource, OpStandby} {
		rr := reduce(t, s, busEvent(op, AddressPlayback1))
		if len(rr.Commands) != 0 {
			t.Fatalf("%s from Playback1: expected no commands, got %v", op, rr.Commands)
		}
	}
	if s.TV.Power != TVUnknown {
		t.Fatalf("TV power changed to %s", s.TV.Power)
	}
}

func TestReducer_BusPlayTapsPlayPauseFromAnyInitiator(t *testing.T) {
	for _, from := range []LogicalAddress{AddressTV, AddressPlayback2, AddressAudioSystem} {
		rr := reduce(t, NewDaemonState(time.Now()), busEvent(OpPlay, from))
		if len(rr.Commands) != 1 {
			t.Fatalf("from %s: expected 1 command, got %d", from, len(rr.Commands))
		}
		tap, ok := rr.Commands[0].(CmdTap)
		if !ok {
			t.Fatalf("from %s: expected CmdTap, got %T", from, rr.Commands[0])
		}
		if tap.Button != KeyPlayPause || tap.Hold != 16*time.Millisecond {
			t.Fatalf("from %s: unexpected tap %s", from, tap)
		}
	}
}

func TestReducer_RepeatedStandbyIsNotDeduplicated(t *testing.T) {
	s := NewDaemonState(time.Now())

	first := reduce(t, s, busEvent(OpStandby, AddressTV))
	second := reduce(t, first.State, busEvent(OpStandby, AddressTV))

	if len(second.Commands) != 1 {
		t.Fatalf("second standby: expected 1 command, got %d", len(second.Commands))
	}
	if len(first.Broadcasts) != 1 {
		t.Fatalf("first standby: expected a tv_power broadcast")
	}
	if len(second.Broadcasts) != 0 {
		t.Fatalf("second standby: power unchanged, expected no broadcast, got %v", second.Broadcasts)
	}
}

func TestReducer_KeyPressHatAndRelease(t *testing.T) {
	s := NewDaemonState(time.Now())

	rr := reduce(t, s, KeyPressed{Press: KeyPress{Code: RemoteUp}, At: time.Now()})
	if len(rr.Commands) != 1 {
		t.Fatalf("press: expected 1 command, got %d", len(rr.Commands))
	}
	if c, ok := rr.Commands[0].(CmdAxis); !ok || c.Axis != AxisHat0Y || c.Position != -1 {
		t.Fatalf("press: unexpected command %v", rr.Commands[0])
	}

	rr = reduce(t, rr.State, KeyPressed{Press: KeyPress{Code: RemoteUp, Duration: 40 * time.Millisecond}, At: time.Now()})
	if c, ok := rr.Commands[0].(CmdAxis); !ok || c.Axis != AxisHat0Y || c.Position != 0 {
		t.Fatalf("release: unexpected command %v", rr.Commands[0])
	}
	if rr.State.Hats[AxisHat0Y] != 0 {
		t.Fatalf("hat not recentered: %d", rr.State.Hats[AxisHat0Y])
	}
}

func TestReducer_KeyPressButtonTracksHeld(t *testing.T) {
	s := NewDaemonState(time.Now())

	rr := reduce(t, s, KeyPressed{Press: KeyPress{Code: RemoteSelect}, At: time.Now()})
	if c, ok := rr.Commands[0].(CmdButton); !ok || c.Button != BtnSouth || !c.Down {
		t.Fatalf("press: unexpected command %v", rr.Commands[0])
	}
	if !rr.State.Held[BtnSouth] {
		t.Fatalf("BTN_SOUTH should be held")
	}
	if len(rr.Broadcasts) != 1 {
		t.Fatalf("expected key broadcast")
	}

	rr = reduce(t, rr.State, KeyPressed{Press: KeyPress{Code: RemoteSelect, Duration: time.Millisecond}, At: time.Now()})
	if c, ok := rr.Commands[0].(CmdButton); !ok || c.Down {
		t.Fatalf("release: unexpected command %v", rr.Commands[0])
	}
	if rr.State.Held[BtnSouth] {
		t.Fatalf("BTN_SOUTH should be released")
	}
}

func TestReducer_UnmappedKeyProducesNothing(t *testing.T) {
	s := NewDaemonState(time.Now())
	rr := reduce(t, s, KeyPressed{Press: KeyPress{Code: RemoteVolumeUp}, At: time.Now()})
	if len(rr.Commands) != 0 || len(rr.Broadcasts) != 0 {
		t.Fatalf("expected nothing, got %v / %v", rr.Commands, rr.Broadcasts)
	}
	if !rr.State.LastKey.Known || rr.State.LastKey.Code != RemoteVolumeUp {
		t.Fatalf("last key not recorded")
	}
}

func TestReducer_DeviceEmitFailedClearsHeldButton(t *testing.T) {
	s := NewDaemonState(time.Now())
	s.SetButton(BtnSouth, true)

	rr := reduce(t, s, DeviceEmitFailed{Command: CmdButton{Button: BtnSouth, Down: true}, Err: ErrDeviceEmit, At: time.Now()})
	if rr.State.Held[BtnSouth] {
		t.Fatalf("failed press must not leave the button held")
	}
	if rr.State.LastDeviceError == "" {
		t.Fatalf("device error not recorded")
	}
}

func TestReducer_QuotaObservations(t *testing.T) {
	s := NewDaemonState(time.Now())

	rr := reduce(t, s, QuotaApplied{State: QuotaLimited, Percent: 10, At: time.Now()})
	if len(rr.Broadcasts) != 1 {
		t.Fatalf("expected quota_changed broadcast")
	}
	rr = reduce(t, rr.State, QuotaApplied{State: QuotaLimited, Percent: 10, At: time.Now()})
	if len(rr.Broadcasts) != 0 {
		t.Fatalf("unchanged quota should not broadcast")
	}

	rr = reduce(t, rr.State, QuotaFailed{Command: CmdUnlimitCPU{}, Err: errors.New("exit status 1"), At: time.Now()})
	if rr.State.Quota.LastError != "exit status 1" {
		t.Fatalf("LastError = %q", rr.State.Quota.LastError)
	}
	if rr.State.Quota.Confirmed != QuotaLimited {
		t.Fatalf("a failure must not change the confirmed state")
	}
}

func TestReducer_ManualRequestsUseDefaults(t *testing.T) {
	s := NewDaemonState(time.Now())

	rr := reduce(t, s, QuotaRequested{Limit: true, At: time.Now()})
	if c, ok := rr.Commands[0].(CmdLimitCPU); !ok || c.Percent != 10 {
		t.Fatalf("unexpected command %v", rr.Commands[0])
	}
	rr = reduce(t, s, QuotaRequested{Limit: true, Percent: 30, At: time.Now()})
	if c := rr.Commands[0].(CmdLimitCPU); c.Percent != 30 {
		t.Fatalf("percent = %d, want 30", c.Percent)
	}
	rr = reduce(t, s, TapRequested{Button: BtnStart, At: time.Now()})
	if c, ok := rr.Commands[0].(CmdTap); !ok || c.Hold != 16*time.Millisecond || c.Button != BtnStart {
		t.Fatalf("unexpected command %v", rr.Commands[0])
	}
}

func TestReducer_SnapshotRequest(t *testing.T) {
	s := NewDaemonState(time.Now())
	s.SetTVPower(TVStandby, time.Now())

	reply := make(chan StatusSnapshot, 1)
	rr := reduce(t, s, RequestStateSnapshot{Reply: reply})
	if len(rr.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(rr.Commands))
	}
	cmd, ok := rr.Commands[0].(CmdPublishStateSnapshot)
	if !ok {
		t.Fatalf("expected CmdPublishStateSnapshot, got %T", rr.Commands[0])
	}
	if cmd.Snapshot.TVPower != TVStandby {
		t.Fatalf("snapshot TV power = %s", cmd.Snapshot.TVPower)
	}
}

func TestReducer_EveryDefaultBindingPressesThenReleases(t *testing.T) {
	for _, b := range DefaultBindings() {
		s := NewDaemonState(time.Now())

		down := reduce(t, s, KeyPressed{Press: KeyPress{Code: b.Code}, At: time.Now()})
		up := reduce(t, s, KeyPressed{Press: KeyPress{Code: b.Code, Duration: 200 * time.Millisecond}, At: time.Now()})

		if len(down.Commands) != 1 || len(up.Commands) != 1 {
			t.Fatalf("%s: got %d then %d commands, want 1 then 1", b.Code, len(down.Commands), len(up.Commands))
		}

		switch b.Event.Kind {
		case KindButton:
			want := []Command{CmdButton{Button: b.Event.Button, Down: true}, CmdButton{Button: b.Event.Button, Down: false}}
			if down.Commands[0] != want[0] || up.Commands[0] != want[1] {
				t.Errorf("%s: got %v, %v; want %v", b.Code, down.Commands[0], up.Commands[0], want)
			}
			if len(s.Held) != 0 {
				t.Errorf("%s: buttons still held %v", b.Code, s.Held)
			}
		case KindHat:
			want := []Command{CmdAxis{Axis: b.Event.Axis, Position: b.Event.Position}, CmdAxis{Axis: b.Event.Axis, Position: 0}}
			if b.Event.Position == 0 {
				t.Errorf("%s: hat binding has no direction", b.Code)
			}
			if down.Commands[0] != want[0] || up.Commands[0] != want[1] {
				t.Errorf("%s: got %v, %v; want %v", b.Code, down.Commands[0], up.Commands[0], want)
			}
		default:
			t.Errorf("%s: unknown kind %d", b.Code, b.Event.Kind)
		}
	}
}
