package main

import (
	"fmt"
	"sort"
	"time"
)

// QuotaState is the CPU quota of the user slice as far as the daemon knows.
type QuotaState uint8

const (
	QuotaUnknown QuotaState = iota
	QuotaUnrestricted
	QuotaLimited
)

func (q QuotaState) String() string {
	switch q {
	case QuotaUnrestricted:
		return "unrestricted"
	case QuotaLimited:
		return "limited"
	default:
		return "unknown"
	}
}

// MarshalText lets QuotaState appear as a string in JSON.
func (q QuotaState) MarshalText() ([]byte, error) { return []byte(q.String()), nil }

func (q *QuotaState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "unrestricted":
		*q = QuotaUnrestricted
	case "limited":
		*q = QuotaLimited
	case "unknown", "":
		*q = QuotaUnknown
	default:
		return fmt.Errorf("unknown quota state %q", b)
	}
	return nil
}

// TVPower is the TV power state inferred from bus traffic.
type TVPower uint8

const (
	TVUnknown TVPower = iota
	TVOn
	TVStandby
)

func (p TVPower) String() string {
	switch p {
	case TVOn:
		return "on"
	case TVStandby:
		return "standby"
	default:
		return "unknown"
	}
}

func (p TVPower) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *TVPower) UnmarshalText(b []byte) error {
	switch string(b) {
	case "on":
		*p = TVOn
	case "standby":
		*p = TVStandby
	case "unknown", "":
		*p = TVUnknown
	default:
		return fmt.Errorf("unknown TV power state %q", b)
	}
	return nil
}

// DaemonState is the top-level, daemon-owned state container.
// Only the daemon goroutine reads or writes it; other goroutines get a
// StatusSnapshot through RequestStateSnapshot.
type DaemonState struct {
	Quota QuotaStatus
	TV    TVStatus

	LastKey LastKeyState

	// Held is the set of buttons currently down on the pad.
	Held map[Button]bool
	// Hats is the current position of each hat axis.
	Hats map[Axis]int32

	LastDeviceError   string
	LastDeviceErrorAt time.Time

	StartedAt time.Time
}

// QuotaStatus records what was last commanded and what was last confirmed.
// These are informational only: they never suppress a command.
type QuotaStatus struct {
	Commanded        QuotaState
	CommandedPercent int
	CommandedAt      time.Time

	Confirmed        QuotaState
	ConfirmedPercent int
	ConfirmedAt      time.Time

	LastError   string
	LastErrorAt time.Time
}

type TVStatus struct {
	Power TVPower
	At    time.Time
}

type LastKeyState struct {
	Known   bool
	Code    RemoteCode
	Release bool
	At      time.Time
}

// NewDaemonState returns an empty state stamped with now.
func NewDaemonState(now time.Time) *DaemonState {
	return &DaemonState{
		Held:      make(map[Button]bool),
		Hats:      make(map[Axis]int32),
		StartedAt: now,
	}
}

// SetButton records a button transition.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) SetButton(b Button, down bool) {
	if s.Held == nil {
		s.Held = make(map[Button]bool)
	}
	if down {
		s.Held[b] = true
	} else {
		delete(s.Held, b)
	}
}

// SetHat records an axis position.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) SetHat(a Axis, pos int32) {
	if s.Hats == nil {
		s.Hats = make(map[Axis]int32)
	}
	s.Hats[a] = pos
}

// SetLastKey records the most recent remote key.
func (s *DaemonState) SetLastKey(kp KeyPress, at time.Time) {
	s.LastKey = LastKeyState{Known: true, Code: kp.Code, Release: kp.IsRelease(), At: at}
}

// SetCommandedQuota records a quota command handed to the effects worker.
func (s *DaemonState) SetCommandedQuota(q QuotaState, percent int, at time.Time) {
	s.Quota.Commanded = q
	s.Quota.CommandedPercent = percent
	s.Quota.CommandedAt = at
}

// SetConfirmedQuota records a quota command that exited successfully.
// It reports whether the confirmed state changed.
func (s *DaemonState) SetConfirmedQuota(q QuotaState, percent int, at time.Time) bool {
	changed := s.Quota.Confirmed != q || s.Quota.ConfirmedPercent != percent
	s.Quota.Confirmed = q
	s.Quota.ConfirmedPercent = percent
	s.Quota.ConfirmedAt = at
	s.Quota.LastError = ""
	return changed
}

// SetQuotaError records a failed quota command.
func (s *DaemonState) SetQuotaError(err error, at time.Time) {
	s.Quota.LastError = err.Error()
	s.Quota.LastErrorAt = at
}

// SetTVPower records an inferred TV power state and reports whether it changed.
func (s *DaemonState) SetTVPower(p TVPower, at time.Time) bool {
	changed := s.TV.Power != p
	s.TV.Power = p
	s.TV.At = at
	return changed
}

// SetDeviceError records the latest device emission failure.
func (s *DaemonState) SetDeviceError(err error, at time.Time) {
	s.LastDeviceError = err.Error()
	s.LastDeviceErrorAt = at
}

// ==============================
// Snapshot
// ==============================

// StatusSnapshot is the externally visible view of DaemonState.
// It holds no references into the live state.
type StatusSnapshot struct {
	Quota struct {
		Commanded        QuotaState `json:"commanded"`
		CommandedPercent int        `json:"commanded_percent,omitempty"`
		Confirmed        QuotaState `json:"confirmed"`
		ConfirmedPercent int        `json:"confirmed_percent,omitempty"`
		ConfirmedAt      *time.Time `json:"confirmed_at,omitempty"`
		LastError        string     `json:"last_error,omitempty"`
	} `json:"quota"`

	TVPower   TVPower    `json:"tv_power"`
	TVPowerAt *time.Time `json:"tv_power_at,omitempty"`

	LastKey   string     `json:"last_key,omitempty"`
	LastKeyAt *time.Time `json:"last_key_at,omitempty"`

	HeldButtons []string         `json:"held_buttons"`
	Hats        map[string]int32 `json:"hats"`

	LastDeviceError string `json:"last_device_error,omitempty"`

	StartedAt time.Time `json:"started_at"`

	// Stats and WSClients are filled in by the HTTP layer.
	Stats     *StatsSnapshot `json:"stats,omitempty"`
	WSClients int            `json:"ws_clients"`
}

// Snapshot builds a StatusSnapshot from s.
func (s *DaemonState) Snapshot() StatusSnapshot {
	var snap StatusSnapshot

	snap.Quota.Commanded = s.Quota.Commanded
	snap.Quota.CommandedPercent = s.Quota.CommandedPercent
	snap.Quota.Confirmed = s.Quota.Confirmed
	snap.Quota.ConfirmedPercent = s.Quota.ConfirmedPercent
	snap.Quota.ConfirmedAt = timePtr(s.Quota.ConfirmedAt)
	snap.Quota.LastError = s.Quota.LastError

	snap.TVPower = s.TV.Power
	snap.TVPowerAt = timePtr(s.TV.At)

	if s.LastKey.Known {
		snap.LastKey = s.LastKey.Code.String()
		if s.LastKey.Release {
			snap.LastKey += " (release)"
		}
		snap.LastKeyAt = timePtr(s.LastKey.At)
	}

	snap.HeldButtons = make([]string, 0, len(s.Held))
	for b := range s.Held {
		snap.HeldButtons = append(snap.HeldButtons, b.String())
	}
	sort.Strings(snap.HeldButtons)

	snap.Hats = map[string]int32{
		AxisHat0X.String(): s.Hats[AxisHat0X],
		AxisHat0Y.String(): s.Hats[AxisHat0Y],
	}

	snap.LastDeviceError = s.LastDeviceError
	snap.StartedAt = s.StartedAt
	return snap
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
