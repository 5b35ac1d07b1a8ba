package main

import "github.com/puzpuzpuz/xsync/v3"

// Stats are process-wide counters. They are written from the daemon loop, the
// effects worker, session goroutines and HTTP handlers, and read by /status.
type Stats struct {
	KeyPresses      *xsync.Counter
	BusCommands     *xsync.Counter
	UnmappedKeys    *xsync.Counter
	DroppedEvents   *xsync.Counter
	DeviceErrors    *xsync.Counter
	QuotaCommands   *xsync.Counter
	QuotaErrors     *xsync.Counter
	ControlRequests *xsync.Counter
	ControlErrors   *xsync.Counter
}

func NewStats() *Stats {
	return &Stats{
		KeyPresses:      xsync.NewCounter(),
		BusCommands:     xsync.NewCounter(),
		UnmappedKeys:    xsync.NewCounter(),
		DroppedEvents:   xsync.NewCounter(),
		DeviceErrors:    xsync.NewCounter(),
		QuotaCommands:   xsync.NewCounter(),
		QuotaErrors:     xsync.NewCounter(),
		ControlRequests: xsync.NewCounter(),
		ControlErrors:   xsync.NewCounter(),
	}
}

// StatsSnapshot is the JSON form of Stats.
type StatsSnapshot struct {
	KeyPresses      int64 `json:"key_presses"`
	BusCommands     int64 `json:"bus_commands"`
	UnmappedKeys    int64 `json:"unmapped_keys"`
	DroppedEvents   int64 `json:"dropped_events"`
	DeviceErrors    int64 `json:"device_errors"`
	QuotaCommands   int64 `json:"quota_commands"`
	QuotaErrors     int64 `json:"quota_errors"`
	ControlRequests int64 `json:"control_requests"`
	ControlErrors   int64 `json:"control_errors"`
}

// Snapshot reads every counter. Values are individually, not jointly, consistent.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		KeyPresses:      s.KeyPresses.Value(),
		BusCommands:     s.BusCommands.Value(),
		UnmappedKeys:    s.UnmappedKeys.Value(),
		DroppedEvents:   s.DroppedEvents.Value(),
		DeviceErrors:    s.DeviceErrors.Value(),
		QuotaCommands:   s.QuotaCommands.Value(),
		QuotaErrors:     s.QuotaErrors.Value(),
		ControlRequests: s.ControlRequests.Value(),
		ControlErrors:   s.ControlErrors.Value(),
	}
}
