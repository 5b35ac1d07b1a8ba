package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ============================================================================
// Control Plane
// ============================================================================
// Shared by the HTTP endpoint and the IPC socket.
//
// TV power and host power run synchronously on the caller's goroutine, exactly
// once per request. Quota and tap requests go through the daemon loop, which
// owns the pad and the quota state.
// ============================================================================

// ControlAction names a control-plane operation.
type ControlAction string

const (
	ActionTVOn          ControlAction = "tv_on"
	ActionTVOff         ControlAction = "tv_off"
	ActionPCOff         ControlAction = "pc_off"
	ActionRestrictCPU   ControlAction = "restrict_cpu"
	ActionUnrestrictCPU ControlAction = "unrestrict_cpu"
	ActionTap           ControlAction = "tap"
)

// ControlRequest is one control-plane operation with its arguments.
type ControlRequest struct {
	Action ControlAction

	// Percent applies to ActionRestrictCPU; 0 means the configured default.
	Percent int

	// Button and Hold apply to ActionTap; Hold 0 means the configured default.
	Button Button
	Hold   time.Duration

	// Origin is "http" or "ipc"; used for logs and broadcasts.
	Origin string
}

// hostPowerOff is the shutdown surface used by the control plane.
type hostPowerOff interface {
	Shutdown() error
}

// errQueueFull is returned when a request can't be handed to the daemon loop.
var errQueueFull = errors.New("event queue full")

// ControlPlane executes control requests.
type ControlPlane struct {
	session CECSession
	power   hostPowerOff
	sink    eventSink
	stats   *Stats
	logger  *slog.Logger
}

func NewControlPlane(session CECSession, power hostPowerOff, sink eventSink, stats *Stats, logger *slog.Logger) *ControlPlane {
	return &ControlPlane{
		session: session,
		power:   power,
		sink:    sink,
		stats:   stats,
		logger:  logger,
	}
}

// Execute runs req. The returned error is informational: HTTP callers ignore it,
// IPC callers report it.
func (c *ControlPlane) Execute(req ControlRequest) error {
	c.stats.ControlRequests.Inc()

	var err error
	switch req.Action {
	case ActionTVOn:
		if err = c.session.PowerOn(AddressTV); err != nil {
			c.logger.Error("power on TV failed", "origin", req.Origin, "error", err)
		} else {
			c.logger.Info("powered on TV", "origin", req.Origin)
		}
		c.sink.Post(ControlExecuted{Action: req.Action, Origin: req.Origin, Err: err, At: time.Now()})

	case ActionTVOff:
		if err = c.session.Standby(AddressTV); err != nil {
			c.logger.Error("TV standby failed", "origin", req.Origin, "error", err)
		} else {
			c.logger.Info("sent TV to standby", "origin", req.Origin)
		}
		c.sink.Post(ControlExecuted{Action: req.Action, Origin: req.Origin, Err: err, At: time.Now()})

	case ActionPCOff:
		// Publish before shutting down; there may be no later chance.
		c.sink.Post(ControlExecuted{Action: req.Action, Origin: req.Origin, At: time.Now()})
		if err = c.power.Shutdown(); err != nil {
			c.logger.Error("shutdown failed", "origin", req.Origin, "error", err)
		} else {
			c.logger.Info("shutdown requested", "origin", req.Origin)
		}

	case ActionRestrictCPU, ActionUnrestrictCPU:
		ev := QuotaRequested{
			Limit:   req.Action == ActionRestrictCPU,
			Percent: req.Percent,
			Origin:  req.Origin,
			At:      time.Now(),
		}
		if !c.sink.Post(ev) {
			err = errQueueFull
		}

	case ActionTap:
		ev := TapRequested{Button: req.Button, Hold: req.Hold, Origin: req.Origin, At: time.Now()}
		if !c.sink.Post(ev) {
			err = errQueueFull
		}

	default:
		err = fmt.Errorf("unknown control action %q", req.Action)
	}

	if err != nil {
		c.stats.ControlErrors.Inc()
	}
	return err
}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// ControlEnvelope wraps a control request with a type discriminator:
//   {"type":"tv_on"}
//   {"type":"restrict_cpu","data":{"percent":20}}
//   {"type":"tap","data":{"button":"BTN_SOUTH","hold_ms":50}}
// ============================================================================

// ControlEnvelope is the IPC wire format.
type ControlEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type restrictCPUData struct {
	Percent int `json:"percent,omitempty"`
}

type tapData struct {
	Button string `json:"button"`
	HoldMS int    `json:"hold_ms,omitempty"`
}

// UnmarshalControlRequest decodes one envelope.
func UnmarshalControlRequest(data []byte) (ControlRequest, error) {
	var env ControlEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ControlRequest{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	req := ControlRequest{Action: ControlAction(env.Type)}
	switch req.Action {
	case ActionTVOn, ActionTVOff, ActionPCOff, ActionUnrestrictCPU:
		return req, nil

	case ActionRestrictCPU:
		var d restrictCPUData
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &d); err != nil {
				return ControlRequest{}, fmt.Errorf("unmarshal restrict_cpu: %w", err)
			}
		}
		if d.Percent < 0 {
			return ControlRequest{}, fmt.Errorf("restrict_cpu: percent must be >= 0")
		}
		req.Percent = d.Percent
		return req, nil

	case ActionTap:
		var d tapData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return ControlRequest{}, fmt.Errorf("unmarshal tap: %w", err)
		}
		ev, none, err := ParseTarget(d.Button)
		if err != nil {
			return ControlRequest{}, fmt.Errorf("tap: %w", err)
		}
		if none || ev.Kind != KindButton {
			return ControlRequest{}, fmt.Errorf("tap: %q is not a button", d.Button)
		}
		if d.HoldMS < 0 {
			return ControlRequest{}, fmt.Errorf("tap: hold_ms must be >= 0")
		}
		req.Button = ev.Button
		req.Hold = time.Duration(d.HoldMS) * time.Millisecond
		return req, nil

	default:
		return ControlRequest{}, fmt.Errorf("unknown request type: %q", env.Type)
	}
}

// MarshalControlRequest encodes req as an envelope.
func MarshalControlRequest(req ControlRequest) ([]byte, error) {
	env := ControlEnvelope{Type: string(req.Action)}

	switch req.Action {
	case ActionTVOn, ActionTVOff, ActionPCOff, ActionUnrestrictCPU:

	case ActionRestrictCPU:
		if req.Percent > 0 {
			data, err := json.Marshal(restrictCPUData{Percent: req.Percent})
			if err != nil {
				return nil, fmt.Errorf("marshal restrict_cpu: %w", err)
			}
			env.Data = data
		}

	case ActionTap:
		data, err := json.Marshal(tapData{Button: req.Button.String(), HoldMS: int(req.Hold / time.Millisecond)})
		if err != nil {
			return nil, fmt.Errorf("marshal tap: %w", err)
		}
		env.Data = data

	default:
		return nil, fmt.Errorf("unsupported request type: %q", req.Action)
	}

	return json.Marshal(env)
}
