package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// ============================================================================
// cecpad-ctl - Command-line IPC Client
// ============================================================================
// Sends one control request to the cecpad daemon over its Unix socket.
//
// Usage:
//   cecpad-ctl tv-on
//   cecpad-ctl tv-off
//   cecpad-ctl pc-off
//   cecpad-ctl restrict-cpu [percent]
//   cecpad-ctl unrestrict-cpu
//   cecpad-ctl tap BUTTON [hold-ms]
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/cecpad.sock)
// ============================================================================

const defaultSocketPath = "/tmp/cecpad.sock"

// dialTimeout bounds connect and the whole request/response exchange.
const dialTimeout = 5 * time.Second

// ControlEnvelope is the daemon's IPC wire format (kept in sync with cecpad).
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

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

var errUsage = errors.New("usage")

func main() {
	socketPath := defaultSocketPath

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage()
		os.Exit(0)
	}

	env, err := buildEnvelope(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errUsage) {
			printUsage()
		}
		os.Exit(1)
	}

	if err := sendRequest(socketPath, env); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("ok")
}

// buildEnvelope turns command-line arguments into a request envelope.
func buildEnvelope(args []string) (ControlEnvelope, error) {
	var env ControlEnvelope

	switch args[0] {
	case "tv-on", "on":
		env.Type = "tv_on"

	case "tv-off", "off", "standby":
		env.Type = "tv_off"

	case "pc-off", "poweroff":
		env.Type = "pc_off"

	case "unrestrict-cpu", "unrestrict":
		env.Type = "unrestrict_cpu"

	case "restrict-cpu", "restrict":
		env.Type = "restrict_cpu"
		if len(args) > 1 {
			pct, err := strconv.Atoi(args[1])
			if err != nil || pct <= 0 {
				return env, fmt.Errorf("invalid percent %q", args[1])
			}
			data, err := json.Marshal(restrictCPUData{Percent: pct})
			if err != nil {
				return env, fmt.Errorf("marshal restrict_cpu: %w", err)
			}
			env.Data = data
		}

	case "tap":
		if len(args) < 2 {
			return env, fmt.Errorf("%w: tap requires a button name", errUsage)
		}
		d := tapData{Button: args[1]}
		if len(args) > 2 {
			ms, err := strconv.Atoi(args[2])
			if err != nil || ms < 0 {
				return env, fmt.Errorf("invalid hold %q", args[2])
			}
			d.HoldMS = ms
		}
		data, err := json.Marshal(d)
		if err != nil {
			return env, fmt.Errorf("marshal tap: %w", err)
		}
		env.Type = "tap"
		env.Data = data

	default:
		return env, fmt.Errorf("%w: unknown command: %s", errUsage, args[0])
	}

	return env, nil
}

func sendRequest(socketPath string, env ControlEnvelope) error {
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(dialTimeout))

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	// Line-delimited JSON
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	var response IPCResponse
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if response.Status == "error" {
		return fmt.Errorf("daemon error: %s", response.Error)
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cecpad-ctl - Control the cecpad daemon via IPC

Usage:
  cecpad-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/cecpad.sock)

Commands:
  tv-on, on                       Power on the TV over CEC
  tv-off, off, standby            Put the TV in standby over CEC
  pc-off, poweroff                Shut this machine down
  restrict-cpu, restrict [pct]    Apply the CPU quota (default: configured percent)
  unrestrict-cpu, unrestrict      Lift the CPU quota
  tap BUTTON [hold-ms]            Press and release a pad button (e.g. BTN_SOUTH)
  help, -h, --help                Show this help message

Examples:
  cecpad-ctl tv-on
  cecpad-ctl restrict-cpu 25
  cecpad-ctl tap BTN_START 50
  cecpad-ctl -socket /run/cecpad.sock unrestrict-cpu
`)
}
