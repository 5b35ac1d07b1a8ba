package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cecpad/internal/uinput"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the cecpad daemon.
//
// Defaults and validation are centralized here so the rest of the code can
// assume a well-formed config. Every field has a working default; a config
// file is optional.
type Config struct {
	CEC     CECConfig     `yaml:"cec"`
	Device  DeviceConfig  `yaml:"device"`
	Keymap  KeymapConfig  `yaml:"keymap"`
	Power   PowerConfig   `yaml:"power"`
	HTTP    HTTPConfig    `yaml:"http"`
	IPC     IPCConfig     `yaml:"ipc"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Logging LoggingConfig `yaml:"logging"`
}

// CEC session backends.
const (
	BackendLibCEC    = "libcec"
	BackendCECClient = "cec-client"
)

type CECConfig struct {
	// Backend selects how the bus is reached: "libcec" links libcec through
	// cgo, "cec-client" drives the cec-client CLI as a child process.
	Backend string `yaml:"backend"`
	// ClientPath is the cec-client binary (cec-client backend only).
	ClientPath string `yaml:"client_path"`
	// Adapter is the adapter port (e.g. /dev/ttyACM0). Empty autodetects.
	Adapter string `yaml:"adapter,omitempty"`
	// DeviceName is the OSD name announced on the bus. Empty means the hostname.
	DeviceName string `yaml:"device_name,omitempty"`
	// ActivateSource makes us the active source on startup (cec-client
	// backend; libcec registers through its own configuration).
	ActivateSource bool `yaml:"activate_source"`
	// LogMask is the cec-client -d mask; TRAFFIC (8) is required for the
	// cec-client backend.
	LogMask int `yaml:"log_mask"`
}

type DeviceConfig struct {
	Name       string `yaml:"name"`
	BusType    uint16 `yaml:"bus_type"`
	Vendor     uint16 `yaml:"vendor"`
	Product    uint16 `yaml:"product"`
	Version    uint16 `yaml:"version"`
	UinputPath string `yaml:"uinput_path"`
}

type KeymapConfig struct {
	// Overrides maps CEC key names (e.g. "F1Blue") to targets
	// (e.g. "BTN_WEST", "HAT0Y-", "none").
	Overrides map[string]string `yaml:"overrides,omitempty"`
}

type PowerConfig struct {
	Slice           string   `yaml:"slice"`
	LimitPercent    int      `yaml:"limit_percent"`
	SystemctlPath   string   `yaml:"systemctl_path"`
	ShutdownCommand []string `yaml:"shutdown_command"`
	PlayHoldMS      int      `yaml:"play_hold_ms"`
	TapHoldMS       int      `yaml:"tap_hold_ms"`
}

type HTTPConfig struct {
	// Listen is the control endpoint address. Empty disables HTTP.
	Listen string `yaml:"listen"`
}

type IPCConfig struct {
	// SocketPath is the Unix socket path. Empty disables IPC.
	SocketPath string `yaml:"socket_path"`
}

type DaemonConfig struct {
	EventQueue   int `yaml:"event_queue"`
	EffectsQueue int `yaml:"effects_queue"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		CEC: CECConfig{
			Backend:        BackendLibCEC,
			ClientPath:     "cec-client",
			ActivateSource: true,
			LogMask:        15,
		},
		Device: DeviceConfig{
			Name:       "CEC",
			BusType:    uinput.BusBluetooth,
			Vendor:     0x045e,
			Product:    0x02e0,
			Version:    0x0903,
			UinputPath: uinput.DefaultPath,
		},
		Power: PowerConfig{
			Slice:           "user-1000.slice",
			LimitPercent:    10,
			SystemctlPath:   "systemctl",
			ShutdownCommand: []string{"systemctl", "poweroff"},
			PlayHoldMS:      16,
			TapHoldMS:       16,
		},
		HTTP: HTTPConfig{
			Listen: "0.0.0.0:3000",
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/cecpad.sock",
		},
		Daemon: DaemonConfig{
			EventQueue:   64,
			EffectsQueue: 16,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parseConfig(b)
}

func parseConfig(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file: defaults only.
			return cfg, nil
		}
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var extra yaml.Node
	if err := dec.Decode(&extra); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	} else if !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	return cfg, nil
}

// FlagOverrides are command-line values applied on top of the config file.
// A nil pointer means the flag was not given.
type FlagOverrides struct {
	CECBackend    *string
	CECClientPath *string
	CECAdapter    *string
	CECDeviceName *string

	UinputPath *string

	Slice        *string
	LimitPercent *int

	HTTPListen    *string
	IPCSocketPath *string

	LogLevel *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is ignored.
// If the pointer is non-nil, the value is applied (even if it is a “zero value”).
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.CECBackend != nil {
		cfg.CEC.Backend = *o.CECBackend
	}
	if o.CECClientPath != nil {
		cfg.CEC.ClientPath = *o.CECClientPath
	}
	if o.CECAdapter != nil {
		cfg.CEC.Adapter = *o.CECAdapter
	}
	if o.CECDeviceName != nil {
		cfg.CEC.DeviceName = *o.CECDeviceName
	}
	if o.UinputPath != nil {
		cfg.Device.UinputPath = *o.UinputPath
	}
	if o.Slice != nil {
		cfg.Power.Slice = *o.Slice
	}
	if o.LimitPercent != nil {
		cfg.Power.LimitPercent = *o.LimitPercent
	}
	if o.HTTPListen != nil {
		cfg.HTTP.Listen = *o.HTTPListen
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// CEC
	switch c.CEC.Backend {
	case BackendLibCEC:
	case BackendCECClient:
		if c.CEC.ClientPath == "" {
			return errors.New("cec.client_path must not be empty")
		}
		if c.CEC.LogMask&8 == 0 {
			return errors.New("cec.log_mask must include TRAFFIC (8)")
		}
	default:
		return fmt.Errorf("cec.backend must be %q or %q, got %q", BackendLibCEC, BackendCECClient, c.CEC.Backend)
	}

	// Device
	if c.Device.Name == "" || len(c.Device.Name) > 79 {
		return errors.New("device.name must be 1..79 bytes")
	}
	if c.Device.UinputPath == "" {
		return errors.New("device.uinput_path must not be empty")
	}

	// Keymap
	if _, err := c.BuildKeymap(); err != nil {
		return err
	}

	// Power
	if !strings.HasSuffix(c.Power.Slice, ".slice") {
		return fmt.Errorf("power.slice must name a systemd slice, got %q", c.Power.Slice)
	}
	if c.Power.LimitPercent <= 0 {
		return errors.New("power.limit_percent must be > 0")
	}
	if c.Power.SystemctlPath == "" {
		return errors.New("power.systemctl_path must not be empty")
	}
	if len(c.Power.ShutdownCommand) == 0 || c.Power.ShutdownCommand[0] == "" {
		return errors.New("power.shutdown_command must not be empty")
	}
	if c.Power.PlayHoldMS < 0 || c.Power.TapHoldMS < 0 {
		return errors.New("power.play_hold_ms and power.tap_hold_ms must be >= 0")
	}

	// Daemon
	if c.Daemon.EventQueue <= 0 || c.Daemon.EffectsQueue <= 0 {
		return errors.New("daemon.event_queue and daemon.effects_queue must be > 0")
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// ResolveDeviceName fills cec.device_name from the hostname when unset.
func (c *Config) ResolveDeviceName() error {
	if c.CEC.DeviceName != "" {
		return nil
	}
	host, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("cec.device_name unset and hostname unavailable: %w", err)
	}
	c.CEC.DeviceName = host
	return nil
}

// BuildKeymap returns the default keymap with keymap.overrides applied.
func (c *Config) BuildKeymap() (*Keymap, error) {
	return DefaultKeymap().WithOverrides(c.Keymap.Overrides)
}

// ToCoordinatorConfig converts the power section into reducer policy.
func (c *Config) ToCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		LimitPercent: c.Power.LimitPercent,
		PlayHold:     time.Duration(c.Power.PlayHoldMS) * time.Millisecond,
		TapHold:      time.Duration(c.Power.TapHoldMS) * time.Millisecond,
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
