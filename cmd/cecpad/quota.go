package main

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ============================================================================
// CPU quota + host power
// ============================================================================
// Both run short external commands synchronously. Commands are never tied to a
// context: once started they run to completion.
// ============================================================================

// commandRunner runs an external program to completion.
type commandRunner interface {
	Run(name string, args ...string) error
}

// execRunner runs commands with os/exec.
type execRunner struct{}

func (execRunner) Run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return nil
	}

	ce := &CommandError{Argv: append([]string{name}, args...), Output: strings.TrimSpace(out.String()), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		ce.ExitCode = exitErr.ExitCode()
	} else {
		ce.ExitCode = -1
	}
	return ce
}

// CommandError is returned when an external command can't be started or exits non-zero.
type CommandError struct {
	Argv     []string
	ExitCode int // -1 if the command never ran
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Argv, " "), e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// SliceQuota sets CPUQuota on a systemd slice with
// `systemctl set-property --runtime <slice> CPUQuota=<value>`.
type SliceQuota struct {
	runner    commandRunner
	systemctl string
	slice     string
}

// NewSliceQuota builds a quota controller for cfg.
func NewSliceQuota(cfg PowerConfig) *SliceQuota {
	return &SliceQuota{
		runner:    execRunner{},
		systemctl: cfg.SystemctlPath,
		slice:     cfg.Slice,
	}
}

// Limit caps the slice at percent of one CPU.
func (q *SliceQuota) Limit(percent int) error {
	if percent <= 0 {
		return fmt.Errorf("invalid CPU quota %d%%", percent)
	}
	return q.set(fmt.Sprintf("%d%%", percent))
}

// Unlimit removes the cap.
func (q *SliceQuota) Unlimit() error {
	return q.set("")
}

func (q *SliceQuota) set(value string) error {
	return q.runner.Run(q.systemctl, "set-property", "--runtime", q.slice, "CPUQuota="+value)
}

// HostPower shuts the host down by running a configured command.
type HostPower struct {
	runner commandRunner
	argv   []string
}

// NewHostPower builds a HostPower that runs argv (default "systemctl poweroff").
func NewHostPower(argv []string) *HostPower {
	return &HostPower{runner: execRunner{}, argv: argv}
}

// Shutdown runs the shutdown command once.
func (h *HostPower) Shutdown() error {
	if len(h.argv) == 0 {
		return errors.New("shutdown command is empty")
	}
	return h.runner.Run(h.argv[0], h.argv[1:]...)
}
