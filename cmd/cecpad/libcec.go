package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// ============================================================================
// libcec backend
// ============================================================================
// libcec owns the adapter, answers polls and handles the button repeat and
// release timeouts itself. Key presses arrive with a duration in milliseconds
// (0 on press, the hold time on release), bus commands with their opcode and
// addresses, and library log lines as text.
// ============================================================================

// libcecConn is the outbound surface of a libcec connection.
type libcecConn interface {
	PowerOn(address int) error
	Standby(address int) error
	Destroy()
}

// LibCECSession is a CECSession backed by a libcec connection.
type LibCECSession struct {
	conn     libcecConn
	handlers SessionHandlers
	logger   *slog.Logger

	closing atomic.Bool
	done    chan struct{}
}

func newLibCECSession(conn libcecConn, h SessionHandlers, logger *slog.Logger) *LibCECSession {
	return &LibCECSession{
		conn:     conn,
		handlers: h,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// PowerOn sends <Image View On> to addr.
func (s *LibCECSession) PowerOn(addr LogicalAddress) error {
	if s.closing.Load() {
		return ErrSessionClosed
	}
	if err := s.conn.PowerOn(int(addr)); err != nil {
		return fmt.Errorf("libcec power on %s: %w", addr, err)
	}
	return nil
}

// Standby sends <Standby> to addr.
func (s *LibCECSession) Standby(addr LogicalAddress) error {
	if s.closing.Load() {
		return ErrSessionClosed
	}
	if err := s.conn.Standby(int(addr)); err != nil {
		return fmt.Errorf("libcec standby %s: %w", addr, err)
	}
	return nil
}

// Wait blocks until Close. libcec reconnects to the adapter on its own, so
// the session only ends when we end it.
func (s *LibCECSession) Wait() error {
	<-s.done
	return nil
}

// Close stops delivery and releases the adapter.
func (s *LibCECSession) Close() error {
	if s.closing.Swap(true) {
		return nil
	}
	close(s.done)
	s.conn.Destroy()
	return nil
}

func (s *LibCECSession) deliverKeyPress(code int, durationMS int) {
	if s.handlers.OnKeyPress == nil {
		return
	}
	s.handlers.OnKeyPress(KeyPress{
		Code:     RemoteCode(code),
		Duration: time.Duration(durationMS) * time.Millisecond,
	})
}

func (s *LibCECSession) deliverCommand(c BusCommand) {
	// User control frames already arrive as key presses.
	if c.Opcode == OpUserControlPressed || c.Opcode == OpUserControlReleased {
		return
	}
	if s.handlers.OnCommand != nil {
		s.handlers.OnCommand(c)
	}
}

func (s *LibCECSession) deliverMessage(msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" || s.handlers.OnLog == nil {
		return
	}
	s.handlers.OnLog(CECLogMessage{Level: libcecLogLevel(msg), Message: msg})
}

// libcecLogLevel reads a leading "LEVEL:" tag, if the line carries one.
func libcecLogLevel(msg string) CECLogLevel {
	head, _, ok := strings.Cut(msg, ":")
	if !ok {
		return CECLogNotice
	}
	switch head = strings.TrimSpace(head); head {
	case "ERROR", "WARNING", "NOTICE", "TRAFFIC", "DEBUG":
		return parseCECLogLevel(head)
	}
	return CECLogNotice
}
