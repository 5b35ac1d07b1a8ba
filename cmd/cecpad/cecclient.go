package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// cec-client backend
// ============================================================================
// libcec ships cec-client, a CLI that owns the adapter and prints bus traffic
// on stdout. We run it as a child process, decode the TRAFFIC lines into key
// presses and bus commands, and drive power-on/standby through its stdin.
//
// Line format (one per message):
//   TRAFFIC: [           28441]	>> 0f:36
//   DEBUG:   [           28442]	>> TV (0) -> Broadcast (F): standby (36)
//
// ">>" is received traffic, "<<" is ours. The first frame byte carries the
// initiator (high nibble) and destination (low nibble); the second is the opcode.
//
// This backend is the fallback for hosts without libcec development files.
// It mirrors what libcec does for key presses: a press of a new key releases
// the held one first, and a held key is released when no press or repeat has
// been seen for cecButtonTimeout.
// ============================================================================

const (
	// cecClientCloseTimeout bounds how long Close waits for cec-client to exit.
	cecClientCloseTimeout = 2 * time.Second
	// cecButtonTimeout matches libcec's CEC_BUTTON_TIMEOUT.
	cecButtonTimeout = 500 * time.Millisecond
)

var cecLogLine = regexp.MustCompile(`^([A-Z]+):\s*\[\s*(\d+)\]\s?(.*)$`)

// CECClientSession is a CECSession backed by a cec-client child process.
type CECClientSession struct {
	handlers SessionHandlers
	logger   *slog.Logger

	cmd *exec.Cmd // nil when constructed over plain pipes (tests)

	mu    sync.Mutex // serializes stdin writes
	stdin io.WriteCloser

	// dispatchMu orders deliveries from the read loop and the button timer.
	dispatchMu    sync.Mutex
	buttonTimeout time.Duration
	buttonTimer   *time.Timer

	closing atomic.Bool
	done    chan struct{}
	waitErr error
}

// cecClientArgs builds the cec-client argument list for cfg.
func cecClientArgs(cfg CECConfig) []string {
	args := []string{"-t", "r", "-d", strconv.Itoa(cfg.LogMask), "-o", cfg.DeviceName}
	if cfg.Adapter != "" {
		args = append(args, cfg.Adapter)
	}
	return args
}

// StartCECClient spawns cec-client and starts decoding its output.
func StartCECClient(cfg CECConfig, h SessionHandlers, logger *slog.Logger) (*CECClientSession, error) {
	cmd := exec.Command(cfg.ClientPath, cecClientArgs(cfg)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("cec-client stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("cec-client stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.ClientPath, err)
	}
	logger.Info("cec-client started", "pid", cmd.Process.Pid, "device_name", cfg.DeviceName, "adapter", cfg.Adapter)

	s := newCECClientSession(stdin, h, logger)
	s.cmd = cmd
	go s.readLoop(stdout, newCECClientParser(time.Now))

	if cfg.ActivateSource {
		if err := s.writeLine("as"); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("activate source: %w", err)
		}
	}
	return s, nil
}

func newCECClientSession(stdin io.WriteCloser, h SessionHandlers, logger *slog.Logger) *CECClientSession {
	return &CECClientSession{
		handlers:      h,
		logger:        logger,
		stdin:         stdin,
		buttonTimeout: cecButtonTimeout,
		done:          make(chan struct{}),
	}
}

// PowerOn sends <Image View On> to addr.
func (s *CECClientSession) PowerOn(addr LogicalAddress) error {
	return s.writeLine(fmt.Sprintf("on %d", addr))
}

// Standby sends <Standby> to addr.
func (s *CECClientSession) Standby(addr LogicalAddress) error {
	return s.writeLine(fmt.Sprintf("standby %d", addr))
}

func (s *CECClientSession) writeLine(line string) error {
	if s.closing.Load() {
		return ErrSessionClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.stdin, line+"\n"); err != nil {
		return fmt.Errorf("cec-client write %q: %w", line, err)
	}
	return nil
}

// Wait blocks until cec-client exits. It returns nil after Close and an error
// if the process went away on its own.
func (s *CECClientSession) Wait() error {
	<-s.done
	if s.closing.Load() {
		return nil
	}
	if s.waitErr != nil {
		return fmt.Errorf("cec-client exited: %w", s.waitErr)
	}
	return errors.New("cec-client exited")
}

// Close asks cec-client to quit, then kills it if it doesn't.
func (s *CECClientSession) Close() error {
	if s.closing.Swap(true) {
		return nil
	}

	s.mu.Lock()
	_, _ = io.WriteString(s.stdin, "q\n")
	_ = s.stdin.Close()
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-time.After(cecClientCloseTimeout):
	}

	if s.cmd != nil && s.cmd.Process != nil {
		s.logger.Warn("cec-client did not exit, killing")
		if err := s.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill cec-client: %w", err)
		}
		<-s.done
	}
	return nil
}

// readLoop decodes stdout until EOF, then reaps the process.
func (s *CECClientSession) readLoop(r io.Reader, p *cecClientParser) {
	defer close(s.done)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s.handleLine(p, sc.Text())
	}
	s.dispatchMu.Lock()
	if s.buttonTimer != nil {
		s.buttonTimer.Stop()
	}
	s.dispatchMu.Unlock()

	if err := sc.Err(); err != nil && !s.closing.Load() {
		s.logger.Error("cec-client read error", "error", err)
	}
	if s.cmd != nil {
		s.waitErr = s.cmd.Wait()
	}
}

func (s *CECClientSession) handleLine(p *cecClientParser, line string) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.dispatch(p.parseLine(line))

	if !p.held() {
		if s.buttonTimer != nil {
			s.buttonTimer.Stop()
		}
		return
	}
	if s.buttonTimer == nil {
		s.buttonTimer = time.AfterFunc(s.buttonTimeout, func() { s.expireButton(p) })
		return
	}
	s.buttonTimer.Reset(s.buttonTimeout)
}

// expireButton releases a key whose release frame never arrived.
func (s *CECClientSession) expireButton(p *cecClientParser) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	kp, ok := p.expire(s.buttonTimeout)
	if !ok {
		return
	}
	s.logger.Debug("cec key release timed out", "code", kp.Code, "held", kp.Duration)
	s.dispatch(cecLine{kind: lineKeyPress, presses: []KeyPress{kp}})
}

func (s *CECClientSession) dispatch(l cecLine) {
	switch l.kind {
	case lineKeyPress:
		if s.handlers.OnKeyPress != nil {
			for _, kp := range l.presses {
				s.handlers.OnKeyPress(kp)
			}
		}
	case lineCommand:
		if s.handlers.OnCommand != nil {
			s.handlers.OnCommand(l.command)
		}
	}
	// Every line, decoded or not, is also a log line.
	if s.handlers.OnLog != nil && l.log.Message != "" {
		s.handlers.OnLog(l.log)
	}
}

// ============================================================================
// Parser
// ============================================================================

type lineKind uint8

const (
	lineLog lineKind = iota
	lineKeyPress
	lineCommand
)

type cecLine struct {
	kind    lineKind
	presses []KeyPress // in delivery order
	command BusCommand
	log     CECLogMessage
}

// cecClientParser turns cec-client output lines into session notifications.
// It tracks the held key so releases carry a hold duration, and learns our
// logical address from the frames we send.
type cecClientParser struct {
	now func() time.Time

	pressed   bool
	lastCode  RemoteCode
	pressedAt time.Time
	lastSeen  time.Time

	selfKnown bool
	self      LogicalAddress
}

func newCECClientParser(now func() time.Time) *cecClientParser {
	return &cecClientParser{now: now}
}

func (p *cecClientParser) held() bool { return p.pressed }

func (p *cecClientParser) parseLine(line string) cecLine {
	line = strings.TrimRight(line, "\r\n")
	out := cecLine{kind: lineLog, log: CECLogMessage{Level: CECLogNotice, Message: strings.TrimSpace(line)}}

	m := cecLogLine.FindStringSubmatch(line)
	if m == nil {
		return out
	}
	out.log.Level = parseCECLogLevel(m[1])
	if ms, err := strconv.ParseInt(m[2], 10, 64); err == nil {
		out.log.Time = time.Duration(ms) * time.Millisecond
	}
	out.log.Message = strings.TrimSpace(m[3])

	if out.log.Level != CECLogTraffic {
		return out
	}
	if payload, ok := strings.CutPrefix(out.log.Message, "<<"); ok {
		p.learnSelf(strings.TrimSpace(payload))
		return out
	}
	payload, ok := strings.CutPrefix(out.log.Message, ">>")
	if !ok {
		return out
	}
	frame, err := parseFrame(strings.TrimSpace(payload))
	if err != nil || len(frame) < 2 {
		// Polls and malformed frames stay log-only.
		return out
	}

	cmd := BusCommand{
		Initiator:   LogicalAddress(frame[0] >> 4),
		Destination: LogicalAddress(frame[0] & 0x0f),
		Opcode:      Opcode(frame[1]),
		Parameters:  frame[2:],
	}

	switch cmd.Opcode {
	case OpUserControlPressed:
		if len(cmd.Parameters) == 0 || !p.addressedToUs(cmd.Destination) {
			return out
		}
		code := RemoteCode(cmd.Parameters[0])
		now := p.now()
		if p.pressed && code == p.lastCode {
			// Repeat of the held key.
			p.lastSeen = now
			return out
		}
		if p.pressed {
			out.presses = append(out.presses, p.release(now))
		}
		p.pressed = true
		p.lastCode = code
		p.pressedAt = now
		p.lastSeen = now
		out.kind = lineKeyPress
		out.presses = append(out.presses, KeyPress{Code: code})

	case OpUserControlReleased:
		if !p.pressed || !p.addressedToUs(cmd.Destination) {
			return out
		}
		out.kind = lineKeyPress
		out.presses = []KeyPress{p.release(p.now())}

	default:
		out.kind = lineCommand
		out.command = cmd
	}
	return out
}

// expire releases the held key if nothing was seen for it within timeout.
func (p *cecClientParser) expire(timeout time.Duration) (KeyPress, bool) {
	if !p.pressed {
		return KeyPress{}, false
	}
	now := p.now()
	if now.Sub(p.lastSeen) < timeout {
		return KeyPress{}, false
	}
	return p.release(now), true
}

// release ends the held key. The duration is at least 1ms so it always
// reads as a release.
func (p *cecClientParser) release(now time.Time) KeyPress {
	d := now.Sub(p.pressedAt)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	p.pressed = false
	return KeyPress{Code: p.lastCode, Duration: d}
}

func (p *cecClientParser) learnSelf(payload string) {
	frame, err := parseFrame(payload)
	if err != nil || len(frame) < 2 {
		return
	}
	if a := LogicalAddress(frame[0] >> 4); a != AddressBroadcast {
		p.self = a
		p.selfKnown = true
	}
}

// addressedToUs accepts frames for our address or broadcast. Until we have
// sent a frame our address is unknown and everything is accepted.
func (p *cecClientParser) addressedToUs(dest LogicalAddress) bool {
	return !p.selfKnown || dest == p.self || dest == AddressBroadcast
}

// parseFrame decodes "0f:36:01" into bytes.
func parseFrame(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("empty frame")
	}
	parts := strings.Split(s, ":")
	out := make([]byte, 0, len(parts))
	for _, part := range parts {
		b, err := strconv.ParseUint(strings.TrimSpace(part), 16, 8)
		if err != nil {
			return nil, fmt.Errorf("frame byte %q: %w", part, err)
		}
		out = append(out, byte(b))
	}
	return out, nil
}

func parseCECLogLevel(s string) CECLogLevel {
	switch s {
	case "ERROR":
		return CECLogError
	case "WARNING":
		return CECLogWarning
	case "NOTICE":
		return CECLogNotice
	case "TRAFFIC":
		return CECLogTraffic
	case "DEBUG":
		return CECLogDebug
	default:
		return CECLogNotice
	}
}
