package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrSessionClosed is returned by outbound calls after Close.
var ErrSessionClosed = errors.New("cec session closed")

// CECSession is the outbound side of a CEC connection. Inbound traffic is
// delivered through SessionHandlers.
type CECSession interface {
	PowerOn(addr LogicalAddress) error
	Standby(addr LogicalAddress) error
	Close() error
}

// cecBackend is a session the daemon runs for its whole lifetime. Wait
// returns nil after Close and an error if the bus connection is lost.
type cecBackend interface {
	CECSession
	Wait() error
}

// openCECSession starts the backend named by cfg.Backend.
func openCECSession(cfg CECConfig, h SessionHandlers, logger *slog.Logger) (cecBackend, error) {
	switch cfg.Backend {
	case BackendLibCEC:
		s, err := openLibCEC(cfg, h, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendCECClient:
		s, err := StartCECClient(cfg, h, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown cec backend %q", cfg.Backend)
	}
}

// SessionHandlers are invoked from the session's own goroutine. They must not
// block and must not touch the virtual pad.
type SessionHandlers struct {
	OnKeyPress func(KeyPress)
	OnCommand  func(BusCommand)
	OnLog      func(CECLogMessage)
}

// CECLogLevel mirrors the libcec log levels.
type CECLogLevel uint8

const (
	CECLogError CECLogLevel = iota + 1
	CECLogWarning
	CECLogNotice
	CECLogTraffic
	CECLogDebug
)

func (l CECLogLevel) String() string {
	switch l {
	case CECLogError:
		return "ERROR"
	case CECLogWarning:
		return "WARNING"
	case CECLogNotice:
		return "NOTICE"
	case CECLogTraffic:
		return "TRAFFIC"
	case CECLogDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// CECLogMessage is one diagnostic line from the CEC library.
type CECLogMessage struct {
	Level   CECLogLevel
	Time    time.Duration // since the library started
	Message string
}

// newSessionHandlers wires session callbacks to the daemon event queue.
func newSessionHandlers(sink eventSink, logger *slog.Logger) SessionHandlers {
	return SessionHandlers{
		OnKeyPress: func(kp KeyPress) {
			sink.Post(KeyPressed{Press: kp, At: time.Now()})
		},
		OnCommand: func(c BusCommand) {
			sink.Post(BusCommandReceived{Command: c, At: time.Now()})
		},
		OnLog: func(m CECLogMessage) {
			forwardCECLog(logger, m)
		},
	}
}

// forwardCECLog passes a library log line through at a matching slog level.
// Only warnings and errors are visible at the default level.
func forwardCECLog(logger *slog.Logger, m CECLogMessage) {
	attrs := []any{"cec_level", m.Level.String(), "cec_time_ms", m.Time.Milliseconds()}
	switch m.Level {
	case CECLogError:
		logger.Error("cec: "+m.Message, attrs...)
	case CECLogWarning:
		logger.Warn("cec: "+m.Message, attrs...)
	default:
		logger.Debug("cec: "+m.Message, attrs...)
	}
}
