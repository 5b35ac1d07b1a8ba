//go:build cgo && !nolibcec

package main

import (
	"fmt"
	"log/slog"

	"github.com/claes/cec"
)

// openLibCEC opens the adapter (empty autodetects) and starts delivering
// notifications to h.
func openLibCEC(cfg CECConfig, h SessionHandlers, logger *slog.Logger) (*LibCECSession, error) {
	conn, err := cec.Open(cfg.Adapter, cfg.DeviceName)
	if err != nil {
		return nil, fmt.Errorf("open libcec adapter %q: %w", cfg.Adapter, err)
	}
	logger.Info("libcec connection opened", "device_name", cfg.DeviceName, "adapter", cfg.Adapter)

	s := newLibCECSession(conn, h, logger)
	go s.pump(conn)
	return s, nil
}

// pump forwards the connection's channels until Close.
func (s *LibCECSession) pump(conn *cec.Connection) {
	for {
		select {
		case <-s.done:
			return
		case kp := <-conn.KeyPresses:
			s.deliverKeyPress(int(kp.KeyCode), int(kp.Duration))
		case c := <-conn.Commands:
			s.deliverCommand(BusCommand{
				Opcode:      Opcode(c.Opcode),
				Initiator:   LogicalAddress(c.Initiator),
				Destination: LogicalAddress(c.Destination),
			})
		case msg := <-conn.Messages:
			s.deliverMessage(msg)
		}
	}
}
