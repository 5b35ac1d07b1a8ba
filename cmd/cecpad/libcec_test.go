package main

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

// fakeConn records outbound libcec calls.
type fakeConn struct {
	mu        sync.Mutex
	powerOn   []int
	standby   []int
	destroyed int
	err       error
}

func (c *fakeConn) PowerOn(address int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.powerOn = append(c.powerOn, address)
	return c.err
}

func (c *fakeConn) Standby(address int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.standby = append(c.standby, address)
	return c.err
}

func (c *fakeConn) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyed++
}

func TestLibCECSession_Outbound(t *testing.T) {
	conn := &fakeConn{}
	s := newLibCECSession(conn, SessionHandlers{}, discardLogger())

	if err := s.PowerOn(AddressTV); err != nil {
		t.Fatalf("PowerOn: %v", err)
	}
	if err := s.Standby(AddressTV); err != nil {
		t.Fatalf("Standby: %v", err)
	}
	if !reflect.DeepEqual(conn.powerOn, []int{0}) || !reflect.DeepEqual(conn.standby, []int{0}) {
		t.Fatalf("powerOn=%v standby=%v, want the TV address once each", conn.powerOn, conn.standby)
	}

	conn.err = errFake
	if err := s.PowerOn(AddressTV); !errors.Is(err, errFake) {
		t.Fatalf("expected wrapped connection error, got %v", err)
	}
}

func TestLibCECSession_CloseDestroysOnce(t *testing.T) {
	conn := &fakeConn{}
	s := newLibCECSession(conn, SessionHandlers{}, discardLogger())

	waited := make(chan error, 1)
	go func() { waited <- s.Wait() }()

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case err := <-waited:
		if err != nil {
			t.Fatalf("Wait after Close: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Wait did not return after Close")
	}

	if conn.destroyed != 1 {
		t.Fatalf("Destroy calls = %d, want 1", conn.destroyed)
	}
	if err := s.Standby(AddressTV); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Standby after Close = %v, want ErrSessionClosed", err)
	}
	if len(conn.standby) != 0 {
		t.Fatalf("standby reached the connection after Close")
	}
}

func TestLibCECSession_Delivery(t *testing.T) {
	var (
		presses  []KeyPress
		commands []BusCommand
		logs     []CECLogMessage
	)
	s := newLibCECSession(&fakeConn{}, SessionHandlers{
		OnKeyPress: func(kp KeyPress) { presses = append(presses, kp) },
		OnCommand:  func(c BusCommand) { commands = append(commands, c) },
		OnLog:      func(m CECLogMessage) { logs = append(logs, m) },
	}, discardLogger())

	s.deliverKeyPress(int(RemoteUp), 0)
	s.deliverKeyPress(int(RemoteUp), 200)

	wantPresses := []KeyPress{{Code: RemoteUp}, {Code: RemoteUp, Duration: 200 * time.Millisecond}}
	if !reflect.DeepEqual(presses, wantPresses) {
		t.Fatalf("presses = %+v, want %+v", presses, wantPresses)
	}

	s.deliverCommand(BusCommand{Opcode: OpUserControlPressed, Initiator: AddressTV, Destination: 1})
	s.deliverCommand(BusCommand{Opcode: OpUserControlReleased, Initiator: AddressTV, Destination: 1})
	s.deliverCommand(BusCommand{Opcode: OpStandby, Initiator: AddressTV, Destination: AddressBroadcast})
	if len(commands) != 1 || commands[0].Opcode != OpStandby {
		t.Fatalf("commands = %+v, want only Standby", commands)
	}

	s.deliverMessage("WARNING: unexpected physical address\n")
	s.deliverMessage("   ")
	s.deliverMessage("adapter opened")
	if len(logs) != 2 {
		t.Fatalf("logs = %+v, want 2", logs)
	}
	if logs[0].Level != CECLogWarning || logs[0].Message != "WARNING: unexpected physical address" {
		t.Fatalf("unexpected first log %+v", logs[0])
	}
	if logs[1].Level != CECLogNotice {
		t.Fatalf("untagged line level = %s, want NOTICE", logs[1].Level)
	}
}

func TestLibCECLogLevel(t *testing.T) {
	tests := map[string]CECLogLevel{
		"ERROR: failed to open":   CECLogError,
		"TRAFFIC: >> 0f:36":       CECLogTraffic,
		"DEBUG: polling":          CECLogDebug,
		"key pressed: select (0)": CECLogNotice,
		"plain text":              CECLogNotice,
	}
	for in, want := range tests {
		if got := libcecLogLevel(in); got != want {
			t.Errorf("libcecLogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestOpenCECSession_UnknownBackend(t *testing.T) {
	cfg := DefaultConfig().CEC
	cfg.Backend = "serial"
	if _, err := openCECSession(cfg, SessionHandlers{}, discardLogger()); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
