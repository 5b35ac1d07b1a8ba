package main

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"sync"
	"testing"
	"time"
)

// fakeClock advances only when told to.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestCECClientParser_Standby(t *testing.T) {
	p := newCECClientParser(time.Now)

	l := p.parseLine("TRAFFIC: [          123456]\t>> 0f:36")
	if l.kind != lineCommand {
		t.Fatalf("kind = %d, want command", l.kind)
	}
	want := BusCommand{Opcode: OpStandby, Initiator: AddressTV, Destination: AddressBroadcast, Parameters: []byte{}}
	if !reflect.DeepEqual(l.command, want) {
		t.Fatalf("command = %+v, want %+v", l.command, want)
	}
	if l.log.Level != CECLogTraffic || l.log.Time != 123456*time.Millisecond {
		t.Fatalf("unexpected log metadata: %+v", l.log)
	}
}

func TestCECClientParser_PressAndRelease(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	p := newCECClientParser(clk.now)

	l := p.parseLine("TRAFFIC: [   10]\t>> 04:44:01")
	if l.kind != lineKeyPress {
		t.Fatalf("kind = %d, want keypress", l.kind)
	}
	if want := []KeyPress{{Code: RemoteUp}}; !reflect.DeepEqual(l.presses, want) {
		t.Fatalf("presses = %+v, want %+v", l.presses, want)
	}

	clk.advance(120 * time.Millisecond)
	l = p.parseLine("TRAFFIC: [  130]\t>> 04:45")
	if l.kind != lineKeyPress {
		t.Fatalf("kind = %d, want keypress", l.kind)
	}
	if want := []KeyPress{{Code: RemoteUp, Duration: 120 * time.Millisecond}}; !reflect.DeepEqual(l.presses, want) {
		t.Fatalf("presses = %+v, want %+v", l.presses, want)
	}
}

func TestCECClientParser_ReleaseDurationIsPositive(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	p := newCECClientParser(clk.now)

	p.parseLine("TRAFFIC: [1]\t>> 04:44:00")
	l := p.parseLine("TRAFFIC: [1]\t>> 04:45")
	if len(l.presses) != 1 || !l.presses[0].IsRelease() || l.presses[0].Duration < time.Millisecond {
		t.Fatalf("presses = %+v, want one release of at least 1ms", l.presses)
	}
}

func TestCECClientParser_NewKeyReleasesHeldKey(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	p := newCECClientParser(clk.now)
	state := NewDaemonState(clk.now())

	var cmds []Command
	feed := func(line string) {
		for _, kp := range p.parseLine(line).presses {
			cmds = append(cmds, reduce(t, state, KeyPressed{Press: kp, At: clk.now()}).Commands...)
		}
	}

	feed("TRAFFIC: [1]\t>> 04:44:00") // Select
	clk.advance(50 * time.Millisecond)
	feed("TRAFFIC: [2]\t>> 04:44:0d") // Exit, no release frame for Select
	clk.advance(50 * time.Millisecond)
	feed("TRAFFIC: [3]\t>> 04:45")

	want := []Command{
		CmdButton{Button: BtnSouth, Down: true},
		CmdButton{Button: BtnSouth, Down: false},
		CmdButton{Button: BtnEast, Down: true},
		CmdButton{Button: BtnEast, Down: false},
	}
	if !reflect.DeepEqual(cmds, want) {
		t.Fatalf("commands = %v, want %v", cmds, want)
	}
	if len(state.Held) != 0 {
		t.Fatalf("buttons still held: %v", state.Held)
	}
}

func TestCECClientParser_RepeatDoesNotPressAgain(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	p := newCECClientParser(clk.now)

	p.parseLine("TRAFFIC: [1]\t>> 04:44:01")
	clk.advance(400 * time.Millisecond)
	if l := p.parseLine("TRAFFIC: [2]\t>> 04:44:01"); l.kind != lineLog || len(l.presses) != 0 {
		t.Fatalf("repeat produced %+v", l.presses)
	}

	// The repeat refreshed the hold, so the key has not timed out yet.
	clk.advance(400 * time.Millisecond)
	if _, ok := p.expire(cecButtonTimeout); ok {
		t.Fatalf("key expired despite a recent repeat")
	}

	l := p.parseLine("TRAFFIC: [3]\t>> 04:45")
	if len(l.presses) != 1 || l.presses[0].Duration != 800*time.Millisecond {
		t.Fatalf("release = %+v, want Up after 800ms", l.presses)
	}
}

func TestCECClientParser_ExpireReleasesHeldKey(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	p := newCECClientParser(clk.now)

	if _, ok := p.expire(cecButtonTimeout); ok {
		t.Fatalf("expire with nothing held")
	}

	p.parseLine("TRAFFIC: [1]\t>> 04:44:00")
	clk.advance(cecButtonTimeout - time.Millisecond)
	if _, ok := p.expire(cecButtonTimeout); ok {
		t.Fatalf("expired before the timeout")
	}

	clk.advance(10 * time.Second)
	kp, ok := p.expire(cecButtonTimeout)
	if !ok || kp.Code != RemoteSelect || !kp.IsRelease() {
		t.Fatalf("expire = %+v, %v; want Select release", kp, ok)
	}

	// A late release frame must not release twice.
	if l := p.parseLine("TRAFFIC: [2]\t>> 04:45"); len(l.presses) != 0 {
		t.Fatalf("late release produced %+v", l.presses)
	}
}

func TestCECClientParser_IgnoresKeysForOtherDevices(t *testing.T) {
	p := newCECClientParser(time.Now)

	// Our own transmission tells the parser we are logical address 1.
	p.parseLine("TRAFFIC: [1]\t<< 10:47:68:74:70:63")

	for _, line := range []string{
		"TRAFFIC: [2]\t>> 04:44:00", // to playback device 4
		"TRAFFIC: [3]\t>> 04:45",
	} {
		if l := p.parseLine(line); l.kind != lineLog {
			t.Errorf("%q: kind = %d, want log", line, l.kind)
		}
	}

	if l := p.parseLine("TRAFFIC: [4]\t>> 01:44:00"); l.kind != lineKeyPress {
		t.Fatalf("key for our address dropped")
	}
	if l := p.parseLine("TRAFFIC: [5]\t>> 01:45"); l.kind != lineKeyPress {
		t.Fatalf("release for our address dropped")
	}
	if l := p.parseLine("TRAFFIC: [6]\t>> 0f:44:01"); l.kind != lineKeyPress {
		t.Fatalf("broadcast key dropped")
	}
}

func TestCECClientParser_LogOnlyLines(t *testing.T) {
	p := newCECClientParser(time.Now)

	for _, line := range []string{
		"NOTICE: [  50]\tCEC client registered",
		"TRAFFIC: [  60]\t<< 10:47:43:45:43",
		"TRAFFIC: [  70]\t>> 0f",
		"TRAFFIC: [  80]\t>> 04:45", // release without a press
		"TRAFFIC: [  90]\t>> 04:44", // press without a key code
		"TRAFFIC: [ 100]\t>> zz:36",
		"waiting for input",
	} {
		if l := p.parseLine(line); l.kind != lineLog {
			t.Errorf("%q: kind = %d, want log", line, l.kind)
		}
	}

	l := p.parseLine("WARNING: [  55]\tsomething odd")
	if l.log.Level != CECLogWarning || l.log.Message != "something odd" {
		t.Fatalf("unexpected log: %+v", l.log)
	}
}

func TestCECClientArgs(t *testing.T) {
	cfg := DefaultConfig().CEC
	cfg.DeviceName = "htpc"
	got := cecClientArgs(cfg)
	want := []string{"-t", "r", "-d", "15", "-o", "htpc"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args = %v, want %v", got, want)
	}

	cfg.Adapter = "/dev/ttyACM0"
	if got := cecClientArgs(cfg); got[len(got)-1] != "/dev/ttyACM0" {
		t.Fatalf("adapter not appended: %v", got)
	}
}

// lockedBuffer is an io.WriteCloser safe for concurrent use.
type lockedBuffer struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	return b.buf.Write(p)
}

func (b *lockedBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestCECClientSession_OutboundCommands(t *testing.T) {
	stdin := &lockedBuffer{}
	s := newCECClientSession(stdin, SessionHandlers{}, discardLogger())

	if err := s.PowerOn(AddressTV); err != nil {
		t.Fatalf("PowerOn: %v", err)
	}
	if err := s.Standby(AddressTV); err != nil {
		t.Fatalf("Standby: %v", err)
	}
	if got := stdin.String(); got != "on 0\nstandby 0\n" {
		t.Fatalf("stdin = %q", got)
	}
}

func TestCECClientSession_DeliversNotifications(t *testing.T) {
	var (
		mu       sync.Mutex
		presses  []KeyPress
		commands []BusCommand
		logs     int
	)
	h := SessionHandlers{
		OnKeyPress: func(kp KeyPress) { mu.Lock(); presses = append(presses, kp); mu.Unlock() },
		OnCommand:  func(c BusCommand) { mu.Lock(); commands = append(commands, c); mu.Unlock() },
		OnLog:      func(CECLogMessage) { mu.Lock(); logs++; mu.Unlock() },
	}

	stdin := &lockedBuffer{}
	s := newCECClientSession(stdin, h, discardLogger())

	r, w := io.Pipe()
	go s.readLoop(r, newCECClientParser(time.Now))

	_, _ = io.WriteString(w, "NOTICE: [1]\topened\nTRAFFIC: [2]\t>> 04:44:00\nTRAFFIC: [3]\t>> 04:45\nTRAFFIC: [4]\t>> 0f:85\n")
	_ = w.Close()

	// The process ending on its own is an error.
	if err := s.Wait(); err == nil {
		t.Fatalf("expected error from Wait after unexpected exit")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(presses) != 2 || presses[0].Code != RemoteSelect || !presses[1].IsRelease() {
		t.Fatalf("presses = %+v", presses)
	}
	if len(commands) != 1 || commands[0].Opcode != OpRequestActiveSource || commands[0].Initiator != AddressTV {
		t.Fatalf("commands = %+v", commands)
	}
	if logs != 4 {
		t.Fatalf("logs = %d, want 4", logs)
	}
}

func TestCECClientSession_ReleasesKeyAfterTimeout(t *testing.T) {
	var (
		mu      sync.Mutex
		presses []KeyPress
	)
	h := SessionHandlers{
		OnKeyPress: func(kp KeyPress) { mu.Lock(); presses = append(presses, kp); mu.Unlock() },
	}

	s := newCECClientSession(&lockedBuffer{}, h, discardLogger())
	s.buttonTimeout = 20 * time.Millisecond

	r, w := io.Pipe()
	defer w.Close()
	go s.readLoop(r, newCECClientParser(time.Now))

	// A press whose release frame is lost.
	_, _ = io.WriteString(w, "TRAFFIC: [1]\t>> 04:44:00\n")

	waitUntil(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(presses) == 2
	}, "held key was not released after the button timeout")

	mu.Lock()
	defer mu.Unlock()
	if presses[0].IsRelease() || !presses[1].IsRelease() || presses[1].Code != RemoteSelect {
		t.Fatalf("presses = %+v", presses)
	}
}

func TestCECClientSession_CloseStopsWrites(t *testing.T) {
	stdin := &lockedBuffer{}
	s := newCECClientSession(stdin, SessionHandlers{}, discardLogger())

	r, w := io.Pipe()
	go s.readLoop(r, newCECClientParser(time.Now))
	go func() {
		// cec-client exits after reading "q".
		time.Sleep(20 * time.Millisecond)
		_ = w.Close()
	}()

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait after Close: %v", err)
	}
	if got := stdin.String(); got != "q\n" {
		t.Fatalf("stdin = %q, want quit command", got)
	}
	if err := s.PowerOn(AddressTV); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("PowerOn after Close = %v, want ErrSessionClosed", err)
	}
}
