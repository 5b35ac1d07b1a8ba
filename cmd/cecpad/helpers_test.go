package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"cecpad/internal/uinput"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}

// fakeEmitter records every event written to it.
type fakeEmitter struct {
	mu     sync.Mutex
	events []uinput.Event
	err    error // returned by every Emit when set
	closed bool
}

func (f *fakeEmitter) Emit(events ...uinput.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeEmitter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeEmitter) recorded() []uinput.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uinput.Event, len(f.events))
	copy(out, f.events)
	return out
}

// fakePad is an inputPad that records operations as strings.
type fakePad struct {
	mu  sync.Mutex
	ops []string
	err error
}

func (p *fakePad) record(op string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.ops = append(p.ops, op)
	return nil
}

func (p *fakePad) Press(b Button) error   { return p.record("press " + b.String()) }
func (p *fakePad) Release(b Button) error { return p.record("release " + b.String()) }
func (p *fakePad) Axis(a Axis, pos int32) error {
	return p.record(fmt.Sprintf("%s=%d", a, pos))
}
func (p *fakePad) PressAndRelease(b Button, hold time.Duration) error {
	return p.record("tap " + b.String() + " " + hold.String())
}

func (p *fakePad) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.ops))
	copy(out, p.ops)
	return out
}

// fakeQuota records quota calls.
type fakeQuota struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (q *fakeQuota) Limit(percent int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, fmt.Sprintf("limit %d", percent))
	return q.err
}

func (q *fakeQuota) Unlimit() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, "unlimit")
	return q.err
}

func (q *fakeQuota) recorded() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.calls))
	copy(out, q.calls)
	return out
}

// fakeSession is a CECSession that counts outbound requests.
type fakeSession struct {
	mu       sync.Mutex
	powerOn  []LogicalAddress
	standby  []LogicalAddress
	err      error
	closed   bool
	closeErr error
}

func (s *fakeSession) PowerOn(addr LogicalAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.powerOn = append(s.powerOn, addr)
	return s.err
}

func (s *fakeSession) Standby(addr LogicalAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.standby = append(s.standby, addr)
	return s.err
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

func (s *fakeSession) counts() (on, standby int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.powerOn), len(s.standby)
}

// fakePower counts shutdowns.
type fakePower struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *fakePower) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

func (p *fakePower) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeRunner records argv of every command.
type fakeRunner struct {
	mu   sync.Mutex
	argv [][]string
	err  error
}

func (r *fakeRunner) Run(name string, args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.argv = append(r.argv, append([]string{name}, args...))
	return r.err
}

var errFake = errors.New("fake failure")
