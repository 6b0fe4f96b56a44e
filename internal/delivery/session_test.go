package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wpprelay/internal/model"
	"github.com/matheus3301/wpprelay/internal/registry"
)

type fakeConn struct {
	frames chan Frame
	done   chan struct{}

	mu        sync.Mutex
	failAfter int // fail every Send once this many frames were sent; -1 never
	sent      int
	closed    []Reason
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan Frame, 100), done: make(chan struct{}), failAfter: -1}
}

func (c *fakeConn) Send(_ context.Context, f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAfter >= 0 && c.sent >= c.failAfter {
		return errors.New("broken pipe")
	}
	c.sent++
	c.frames <- f
	return nil
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) Close(r Reason) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, r)
	return nil
}

func (c *fakeConn) closeReasons() []Reason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Reason(nil), c.closed...)
}

func (c *fakeConn) next(t *testing.T) Frame {
	t.Helper()
	select {
	case f := <-c.frames:
		return f
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
	}
	return Frame{}
}

func start(t *testing.T, s *Session, ctx context.Context) <-chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	return errc
}

func wait(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	return nil
}

func TestSessionLifecycle(t *testing.T) {
	reg := registry.New(nil, nil)
	defer reg.Close()
	conn := newFakeConn()
	s := New("w1", conn, reg, Options{}, nil, nil)

	errc := start(t, s, context.Background())

	f := conn.next(t)
	if f.Status != "connected" || f.ConversationID != "w1" {
		t.Fatalf("first frame = %+v, want connected for w1", f)
	}
	// Subscribed before the acknowledgement.
	if reg.Count("w1") != 1 {
		t.Fatalf("registry count = %d after connected frame, want 1", reg.Count("w1"))
	}

	ev := model.ChangeEvent{ConversationID: "w1", Message: model.Message{ID: "m1", ConversationID: "w1", Body: "hi", Status: model.StatusReceived}}
	if n := reg.Broadcast("w1", ev); n != 1 {
		t.Fatalf("Broadcast() = %d, want 1", n)
	}
	f = conn.next(t)
	if f.Message == nil || f.Message.ID != "m1" || f.Message.Body != "hi" {
		t.Fatalf("frame = %+v, want message m1", f)
	}

	close(conn.done)
	if err := wait(t, errc); err != nil {
		t.Errorf("Run() error = %v, want nil on peer disconnect", err)
	}
	if reg.Count("w1") != 0 {
		t.Errorf("registry count = %d after disconnect, want 0", reg.Count("w1"))
	}
	if s.State() != Closed {
		t.Errorf("state = %s, want CLOSED", s.State())
	}
	if got := conn.closeReasons(); len(got) != 1 || got[0] != ReasonPeerGone {
		t.Errorf("close reasons = %v, want [%s]", got, ReasonPeerGone)
	}
}

func TestSessionKeepalive(t *testing.T) {
	reg := registry.New(nil, nil)
	defer reg.Close()
	conn := newFakeConn()
	s := New("w1", conn, reg, Options{Keepalive: 10 * time.Millisecond}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := start(t, s, ctx)
	conn.next(t)

	if f := conn.next(t); f.Ping != "pong" {
		t.Errorf("frame = %+v, want ping", f)
	}

	cancel()
	if err := wait(t, errc); err != nil {
		t.Errorf("Run() error = %v, want nil on shutdown", err)
	}
	if got := conn.closeReasons(); len(got) != 1 || got[0] != ReasonShutdown {
		t.Errorf("close reasons = %v, want [%s]", got, ReasonShutdown)
	}
}

func TestDeliverOverflow(t *testing.T) {
	reg := registry.New(nil, nil)
	defer reg.Close()
	s := New("w1", newFakeConn(), reg, Options{QueueSize: 1}, nil, nil)

	ev := model.ChangeEvent{ConversationID: "w1", Message: model.Message{ID: "m1"}}
	if err := s.Deliver(ev); err != nil {
		t.Fatalf("first Deliver() error = %v", err)
	}
	if err := s.Deliver(ev); !errors.Is(err, model.ErrSessionSend) {
		t.Errorf("Deliver() on full queue error = %v, want ErrSessionSend", err)
	}
	if err := s.Deliver(ev); !errors.Is(err, model.ErrSessionSend) {
		t.Errorf("Deliver() after overflow error = %v, want ErrSessionSend", err)
	}
}

func TestOverflowClosesRunningSession(t *testing.T) {
	reg := registry.New(nil, nil)
	defer reg.Close()
	conn := newFakeConn()
	s := New("w1", conn, reg, Options{QueueSize: 1}, nil, nil)

	// Fill the queue before Run drains it; the second Deliver overflows.
	ev := model.ChangeEvent{ConversationID: "w1", Message: model.Message{ID: "m1"}}
	_ = s.Deliver(ev)
	_ = s.Deliver(ev)

	err := wait(t, start(t, s, context.Background()))
	if !errors.Is(err, model.ErrSessionSend) {
		t.Errorf("Run() error = %v, want ErrSessionSend", err)
	}
	if reg.Count("w1") != 0 {
		t.Errorf("registry count = %d, want 0", reg.Count("w1"))
	}
	if s.State() != Closed {
		t.Errorf("state = %s, want CLOSED", s.State())
	}
}

func TestSendFailureClosesSession(t *testing.T) {
	reg := registry.New(nil, nil)
	defer reg.Close()
	conn := newFakeConn()
	conn.failAfter = 1
	s := New("w1", conn, reg, Options{}, nil, nil)

	errc := start(t, s, context.Background())
	conn.next(t)

	reg.Broadcast("w1", model.ChangeEvent{ConversationID: "w1", Message: model.Message{ID: "m1"}})

	err := wait(t, errc)
	if !errors.Is(err, model.ErrSessionSend) {
		t.Errorf("Run() error = %v, want ErrSessionSend", err)
	}
	if reg.Count("w1") != 0 {
		t.Errorf("registry count = %d after send failure, want 0", reg.Count("w1"))
	}
	if got := conn.closeReasons(); len(got) != 1 || got[0] != ReasonSendFailed {
		t.Errorf("close reasons = %v, want [%s]", got, ReasonSendFailed)
	}
}

func TestHandshakeFailure(t *testing.T) {
	reg := registry.New(nil, nil)
	defer reg.Close()
	conn := newFakeConn()
	conn.failAfter = 0
	s := New("w1", conn, reg, Options{}, nil, nil)

	if err := wait(t, start(t, s, context.Background())); err == nil {
		t.Error("Run() expected error when the connected frame cannot be sent")
	}
	if reg.Count("w1") != 0 {
		t.Errorf("registry count = %d, want 0", reg.Count("w1"))
	}
	if s.State() != Closed {
		t.Errorf("state = %s, want CLOSED", s.State())
	}
}

func TestSubscribeFailure(t *testing.T) {
	reg := registry.New(nil, nil)
	reg.Close()
	s := New("w1", newFakeConn(), reg, Options{}, nil, nil)

	err := s.Run(context.Background())
	if !errors.Is(err, registry.ErrClosed) {
		t.Errorf("Run() error = %v, want ErrClosed", err)
	}
	if s.State() != Closed {
		t.Errorf("state = %s, want CLOSED", s.State())
	}
}

func TestCloseStopsSession(t *testing.T) {
	reg := registry.New(nil, nil)
	defer reg.Close()
	conn := newFakeConn()
	s := New("w1", conn, reg, Options{}, nil, nil)

	errc := start(t, s, context.Background())
	conn.next(t)
	s.Close()

	if err := wait(t, errc); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
	if reg.Count("w1") != 0 {
		t.Errorf("registry count = %d, want 0", reg.Count("w1"))
	}
}
