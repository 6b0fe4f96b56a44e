// Package delivery runs one real-time connection: handshake, keepalive,
// event push and cleanup.
package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wpprelay/internal/bus"
	"github.com/matheus3301/wpprelay/internal/model"
	"github.com/matheus3301/wpprelay/internal/registry"
	"go.uber.org/zap"
)

// Conn is the transport of one session.
type Conn interface {
	Send(ctx context.Context, f Frame) error
	// Done is closed when the peer goes away.
	Done() <-chan struct{}
	Close(reason Reason) error
}

// Registrar is the part of the registry a session uses.
type Registrar interface {
	Subscribe(conversationID string, sub registry.Subscriber) (registry.Handle, error)
	Unsubscribe(h registry.Handle)
}

// Options tunes a session.
type Options struct {
	Keepalive    time.Duration
	QueueSize    int
	WriteTimeout time.Duration
}

// DefaultOptions returns the stock session settings.
func DefaultOptions() Options {
	return Options{
		Keepalive:    25 * time.Second,
		QueueSize:    64,
		WriteTimeout: 10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Keepalive <= 0 {
		o.Keepalive = d.Keepalive
	}
	if o.QueueSize <= 0 {
		o.QueueSize = d.QueueSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	return o
}

// Session pushes the events of one conversation to one connection.
type Session struct {
	id             string
	conversationID string
	conn           Conn
	reg            Registrar
	opts           Options
	machine        *Machine
	logger         *zap.Logger

	queue     chan model.ChangeEvent
	closing   chan struct{}
	closeOnce sync.Once
	reason    Reason
}

// New creates a session in the Connecting state. Call Run to start it.
func New(conversationID string, conn Conn, reg Registrar, opts Options, b *bus.Bus, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	id := uuid.NewString()
	return &Session{
		id:             id,
		conversationID: conversationID,
		conn:           conn,
		reg:            reg,
		opts:           opts,
		machine:        NewMachine(id, b),
		logger: logger.Named("session").With(
			zap.String("session_id", id),
			zap.String("conversation_id", conversationID)),
		queue:   make(chan model.ChangeEvent, opts.QueueSize),
		closing: make(chan struct{}),
	}
}

// ID implements registry.Subscriber.
func (s *Session) ID() string { return s.id }

// State returns the lifecycle state.
func (s *Session) State() State { return s.machine.Current() }

// Deliver queues ev without blocking. A full queue closes the session and
// returns model.ErrSessionSend.
func (s *Session) Deliver(ev model.ChangeEvent) error {
	select {
	case <-s.closing:
		return fmt.Errorf("session %s closing: %w", s.id, model.ErrSessionSend)
	default:
	}
	select {
	case s.queue <- ev:
		return nil
	default:
		s.shutdown(ReasonOverflow)
		return fmt.Errorf("session %s: queue full: %w", s.id, model.ErrSessionSend)
	}
}

// Close asks a running session to stop.
func (s *Session) Close() {
	s.shutdown(ReasonShutdown)
}

func (s *Session) shutdown(r Reason) {
	s.closeOnce.Do(func() {
		s.reason = r
		close(s.closing)
	})
}

// Run subscribes, acknowledges and pushes events until the peer leaves, ctx
// is done, a send fails or the queue overflows. The registry entry is always
// removed before Run returns.
func (s *Session) Run(ctx context.Context) error {
	h, err := s.reg.Subscribe(s.conversationID, s)
	if err != nil {
		s.finish(ReasonHandshake, nil)
		return fmt.Errorf("subscribe: %w", err)
	}

	reason := ReasonHandshake
	defer func() { s.finish(reason, &h) }()

	if err := s.send(ctx, ConnectedFrame(s.conversationID)); err != nil {
		return fmt.Errorf("send connected: %w", err)
	}
	if err := s.machine.Transition(Active); err != nil {
		return err
	}
	s.logger.Info("session active")

	reason, err = s.loop(ctx)
	return err
}

func (s *Session) loop(ctx context.Context) (Reason, error) {
	ticker := time.NewTicker(s.opts.Keepalive)
	defer ticker.Stop()

	for {
		select {
		case ev := <-s.queue:
			if err := s.send(ctx, MessageFrame(ev.Message)); err != nil {
				return ReasonSendFailed, fmt.Errorf("send message %s: %w: %w", ev.Message.ID, model.ErrSessionSend, err)
			}
		case <-ticker.C:
			if err := s.send(ctx, PingFrame()); err != nil {
				return ReasonSendFailed, fmt.Errorf("send ping: %w: %w", model.ErrSessionSend, err)
			}
		case <-s.conn.Done():
			return ReasonPeerGone, nil
		case <-ctx.Done():
			return ReasonShutdown, nil
		case <-s.closing:
			if s.reason == ReasonOverflow {
				return s.reason, fmt.Errorf("session %s: %w", s.reason, model.ErrSessionSend)
			}
			return s.reason, nil
		}
	}
}

func (s *Session) send(ctx context.Context, f Frame) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()
	return s.conn.Send(ctx, f)
}

// finish walks the machine through Closing to Closed, dropping the registry
// entry and closing the transport on the way.
func (s *Session) finish(reason Reason, h *registry.Handle) {
	s.shutdown(reason)
	if err := s.machine.Transition(Closing); err != nil {
		s.logger.Warn("state transition failed", zap.Error(err))
	}
	if h != nil {
		s.reg.Unsubscribe(*h)
	}
	if err := s.conn.Close(reason); err != nil {
		s.logger.Debug("close transport", zap.Error(err))
	}
	if err := s.machine.Transition(Closed); err != nil {
		s.logger.Warn("state transition failed", zap.Error(err))
	}
	s.logger.Info("session closed", zap.String("reason", string(reason)))
}
