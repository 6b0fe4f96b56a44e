// Package registry maps conversation ids to the live sessions watching them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matheus3301/wpprelay/internal/model"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by Subscribe after Close.
	ErrClosed = errors.New("registry closed")
	// ErrDuplicate is returned when a subscriber id is already registered
	// for the conversation.
	ErrDuplicate = errors.New("subscriber already registered")
)

// Subscriber receives events for one conversation. Deliver must not block.
type Subscriber interface {
	ID() string
	Deliver(ev model.ChangeEvent) error
}

// Source produces the live event stream of a conversation.
type Source interface {
	Watch(ctx context.Context, conversationID string) <-chan model.ChangeEvent
}

// Handle identifies one subscription.
type Handle struct {
	ConversationID string
	SubscriberID   string
}

type topic struct {
	mu     sync.Mutex
	subs   map[string]Subscriber
	dead   bool
	cancel context.CancelFunc
}

// Registry owns every subscription. The topic map lock only guards lookup,
// creation and removal; membership and snapshots use the topic's own lock.
type Registry struct {
	mu     sync.RWMutex
	topics map[string]*topic
	closed bool

	source Source
	logger *zap.Logger
}

// New creates a registry. With a non-nil source, the first subscriber of a
// conversation starts a watch that is broadcast to the topic until the last
// subscriber leaves.
func New(source Source, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		topics: make(map[string]*topic),
		source: source,
		logger: logger.Named("registry"),
	}
}

// Subscribe adds sub to the conversation's set.
func (r *Registry) Subscribe(conversationID string, sub Subscriber) (Handle, error) {
	for {
		t, err := r.topicFor(conversationID)
		if err != nil {
			return Handle{}, err
		}

		t.mu.Lock()
		if t.dead {
			// Lost a race with the last unsubscribe; take a fresh topic.
			t.mu.Unlock()
			continue
		}
		if _, ok := t.subs[sub.ID()]; ok {
			t.mu.Unlock()
			return Handle{}, fmt.Errorf("%s on %s: %w", sub.ID(), conversationID, ErrDuplicate)
		}
		t.subs[sub.ID()] = sub
		n := len(t.subs)
		t.mu.Unlock()

		r.logger.Debug("subscriber added",
			zap.String("conversation_id", conversationID),
			zap.String("subscriber_id", sub.ID()),
			zap.Int("subscribers", n))
		return Handle{ConversationID: conversationID, SubscriberID: sub.ID()}, nil
	}
}

func (r *Registry) topicFor(conversationID string) (*topic, error) {
	r.mu.RLock()
	t, ok := r.topics[conversationID]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if ok {
		return t, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if t, ok := r.topics[conversationID]; ok {
		return t, nil
	}
	t = &topic{subs: make(map[string]Subscriber)}
	if r.source != nil {
		ctx, cancel := context.WithCancel(context.Background())
		t.cancel = cancel
		events := r.source.Watch(ctx, conversationID)
		go r.pump(conversationID, t, events)
	}
	r.topics[conversationID] = t
	return t, nil
}

func (r *Registry) pump(conversationID string, t *topic, events <-chan model.ChangeEvent) {
	for ev := range events {
		r.deliver(conversationID, t, ev)
	}
	r.logger.Debug("watch ended", zap.String("conversation_id", conversationID))
}

// Unsubscribe removes the subscription. Unknown handles are ignored, so it is
// safe to call more than once.
func (r *Registry) Unsubscribe(h Handle) {
	r.mu.RLock()
	t, ok := r.topics[h.ConversationID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	t.mu.Lock()
	if _, ok := t.subs[h.SubscriberID]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.subs, h.SubscriberID)
	empty := len(t.subs) == 0
	if empty {
		t.dead = true
		if t.cancel != nil {
			t.cancel()
		}
	}
	t.mu.Unlock()

	r.logger.Debug("subscriber removed",
		zap.String("conversation_id", h.ConversationID),
		zap.String("subscriber_id", h.SubscriberID))

	if empty {
		r.mu.Lock()
		if r.topics[h.ConversationID] == t {
			delete(r.topics, h.ConversationID)
		}
		r.mu.Unlock()
	}
}

// Broadcast delivers ev to every session subscribed to the conversation and
// returns how many accepted it. Failing sessions are logged and skipped.
func (r *Registry) Broadcast(conversationID string, ev model.ChangeEvent) int {
	r.mu.RLock()
	t, ok := r.topics[conversationID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	return r.deliver(conversationID, t, ev)
}

func (r *Registry) deliver(conversationID string, t *topic, ev model.ChangeEvent) int {
	t.mu.Lock()
	targets := make([]Subscriber, 0, len(t.subs))
	for _, s := range t.subs {
		targets = append(targets, s)
	}
	t.mu.Unlock()

	delivered := 0
	for _, s := range targets {
		if err := s.Deliver(ev); err != nil {
			r.logger.Warn("delivery failed",
				zap.String("conversation_id", conversationID),
				zap.String("subscriber_id", s.ID()),
				zap.String("msg_id", ev.Message.ID),
				zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

// Count returns the number of sessions subscribed to the conversation.
func (r *Registry) Count(conversationID string) int {
	r.mu.RLock()
	t, ok := r.topics[conversationID]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Topics returns the number of conversations with at least one subscriber.
func (r *Registry) Topics() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}

// Close drops every topic and stops their watches. Later subscribes fail with
// ErrClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id, t := range r.topics {
		t.mu.Lock()
		t.dead = true
		clear(t.subs)
		if t.cancel != nil {
			t.cancel()
		}
		t.mu.Unlock()
		delete(r.topics, id)
	}
	r.logger.Debug("registry closed")
}
