// Package changefeed is the store's change-notification primitive: an
// in-process publish step that runs right after each committed write.
package changefeed

import (
	"sync"
	"sync/atomic"

	"github.com/matheus3301/wpprelay/internal/model"
)

// Op is the shape of a mutation.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
)

// Change is one committed mutation with the full resulting message state.
type Change struct {
	Op      Op
	Message model.Message
}

// Predicate selects the changes a subscriber wants.
type Predicate func(Change) bool

// ForConversation matches changes to a single conversation.
func ForConversation(conversationID string) Predicate {
	return func(c Change) bool {
		return c.Message.ConversationID == conversationID
	}
}

// Feed fans committed changes out to predicate-scoped subscribers.
type Feed struct {
	mu      sync.RWMutex
	subs    map[int]*subscription
	next    int
	dropped atomic.Int64
}

type subscription struct {
	match Predicate
	ch    chan Change
}

// New creates an empty feed.
func New() *Feed {
	return &Feed{
		subs: make(map[int]*subscription),
	}
}

// Publish hands c to every matching subscriber. It never blocks the writer:
// a subscriber whose buffer is full misses the change and the drop is counted.
func (f *Feed) Publish(c Change) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sub := range f.subs {
		if sub.match != nil && !sub.match(c) {
			continue
		}
		select {
		case sub.ch <- c:
		default:
			f.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber before returning, so every change
// published afterwards is seen. A nil predicate matches everything.
// The returned cancel func is idempotent and closes the channel.
func (f *Feed) Subscribe(match Predicate, bufSize int) (<-chan Change, func()) {
	ch := make(chan Change, bufSize)
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = &subscription{match: match, ch: ch}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Dropped returns how many deliveries were skipped because of full buffers.
func (f *Feed) Dropped() int64 {
	return f.dropped.Load()
}
