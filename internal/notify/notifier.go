// Package notify turns store changes into per-conversation event streams.
package notify

import (
	"context"

	"github.com/matheus3301/wpprelay/internal/changefeed"
	"github.com/matheus3301/wpprelay/internal/model"
	"go.uber.org/zap"
)

const (
	// feedBuffer is the change-feed buffer of one watch. The watch goroutine
	// drains it into its own pending list, so it rarely fills.
	feedBuffer = 256
	// maxPending caps the undelivered events held for a slow consumer.
	maxPending = 1024
)

// Notifier observes the change feed independently of any request lifecycle.
type Notifier struct {
	feed   *changefeed.Feed
	logger *zap.Logger
}

// New creates a notifier over feed.
func New(feed *changefeed.Feed, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{feed: feed, logger: logger.Named("notify")}
}

// Watch returns a live stream of changes to one conversation, starting now.
// The feed subscription is in place when Watch returns. Each event carries the
// full message state. Pending changes to the same message that sit next to
// each other are coalesced into the latest one. The channel is closed once
// ctx is done.
func (n *Notifier) Watch(ctx context.Context, conversationID string) <-chan model.ChangeEvent {
	changes, cancel := n.feed.Subscribe(changefeed.ForConversation(conversationID), feedBuffer)
	out := make(chan model.ChangeEvent)

	go func() {
		defer close(out)
		defer cancel()

		var pending []model.ChangeEvent
		for {
			var send chan model.ChangeEvent
			var next model.ChangeEvent
			if len(pending) > 0 {
				send = out
				next = pending[0]
			}

			select {
			case <-ctx.Done():
				return
			case c, ok := <-changes:
				if !ok {
					return
				}
				pending = n.enqueue(pending, conversationID, c)
			case send <- next:
				pending = pending[1:]
			}
		}
	}()

	return out
}

func (n *Notifier) enqueue(pending []model.ChangeEvent, conversationID string, c changefeed.Change) []model.ChangeEvent {
	ev := model.ChangeEvent{ConversationID: conversationID, Message: c.Message}
	if last := len(pending) - 1; last >= 0 && pending[last].Message.ID == ev.Message.ID {
		pending[last] = ev
		return pending
	}
	if len(pending) >= maxPending {
		n.logger.Warn("watch backlog full, dropping oldest event",
			zap.String("conversation_id", conversationID),
			zap.String("msg_id", pending[0].Message.ID))
		pending = pending[1:]
	}
	return append(pending, ev)
}
