// Package store persists messages and conversation summaries and publishes
// every committed mutation on a change feed.
package store

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/matheus3301/wpprelay/internal/changefeed"
	"github.com/matheus3301/wpprelay/internal/model"
	"go.uber.org/zap"
)

// Backend is the persistence capability the adapter needs: upsert with a
// filter and find by filter. *DB implements it for sqlite and postgres.
type Backend interface {
	UpsertMessage(ctx context.Context, m model.Message) (model.Message, bool, error)
	ApplyStatus(ctx context.Context, su model.StatusUpdate) (model.Message, bool, error)
	UpsertConversation(ctx context.Context, c model.Conversation) error
	GetMessage(ctx context.Context, conversationID, msgID string) (*model.Message, error)
	HasMessage(ctx context.Context, conversationID, msgID string) (bool, error)
	ListMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]model.Message, error)
	ListConversations(ctx context.Context, limit, offset int) ([]model.Conversation, error)
	PingContext(ctx context.Context) error
}

// writeStripes bounds the per-message locks that keep publish order equal to
// commit order.
const writeStripes = 64

// Store is the adapter the ingestion pipeline writes through. Every storage
// error is wrapped with model.ErrStoreUnavailable.
//
// Writes to one provider message id are serialized together with their
// publish, so the feed sees a message's revisions in increasing order.
type Store struct {
	backend Backend
	feed    *changefeed.Feed
	logger  *zap.Logger
	stripes [writeStripes]sync.Mutex
}

// New creates a store adapter. feed may be nil when no one listens for changes.
func New(backend Backend, feed *changefeed.Feed, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		backend: backend,
		feed:    feed,
		logger:  logger.Named("store"),
	}
}

// UpsertMessage stores msg idempotently and publishes the resulting state when
// the row changed.
func (s *Store) UpsertMessage(ctx context.Context, msg model.Message) (model.Message, bool, error) {
	mu := s.stripe(msg.ID)
	mu.Lock()
	defer mu.Unlock()

	stored, modified, err := s.backend.UpsertMessage(ctx, msg)
	if err != nil {
		return model.Message{}, false, unavailable("upsert message", err)
	}
	if modified {
		op := changefeed.OpUpdate
		if stored.Revision == 1 {
			op = changefeed.OpInsert
		}
		s.publish(op, stored)
	}
	return stored, modified, nil
}

// UpsertConversationSummary records lastBody as the conversation preview.
func (s *Store) UpsertConversationSummary(ctx context.Context, conversationID, lastBody string, at time.Time) error {
	err := s.backend.UpsertConversation(ctx, model.Conversation{
		ConversationID:  conversationID,
		LastMessageBody: lastBody,
		LastActivityAt:  at,
	})
	if err != nil {
		return unavailable("upsert conversation", err)
	}
	return nil
}

// ApplyStatusUpdate advances the status of one message. An unknown message id
// is not an error: it returns modified=false and publishes nothing.
func (s *Store) ApplyStatusUpdate(ctx context.Context, su model.StatusUpdate) (bool, error) {
	mu := s.stripe(su.TargetMessageID)
	mu.Lock()
	defer mu.Unlock()

	stored, modified, err := s.backend.ApplyStatus(ctx, su)
	if err != nil {
		return false, unavailable("apply status", err)
	}
	if modified {
		s.publish(changefeed.OpUpdate, stored)
	}
	return modified, nil
}

// HasMessage reports whether a status update for msgID would find a message.
// An empty conversationID matches any conversation.
func (s *Store) HasMessage(ctx context.Context, conversationID, msgID string) (bool, error) {
	ok, err := s.backend.HasMessage(ctx, conversationID, msgID)
	if err != nil {
		return false, unavailable("has message", err)
	}
	return ok, nil
}

// GetMessage returns the stored message or nil.
func (s *Store) GetMessage(ctx context.Context, conversationID, msgID string) (*model.Message, error) {
	m, err := s.backend.GetMessage(ctx, conversationID, msgID)
	if err != nil {
		return nil, unavailable("get message", err)
	}
	return m, nil
}

// ListMessages returns the latest messages of a conversation, oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	msgs, err := s.backend.ListMessages(ctx, conversationID, time.Time{}, limit)
	if err != nil {
		return nil, unavailable("list messages", err)
	}
	return msgs, nil
}

// ListConversations returns conversations, most recently active first.
func (s *Store) ListConversations(ctx context.Context, limit, offset int) ([]model.Conversation, error) {
	convs, err := s.backend.ListConversations(ctx, limit, offset)
	if err != nil {
		return nil, unavailable("list conversations", err)
	}
	return convs, nil
}

// Ping checks that the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.backend.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *Store) stripe(msgID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(msgID))
	return &s.stripes[h.Sum32()%writeStripes]
}

func (s *Store) publish(op changefeed.Op, m model.Message) {
	if s.feed == nil {
		return
	}
	s.feed.Publish(changefeed.Change{Op: op, Message: m})
	s.logger.Debug("change published",
		zap.String("op", string(op)),
		zap.String("conversation_id", m.ConversationID),
		zap.String("msg_id", m.ID),
		zap.String("status", string(m.Status)))
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrStoreUnavailable, err)
}
