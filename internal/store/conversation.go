package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/matheus3301/wpprelay/internal/model"
)

// UpsertConversation writes the summary row. A summary older than the stored
// one (by LastActivityAt) does not overwrite it.
func (db *DB) UpsertConversation(ctx context.Context, c model.Conversation) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, db.q(`
		INSERT INTO conversations (conversation_id, last_message_body, last_activity_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			last_message_body = excluded.last_message_body,
			last_activity_at = excluded.last_activity_at,
			updated_at = excluded.updated_at
		WHERE excluded.last_activity_at >= conversations.last_activity_at`),
		c.ConversationID, c.LastMessageBody, c.LastActivityAt.UnixMilli(), now)
	return err
}

// ListConversations returns conversations sorted by last activity, newest first.
func (db *DB) ListConversations(ctx context.Context, limit, offset int) ([]model.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, db.q(`
		SELECT conversation_id, last_message_body, last_activity_at
		FROM conversations
		ORDER BY last_activity_at DESC
		LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []model.Conversation
	for rows.Next() {
		var (
			c  model.Conversation
			ms int64
		)
		if err := rows.Scan(&c.ConversationID, &c.LastMessageBody, &ms); err != nil {
			return nil, err
		}
		c.LastActivityAt = time.UnixMilli(ms).UTC()
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// GetConversation returns a single conversation, or nil when it does not exist.
func (db *DB) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	var (
		c  model.Conversation
		ms int64
	)
	err := db.QueryRowContext(ctx, db.q(`
		SELECT conversation_id, last_message_body, last_activity_at
		FROM conversations
		WHERE conversation_id = ?`), conversationID).
		Scan(&c.ConversationID, &c.LastMessageBody, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.LastActivityAt = time.UnixMilli(ms).UTC()
	return &c, nil
}

// ConversationCount returns the total number of conversations.
func (db *DB) ConversationCount(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n)
	return n, err
}
