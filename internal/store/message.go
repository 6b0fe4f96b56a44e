package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/wpprelay/internal/model"
)

// rank mirrors model.Status.Rank in SQL.
func rank(expr string) string {
	return fmt.Sprintf("(CASE %s WHEN 'read' THEN 3 WHEN 'delivered' THEN 2 WHEN 'sent' THEN 1 WHEN 'received' THEN 1 ELSE 0 END)", expr)
}

const messageColumns = `conversation_id, msg_id, body, status, from_me, created_at, updated_at, revision`

var (
	upsertMessageSQL = `
		INSERT INTO messages (conversation_id, msg_id, body, status, from_me, created_at, updated_at, revision)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
			body = CASE WHEN excluded.body <> '' THEN excluded.body ELSE messages.body END,
			status = CASE WHEN ` + rank("excluded.status") + ` >= ` + rank("messages.status") + ` THEN excluded.status ELSE messages.status END,
			updated_at = excluded.updated_at,
			revision = messages.revision + 1
		WHERE excluded.updated_at >= messages.updated_at
		RETURNING ` + messageColumns

	applyStatusSQL = `
		UPDATE messages SET status = ?, updated_at = ?, revision = revision + 1
		WHERE id = (
			SELECT id FROM messages
			WHERE msg_id = ? AND (CAST(? AS TEXT) = '' OR conversation_id = ?)
			ORDER BY created_at DESC
			LIMIT 1)
		AND ` + rank("status") + ` < ` + rank("CAST(? AS TEXT)") + `
		RETURNING ` + messageColumns
)

// UpsertMessage inserts or updates a message (idempotent on conversation_id + msg_id).
// An existing body is never replaced by an empty one and status never moves
// backwards. Concurrent writers of the same message resolve last-write-wins
// on UpdatedAt; a write older than the stored row is ignored and reported
// with modified=false. The returned message is the stored state.
func (db *DB) UpsertMessage(ctx context.Context, m model.Message) (model.Message, bool, error) {
	row := db.QueryRowContext(ctx, db.q(upsertMessageSQL),
		m.ConversationID, m.ID, m.Body, string(m.Status), boolToInt(m.FromMe),
		m.CreatedAt.UnixMilli(), m.UpdatedAt.UnixMilli())
	stored, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		current, getErr := db.GetMessage(ctx, m.ConversationID, m.ID)
		if getErr != nil {
			return model.Message{}, false, getErr
		}
		if current == nil {
			return model.Message{}, false, fmt.Errorf("message %s/%s vanished during upsert", m.ConversationID, m.ID)
		}
		return *current, false, nil
	}
	if err != nil {
		return model.Message{}, false, err
	}
	return stored, true, nil
}

// ApplyStatus sets the status of the newest message with the given provider id,
// scoped to su.ConversationID when it is set. It reports modified=false when no
// message matches or when the update would not advance the status.
func (db *DB) ApplyStatus(ctx context.Context, su model.StatusUpdate) (model.Message, bool, error) {
	row := db.QueryRowContext(ctx, db.q(applyStatusSQL),
		string(su.NewStatus), su.ObservedAt.UnixMilli(),
		su.TargetMessageID, su.ConversationID, su.ConversationID,
		string(su.NewStatus))
	stored, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, false, nil
	}
	if err != nil {
		return model.Message{}, false, err
	}
	return stored, true, nil
}

// HasMessage reports whether a message with the provider id exists, scoped to
// conversationID when it is set.
func (db *DB) HasMessage(ctx context.Context, conversationID, msgID string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, db.q(`
		SELECT 1 FROM messages
		WHERE msg_id = ? AND (CAST(? AS TEXT) = '' OR conversation_id = ?)
		LIMIT 1`), msgID, conversationID, conversationID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetMessage returns a single message, or nil when it does not exist.
func (db *DB) GetMessage(ctx context.Context, conversationID, msgID string) (*model.Message, error) {
	row := db.QueryRowContext(ctx, db.q(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = ? AND msg_id = ?`), conversationID, msgID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns up to limit messages of a conversation created before
// the given time, oldest first. A zero before lists the latest messages.
func (db *DB) ListMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = ?`
	args := []any{conversationID}
	if !before.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, before.UnixMilli())
	}
	query += `
		ORDER BY created_at DESC, id DESC
		LIMIT ?`
	args = append(args, limit)
	rows, err := db.QueryContext(ctx, db.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MessageCount returns the total number of stored messages.
func (db *DB) MessageCount(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (model.Message, error) {
	var (
		m                    model.Message
		status               string
		fromMe               int64
		createdMs, updatedMs int64
	)
	if err := s.Scan(&m.ConversationID, &m.ID, &m.Body, &status, &fromMe, &createdMs, &updatedMs, &m.Revision); err != nil {
		return model.Message{}, err
	}
	m.Status = model.Status(status)
	m.FromMe = fromMe != 0
	m.CreatedAt = time.UnixMilli(createdMs).UTC()
	m.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
