package model

import "time"

// Message is the canonical, provider-independent message record.
// (ConversationID, ID) is unique.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Body           string    `json:"body"`
	Status         Status    `json:"status"`
	FromMe         bool      `json:"fromMe"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Revision       int64     `json:"revision"`
}

// Conversation is the denormalized per-thread summary derived from messages.
type Conversation struct {
	ConversationID  string    `json:"conversationId"`
	LastMessageBody string    `json:"lastMessageBody"`
	LastActivityAt  time.Time `json:"lastActivityAt"`
}

// StatusUpdate is a delivery receipt for a previously ingested message.
// It is applied to the message and never stored on its own.
type StatusUpdate struct {
	TargetMessageID string
	ConversationID  string // may be empty; then the update matches on message id only
	NewStatus       Status
	ObservedAt      time.Time
}

// ChangeEvent carries the full state of a message right after a mutation.
type ChangeEvent struct {
	ConversationID string  `json:"conversationId"`
	Message        Message `json:"message"`
}
