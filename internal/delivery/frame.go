package delivery

import "github.com/matheus3301/wpprelay/internal/model"

// Frame is one JSON document pushed to a real-time client. Exactly one of
// the field groups is set.
type Frame struct {
	Status         string         `json:"status,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
	Message        *model.Message `json:"message,omitempty"`
	Ping           string         `json:"ping,omitempty"`
}

// ConnectedFrame acknowledges a subscription.
func ConnectedFrame(conversationID string) Frame {
	return Frame{Status: "connected", ConversationID: conversationID}
}

// MessageFrame carries the full state of a changed message. Revision grows
// with every write; a client keeps the highest revision it has seen per id.
func MessageFrame(m model.Message) Frame {
	return Frame{Message: &m}
}

// PingFrame is the keepalive.
func PingFrame() Frame {
	return Frame{Ping: "pong"}
}

// Reason says why a session closed.
type Reason string

const (
	ReasonPeerGone   Reason = "peer disconnected"
	ReasonShutdown   Reason = "server shutdown"
	ReasonOverflow   Reason = "send queue overflow"
	ReasonSendFailed Reason = "send failed"
	ReasonHandshake  Reason = "handshake failed"
)
