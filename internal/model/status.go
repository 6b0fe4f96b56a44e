package model

// Status is the delivery state of a message.
type Status string

const (
	StatusReceived  Status = "received"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

// Rank orders statuses so that a write never moves a message backwards.
// received and sent are the two starting points (inbound vs outbound).
func (s Status) Rank() int {
	switch s {
	case StatusReceived, StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.Rank() > 0
}

// ParseReceipt maps a provider receipt value to a Status. Only the values a
// provider reports for outbound messages are accepted.
func ParseReceipt(v string) (Status, bool) {
	switch Status(v) {
	case StatusSent, StatusDelivered, StatusRead:
		return Status(v), true
	default:
		return "", false
	}
}
