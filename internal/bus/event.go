package bus

import "time"

// Event kinds published by the relay.
const (
	KindSessionState     = "session.state_changed"
	KindWebhookIngested  = "webhook.ingested"
	KindWebhookRejected  = "webhook.rejected"
	KindWebhookFailed    = "webhook.failed"
	KindMessageSubmitted = "message.submitted"
)

// Event is an operational event: something the daemon did, as opposed to a
// data change on the store feed.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
