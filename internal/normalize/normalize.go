// Package normalize turns provider webhook payloads into canonical messages
// and status updates.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/wpprelay/internal/model"
	"github.com/tidwall/gjson"
)

// entryPaths are tried in order; the first non-empty match wins. Some
// forwarders wrap the provider body in a "metaData" envelope.
var entryPaths = []string{
	"metaData.entry",
	"entry",
}

// Batch is the normalized content of one payload. Order within each slice
// follows the payload.
type Batch struct {
	Messages []model.Message
	Statuses []model.StatusUpdate
}

// Parse normalizes a raw payload. observedAt stamps every record and is used
// as createdAt when the provider omits a timestamp.
//
// A payload without a usable entry/changes/value path fails with
// model.ErrMalformedPayload. Individual message or status entries that lack
// required fields are skipped.
func Parse(payload []byte, observedAt time.Time) (*Batch, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("%w: invalid json", model.ErrMalformedPayload)
	}

	var entry gjson.Result
	for _, path := range entryPaths {
		if r := gjson.GetBytes(payload, path); nonEmpty(r) {
			entry = r
			break
		}
	}
	if !entry.Exists() {
		return nil, fmt.Errorf("%w: missing entry", model.ErrMalformedPayload)
	}
	if entry.IsArray() {
		entry = entry.Array()[0]
	}

	changes := entry.Get("changes")
	if !changes.IsArray() || !nonEmpty(changes) {
		return nil, fmt.Errorf("%w: missing changes", model.ErrMalformedPayload)
	}

	value := changes.Array()[0].Get("value")
	if !value.IsObject() || !nonEmpty(value) {
		return nil, fmt.Errorf("%w: missing value", model.ErrMalformedPayload)
	}

	batch := &Batch{}
	for _, m := range listAt(value, "messages") {
		if msg, ok := parseMessage(m, observedAt); ok {
			batch.Messages = append(batch.Messages, msg)
		}
	}
	for _, s := range listAt(value, "statuses") {
		if su, ok := parseStatus(s, observedAt); ok {
			batch.Statuses = append(batch.Statuses, su)
		}
	}
	return batch, nil
}

func parseMessage(m gjson.Result, observedAt time.Time) (model.Message, bool) {
	from := str(m, "from")
	body := raw(m, "text.body")
	id := str(m, "id")
	if from == "" || body == "" || id == "" {
		return model.Message{}, false
	}
	return model.Message{
		ID:             id,
		ConversationID: from,
		Body:           body,
		Status:         model.StatusReceived,
		CreatedAt:      providerTime(m.Get("timestamp"), observedAt),
		UpdatedAt:      observedAt,
	}, true
}

func parseStatus(s gjson.Result, observedAt time.Time) (model.StatusUpdate, bool) {
	id := str(s, "id")
	if id == "" {
		id = str(s, "meta_msg_id")
	}
	st, ok := model.ParseReceipt(str(s, "status"))
	if id == "" || !ok {
		return model.StatusUpdate{}, false
	}
	return model.StatusUpdate{
		TargetMessageID: id,
		ConversationID:  str(s, "recipient_id"),
		NewStatus:       st,
		ObservedAt:      observedAt,
	}, true
}

func listAt(r gjson.Result, path string) []gjson.Result {
	v := r.Get(path)
	if !v.IsArray() {
		return nil
	}
	return v.Array()
}

// str reads an identifier-like scalar, trimmed.
func str(r gjson.Result, path string) string {
	return strings.TrimSpace(raw(r, path))
}

// raw reads a scalar as sent. Objects and arrays read as "".
func raw(r gjson.Result, path string) string {
	v := r.Get(path)
	if v.IsObject() || v.IsArray() {
		return ""
	}
	return v.String()
}

// providerTime reads a unix-seconds timestamp (string or number).
func providerTime(r gjson.Result, fallback time.Time) time.Time {
	if sec := r.Int(); sec > 0 {
		return time.Unix(sec, 0).UTC()
	}
	return fallback
}

func nonEmpty(r gjson.Result) bool {
	switch {
	case !r.Exists():
		return false
	case r.IsArray():
		return len(r.Array()) > 0
	case r.IsObject():
		return len(r.Map()) > 0
	case r.Type == gjson.Null:
		return false
	case r.Type == gjson.False:
		return false
	default:
		return r.String() != "" && r.String() != "0"
	}
}
