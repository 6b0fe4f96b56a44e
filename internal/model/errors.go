package model

import "errors"

var (
	// ErrMalformedPayload marks a webhook payload that cannot be normalized.
	// Client input defect; never retried.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrStoreUnavailable wraps every storage failure. Callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSessionSend is returned when an event cannot be handed to one
	// subscriber. It only affects that subscriber.
	ErrSessionSend = errors.New("session send failure")
)
