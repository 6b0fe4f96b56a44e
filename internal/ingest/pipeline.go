// Package ingest drives webhook payloads and outbound messages through the
// normalizer into the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wpprelay/internal/bus"
	"github.com/matheus3301/wpprelay/internal/model"
	"github.com/matheus3301/wpprelay/internal/normalize"
	"go.uber.org/zap"
)

// ErrInvalidMessage rejects an outbound message without a conversation or body.
var ErrInvalidMessage = errors.New("invalid message")

// Writer is the store surface the pipeline writes through.
type Writer interface {
	UpsertMessage(ctx context.Context, msg model.Message) (model.Message, bool, error)
	UpsertConversationSummary(ctx context.Context, conversationID, lastBody string, at time.Time) error
	ApplyStatusUpdate(ctx context.Context, su model.StatusUpdate) (bool, error)
	HasMessage(ctx context.Context, conversationID, msgID string) (bool, error)
}

// Retry controls how store failures are retried.
type Retry struct {
	Attempts  int
	BaseDelay time.Duration
}

// Result summarizes one ingested payload. Status updates that were not
// applied are split into Unmatched (no such message) and Stale (the message
// already had that status or a later one).
type Result struct {
	Messages  int `json:"messages"`
	Statuses  int `json:"statuses"`
	Unmatched int `json:"unmatched"`
	Stale     int `json:"stale"`
}

// Pipeline ingests payloads idempotently: replaying a payload stores nothing new.
type Pipeline struct {
	store  Writer
	bus    *bus.Bus
	retry  Retry
	now    func() time.Time
	logger *zap.Logger
}

// New creates a pipeline.
func New(store Writer, b *bus.Bus, retry Retry, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retry.Attempts <= 0 {
		retry.Attempts = 1
	}
	return &Pipeline{
		store:  store,
		bus:    b,
		retry:  retry,
		now:    time.Now,
		logger: logger.Named("ingest"),
	}
}

// Ingest normalizes payload and applies every message and status it holds.
// A malformed payload fails with model.ErrMalformedPayload before anything is
// written. Store failures are retried and then returned.
func (p *Pipeline) Ingest(ctx context.Context, payload []byte) (Result, error) {
	batch, err := normalize.Parse(payload, p.now().UTC())
	if err != nil {
		p.bus.Emit(bus.KindWebhookRejected, err.Error())
		return Result{}, err
	}

	var res Result
	for _, msg := range batch.Messages {
		if err := p.storeMessage(ctx, msg); err != nil {
			p.bus.Emit(bus.KindWebhookFailed, err.Error())
			return res, err
		}
		res.Messages++
	}

	for _, su := range batch.Statuses {
		var modified bool
		err := p.withRetry(ctx, "apply status", func(ctx context.Context) error {
			var err error
			modified, err = p.store.ApplyStatusUpdate(ctx, su)
			return err
		})
		if err != nil {
			p.bus.Emit(bus.KindWebhookFailed, err.Error())
			return res, err
		}
		if !modified {
			if err := p.skipStatus(ctx, su, &res); err != nil {
				p.bus.Emit(bus.KindWebhookFailed, err.Error())
				return res, err
			}
			continue
		}
		res.Statuses++
	}

	p.logger.Info("payload ingested",
		zap.Int("messages", res.Messages),
		zap.Int("statuses", res.Statuses),
		zap.Int("unmatched", res.Unmatched),
		zap.Int("stale", res.Stale))
	p.bus.Emit(bus.KindWebhookIngested, res)
	return res, nil
}

// skipStatus records a status update that changed nothing, telling an unknown
// message apart from one that is already at that status or beyond.
func (p *Pipeline) skipStatus(ctx context.Context, su model.StatusUpdate, res *Result) error {
	var found bool
	err := p.withRetry(ctx, "find status target", func(ctx context.Context) error {
		var err error
		found, err = p.store.HasMessage(ctx, su.ConversationID, su.TargetMessageID)
		return err
	})
	if err != nil {
		return err
	}
	fields := []zap.Field{
		zap.String("msg_id", su.TargetMessageID),
		zap.String("conversation_id", su.ConversationID),
		zap.String("status", string(su.NewStatus)),
	}
	if found {
		res.Stale++
		p.logger.Debug("status update not applied: message already at or past status", fields...)
		return nil
	}
	res.Unmatched++
	p.logger.Debug("status update matched no message", fields...)
	return nil
}

// Send stores an outbound message with a fresh id and status sent.
func (p *Pipeline) Send(ctx context.Context, conversationID, body string) (model.Message, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" || strings.TrimSpace(body) == "" {
		return model.Message{}, fmt.Errorf("%w: conversationId and body are required", ErrInvalidMessage)
	}
	now := p.now().UTC()
	msg := model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Body:           body,
		Status:         model.StatusSent,
		FromMe:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	var stored model.Message
	err := p.withRetry(ctx, "send message", func(ctx context.Context) error {
		var err error
		stored, _, err = p.store.UpsertMessage(ctx, msg)
		return err
	})
	if err != nil {
		return model.Message{}, err
	}
	if err := p.withRetry(ctx, "update conversation", func(ctx context.Context) error {
		return p.store.UpsertConversationSummary(ctx, stored.ConversationID, stored.Body, stored.CreatedAt)
	}); err != nil {
		return model.Message{}, err
	}
	p.bus.Emit(bus.KindMessageSubmitted, stored.ID)
	return stored, nil
}

func (p *Pipeline) storeMessage(ctx context.Context, msg model.Message) error {
	var stored model.Message
	if err := p.withRetry(ctx, "upsert message", func(ctx context.Context) error {
		var err error
		stored, _, err = p.store.UpsertMessage(ctx, msg)
		return err
	}); err != nil {
		return err
	}
	return p.withRetry(ctx, "update conversation", func(ctx context.Context) error {
		return p.store.UpsertConversationSummary(ctx, stored.ConversationID, stored.Body, msg.CreatedAt)
	})
}

// withRetry runs fn until it succeeds, fails with something other than
// model.ErrStoreUnavailable, or the attempts run out. The delay doubles after
// each failure.
func (p *Pipeline) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	delay := p.retry.BaseDelay
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || !errors.Is(err, model.ErrStoreUnavailable) || attempt >= p.retry.Attempts {
			break
		}
		p.logger.Warn("store unavailable, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, errors.Join(err, ctx.Err()))
		}
		delay *= 2
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
