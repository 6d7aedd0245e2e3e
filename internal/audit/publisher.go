package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"idecide/internal/platform/kafka"
	"idecide/pkg/requestcontext"
)

// Publisher captures structured audit events. The store append is the source
// of truth and is synchronous; the Kafka publish is best-effort fan-out for
// downstream consumers. Losing a Kafka record never fails the business
// operation, losing the store write does.
type Publisher struct {
	store    Store
	producer *kafka.Producer
	logger   *slog.Logger
}

// NewPublisher builds a publisher. producer may be nil (Kafka disabled).
func NewPublisher(store Store, producer *kafka.Producer, logger *slog.Logger) *Publisher {
	return &Publisher{store: store, producer: producer, logger: logger}
}

// enrich fills identity and provenance fields from the request context.
// Events queued for background processing must be enriched while the request
// context is still live.
func enrich(ctx context.Context, event Event) Event {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ActorID == "" {
		if userID := requestcontext.UserID(ctx); !userID.IsNil() {
			event.ActorID = userID.String()
		}
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = requestcontext.UserAgent(ctx)
	}
	return event
}

// Emit records one event, enriching it from the request context.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	event = enrich(ctx, event)

	if err := p.store.Append(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "audit append failed",
			"action", event.Action,
			"error", err,
			"request_id", event.RequestID,
		)
		return err
	}

	if p.producer != nil {
		payload, err := json.Marshal(event)
		if err != nil {
			p.logger.ErrorContext(ctx, "audit event marshal failed", "error", err)
			return nil
		}
		p.producer.Publish(ctx, kafka.TopicAudit, []byte(event.ID), payload, func(err error) {
			p.logger.Error("audit kafka publish failed",
				"action", event.Action,
				"error", err,
			)
		})
	}
	return nil
}

// EmitAsync queues the event on the worker inbox when the caller cannot
// tolerate audit latency. Falls back to a synchronous emit when the inbox is
// full so events are not silently dropped.
func (p *Publisher) EmitAsync(ctx context.Context, inbox chan<- Event, event Event) {
	event = enrich(ctx, event)
	select {
	case inbox <- event:
	default:
		_ = p.Emit(ctx, event)
	}
}
