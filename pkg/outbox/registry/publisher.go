package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/royaltyworks-backend/pkg/config"
	"github.com/angelmondragon/royaltyworks-backend/pkg/db/models"
	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
	"github.com/angelmondragon/royaltyworks-backend/pkg/outbox"
	"github.com/angelmondragon/royaltyworks-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.RoyaltyTopic == "" {
		return nil, fmt.Errorf("royalty topic is required")
	}
	if cfg.StatementTopic == "" {
		return nil, fmt.Errorf("statement topic is required")
	}
	if cfg.AuditTopic == "" {
		return nil, fmt.Errorf("audit topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	royaltyTopic := cfg.RoyaltyTopic
	statementTopic := cfg.StatementTopic
	auditTopic := cfg.AuditTopic

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventRunCalculated,
			AggregateType:  enums.AggregateRoyaltyRun,
			Topic:          royaltyTopic,
			PayloadFactory: func() interface{} { return &payloads.RunCalculatedEvent{} },
		},
		{
			EventType:      enums.EventRunFailed,
			AggregateType:  enums.AggregateRoyaltyRun,
			Topic:          royaltyTopic,
			PayloadFactory: func() interface{} { return &payloads.RunFailedEvent{} },
		},
		{
			EventType:      enums.EventRunLocked,
			AggregateType:  enums.AggregateRoyaltyRun,
			Topic:          royaltyTopic,
			PayloadFactory: func() interface{} { return &payloads.RunLockedEvent{} },
		},
		{
			EventType:      enums.EventRunRolledBack,
			AggregateType:  enums.AggregateRoyaltyRun,
			Topic:          royaltyTopic,
			PayloadFactory: func() interface{} { return &payloads.RunRolledBackEvent{} },
		},
	} {
		reg.register(desc)
	}
	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventStatementIssued,
			AggregateType:  enums.AggregateRoyaltyStatement,
			Topic:          statementTopic,
			PayloadFactory: func() interface{} { return &payloads.StatementIssuedEvent{} },
		},
		{
			EventType:      enums.EventDisputeEscalated,
			AggregateType:  enums.AggregateRoyaltyStatement,
			Topic:          statementTopic,
			PayloadFactory: func() interface{} { return &payloads.DisputeEscalatedEvent{} },
		},
		{
			EventType:      enums.EventStatementReviewed,
			AggregateType:  enums.AggregateRoyaltyStatement,
			Topic:          statementTopic,
			PayloadFactory: func() interface{} { return &payloads.StatementReviewedEvent{} },
		},
		{
			EventType:      enums.EventStatementDisputed,
			AggregateType:  enums.AggregateRoyaltyStatement,
			Topic:          statementTopic,
			PayloadFactory: func() interface{} { return &payloads.StatementDisputedEvent{} },
		},
		{
			EventType:      enums.EventStatementResolved,
			AggregateType:  enums.AggregateRoyaltyStatement,
			Topic:          statementTopic,
			PayloadFactory: func() interface{} { return &payloads.StatementResolvedEvent{} },
		},
		{
			EventType:      enums.EventAdjustmentRequested,
			AggregateType:  enums.AggregateRoyaltyLine,
			Topic:          statementTopic,
			PayloadFactory: func() interface{} { return &payloads.AdjustmentRequestedEvent{} },
		},
		{
			EventType:      enums.EventAdjustmentApplied,
			AggregateType:  enums.AggregateRoyaltyLine,
			Topic:          statementTopic,
			PayloadFactory: func() interface{} { return &payloads.AdjustmentAppliedEvent{} },
		},
		{
			EventType:      enums.EventAdjustmentRejected,
			AggregateType:  enums.AggregateRoyaltyLine,
			Topic:          statementTopic,
			PayloadFactory: func() interface{} { return &payloads.AdjustmentRejectedEvent{} },
		},
		{
			EventType:      enums.EventAdjustmentReversed,
			AggregateType:  enums.AggregateRoyaltyLine,
			Topic:          statementTopic,
			PayloadFactory: func() interface{} { return &payloads.AdjustmentReversedEvent{} },
		},
	} {
		reg.register(desc)
	}
	reg.register(EventDescriptor{
		EventType:      enums.EventAuditRecorded,
		AggregateType:  enums.AggregateRoyaltyRun,
		Topic:          auditTopic,
		PayloadFactory: func() interface{} { return &payloads.AuditRecordedEvent{} },
	})

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if payload == nil {
		return nil, NewNonRetryableError(fmt.Errorf("payload factory not configured for %s", event.EventType))
	}
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
