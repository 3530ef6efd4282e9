package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
	"github.com/angelmondragon/royaltyworks-backend/pkg/logger"
	"github.com/angelmondragon/royaltyworks-backend/pkg/outbox"
	"github.com/angelmondragon/royaltyworks-backend/pkg/outbox/payloads"
)

// Event is one auditable action on a run, statement, or line.
type Event struct {
	EntityType string
	EntityID   uuid.UUID
	Action     string
	ActorID    uuid.UUID
	Detail     string
	OccurredAt time.Time
}

// Logger records audit events. Persistence is owned by an external
// collaborator; failures here must never fail the calling operation.
type Logger interface {
	Log(ctx context.Context, tx *gorm.DB, event Event) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditLogger struct {
	logg   *logger.Logger
	outbox outboxEmitter
}

// NewLogger builds the default audit logger: structured log line plus an
// outbox event for the external audit pipeline.
func NewLogger(logg *logger.Logger, emitter outboxEmitter) (Logger, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &auditLogger{logg: logg, outbox: emitter}, nil
}

func (a *auditLogger) Log(ctx context.Context, tx *gorm.DB, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	fields := map[string]any{
		"entity_type": event.EntityType,
		"entity_id":   event.EntityID.String(),
		"action":      event.Action,
		"actor_id":    event.ActorID.String(),
	}
	if event.Detail != "" {
		fields["detail"] = event.Detail
	}
	a.logg.Info(a.logg.WithFields(ctx, fields), "audit event")

	if tx == nil {
		return nil
	}
	return a.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventAuditRecorded,
		AggregateType: enums.AggregateRoyaltyRun,
		AggregateID:   event.EntityID,
		Data: payloads.AuditRecordedEvent{
			EntityType: event.EntityType,
			EntityID:   event.EntityID,
			Action:     event.Action,
			ActorID:    event.ActorID,
			OccurredAt: event.OccurredAt,
			Detail:     event.Detail,
		},
		Version:    1,
		OccurredAt: event.OccurredAt,
	})
}
