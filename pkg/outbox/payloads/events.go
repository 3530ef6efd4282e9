package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
)

// RunCalculatedEvent is emitted when a run finishes calculation.
type RunCalculatedEvent struct {
	RunID               uuid.UUID `json:"run_id"`
	PeriodStart         time.Time `json:"period_start"`
	PeriodEnd           time.Time `json:"period_end"`
	StatementCount      int       `json:"statement_count"`
	TotalRevenueCents   int64     `json:"total_revenue_cents"`
	TotalRoyaltiesCents int64     `json:"total_royalties_cents"`
}

// RunFailedEvent reports a calculation that aborted.
type RunFailedEvent struct {
	RunID    uuid.UUID `json:"run_id"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// RunLockedEvent is emitted when a run transitions to locked.
type RunLockedEvent struct {
	RunID    uuid.UUID `json:"run_id"`
	LockedAt time.Time `json:"locked_at"`
	LockedBy uuid.UUID `json:"locked_by"`
}

// RunRolledBackEvent reports a calculated run reset to draft.
type RunRolledBackEvent struct {
	RunID                 uuid.UUID `json:"run_id"`
	DeletedStatementCount int       `json:"deleted_statement_count"`
}

// StatementIssuedEvent tells the notification pipeline a new statement is
// ready for its creator.
type StatementIssuedEvent struct {
	StatementID        uuid.UUID `json:"statement_id"`
	RunID              uuid.UUID `json:"run_id"`
	CreatorID          uuid.UUID `json:"creator_id"`
	TotalEarningsCents int64     `json:"total_earnings_cents"`
	Held               bool      `json:"held"`
}

// DisputeEscalatedEvent flags a dispute that sat unresolved past the
// configured timeout.
type DisputeEscalatedEvent struct {
	StatementID uuid.UUID `json:"statement_id"`
	RunID       uuid.UUID `json:"run_id"`
	CreatorID   uuid.UUID `json:"creator_id"`
	DisputedAt  time.Time `json:"disputed_at"`
	OverdueDays int       `json:"overdue_days"`
}

// StatementReviewedEvent marks a statement reviewed by its creator.
type StatementReviewedEvent struct {
	StatementID uuid.UUID `json:"statement_id"`
	RunID       uuid.UUID `json:"run_id"`
	CreatorID   uuid.UUID `json:"creator_id"`
	ReviewedAt  time.Time `json:"reviewed_at"`
}

// StatementDisputedEvent carries the dispute reason for downstream alerting.
type StatementDisputedEvent struct {
	StatementID uuid.UUID `json:"statement_id"`
	RunID       uuid.UUID `json:"run_id"`
	CreatorID   uuid.UUID `json:"creator_id"`
	Reason      string    `json:"reason"`
	DisputedAt  time.Time `json:"disputed_at"`
}

// StatementResolvedEvent closes out a dispute.
type StatementResolvedEvent struct {
	StatementID          uuid.UUID `json:"statement_id"`
	RunID                uuid.UUID `json:"run_id"`
	CreatorID            uuid.UUID `json:"creator_id"`
	ResolvedBy           uuid.UUID `json:"resolved_by"`
	AdjustmentAmountCent *int64    `json:"adjustment_amount_cents,omitempty"`
	Notes                string    `json:"notes,omitempty"`
}

// AdjustmentRequestedEvent is emitted for every manual adjustment request.
type AdjustmentRequestedEvent struct {
	LineID       uuid.UUID             `json:"line_id"`
	StatementID  uuid.UUID             `json:"statement_id"`
	Type         enums.AdjustmentType  `json:"type"`
	AmountCents  int64                 `json:"amount_cents"`
	Status       enums.AdjustmentStatus `json:"status"`
	RequestedBy  uuid.UUID             `json:"requested_by"`
	AutoApproved bool                  `json:"auto_approved"`
}

// AdjustmentAppliedEvent reports an adjustment applied to statement totals.
type AdjustmentAppliedEvent struct {
	LineID            uuid.UUID `json:"line_id"`
	StatementID       uuid.UUID `json:"statement_id"`
	AmountCents       int64     `json:"amount_cents"`
	NewStatementTotal int64     `json:"new_statement_total_cents"`
	DecidedBy         *uuid.UUID `json:"decided_by,omitempty"`
}

// AdjustmentRejectedEvent reports a rejected pending adjustment.
type AdjustmentRejectedEvent struct {
	LineID      uuid.UUID `json:"line_id"`
	StatementID uuid.UUID `json:"statement_id"`
	DecidedBy   uuid.UUID `json:"decided_by"`
	Reason      string    `json:"reason,omitempty"`
}

// AdjustmentReversedEvent carries both sides of a reversal.
type AdjustmentReversedEvent struct {
	OriginalLineID uuid.UUID `json:"original_line_id"`
	ReversalLineID uuid.UUID `json:"reversal_line_id"`
	StatementID    uuid.UUID `json:"statement_id"`
	AmountCents    int64     `json:"amount_cents"`
	ReversedBy     uuid.UUID `json:"reversed_by"`
}

// AuditRecordedEvent mirrors an audit log entry onto the event bus.
type AuditRecordedEvent struct {
	EntityType string    `json:"entity_type"`
	EntityID   uuid.UUID `json:"entity_id"`
	Action     string    `json:"action"`
	ActorID    uuid.UUID `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Detail     string    `json:"detail,omitempty"`
}
