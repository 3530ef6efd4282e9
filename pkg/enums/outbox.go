package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateRoyaltyRun       OutboxAggregateType = "royalty_run"
	AggregateRoyaltyStatement OutboxAggregateType = "royalty_statement"
	AggregateRoyaltyLine      OutboxAggregateType = "royalty_line"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateRoyaltyRun,
	AggregateRoyaltyStatement,
	AggregateRoyaltyLine,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventRunCalculated       OutboxEventType = "run_calculated"
	EventRunFailed           OutboxEventType = "run_failed"
	EventRunLocked           OutboxEventType = "run_locked"
	EventRunRolledBack       OutboxEventType = "run_rolled_back"
	EventStatementIssued     OutboxEventType = "statement_issued"
	EventStatementReviewed   OutboxEventType = "statement_reviewed"
	EventStatementDisputed   OutboxEventType = "statement_disputed"
	EventStatementResolved   OutboxEventType = "statement_resolved"
	EventDisputeEscalated    OutboxEventType = "dispute_escalated"
	EventAdjustmentRequested OutboxEventType = "adjustment_requested"
	EventAdjustmentApplied   OutboxEventType = "adjustment_applied"
	EventAdjustmentRejected  OutboxEventType = "adjustment_rejected"
	EventAdjustmentReversed  OutboxEventType = "adjustment_reversed"
	EventAuditRecorded       OutboxEventType = "audit_recorded"
)

var validOutboxEventTypes = []OutboxEventType{
	EventRunCalculated,
	EventRunFailed,
	EventRunLocked,
	EventRunRolledBack,
	EventStatementIssued,
	EventStatementReviewed,
	EventStatementDisputed,
	EventStatementResolved,
	EventDisputeEscalated,
	EventAdjustmentRequested,
	EventAdjustmentApplied,
	EventAdjustmentRejected,
	EventAdjustmentReversed,
	EventAuditRecorded,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
