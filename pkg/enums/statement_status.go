package enums

import "fmt"

// StatementStatus maps to the royalty_statement_status enum in Postgres.
type StatementStatus string

const (
	StatementStatusPending  StatementStatus = "pending"
	StatementStatusReviewed StatementStatus = "reviewed"
	StatementStatusDisputed StatementStatus = "disputed"
	StatementStatusResolved StatementStatus = "resolved"
	StatementStatusPaid     StatementStatus = "paid"
)

var validStatementStatuses = []StatementStatus{
	StatementStatusPending,
	StatementStatusReviewed,
	StatementStatusDisputed,
	StatementStatusResolved,
	StatementStatusPaid,
}

// IsValid reports whether the value matches the canonical statement status enum.
func (s StatementStatus) IsValid() bool {
	for _, candidate := range validStatementStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanDispute reports whether a statement in this status may be disputed.
func (s StatementStatus) CanDispute() bool {
	return s == StatementStatusPending || s == StatementStatusReviewed
}

// ParseStatementStatus converts raw input into StatementStatus.
func ParseStatementStatus(value string) (StatementStatus, error) {
	for _, candidate := range validStatementStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid statement status %q", value)
}
