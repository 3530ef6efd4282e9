package enums

import "fmt"

// AdjustmentStatus tracks the approval lifecycle of a manual adjustment line.
type AdjustmentStatus string

const (
	AdjustmentStatusPendingApproval AdjustmentStatus = "pending_approval"
	AdjustmentStatusApplied         AdjustmentStatus = "applied"
	AdjustmentStatusApproved        AdjustmentStatus = "approved"
	AdjustmentStatusRejected        AdjustmentStatus = "rejected"
	AdjustmentStatusReversed        AdjustmentStatus = "reversed"
)

var validAdjustmentStatuses = []AdjustmentStatus{
	AdjustmentStatusPendingApproval,
	AdjustmentStatusApplied,
	AdjustmentStatusApproved,
	AdjustmentStatusRejected,
	AdjustmentStatusReversed,
}

// IsValid reports whether the value matches the canonical adjustment status enum.
func (s AdjustmentStatus) IsValid() bool {
	for _, candidate := range validAdjustmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsReversible reports whether an adjustment in this status can be reversed.
func (s AdjustmentStatus) IsReversible() bool {
	return s == AdjustmentStatusApplied || s == AdjustmentStatusApproved
}

// ParseAdjustmentStatus converts raw input into AdjustmentStatus.
func ParseAdjustmentStatus(value string) (AdjustmentStatus, error) {
	for _, candidate := range validAdjustmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid adjustment status %q", value)
}
