package enums

import "fmt"

// RunStatus maps to the royalty_run_status enum in Postgres.
type RunStatus string

const (
	RunStatusDraft      RunStatus = "draft"
	RunStatusCalculated RunStatus = "calculated"
	RunStatusLocked     RunStatus = "locked"
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

var validRunStatuses = []RunStatus{
	RunStatusDraft,
	RunStatusCalculated,
	RunStatusLocked,
	RunStatusProcessing,
	RunStatusCompleted,
	RunStatusFailed,
}

// IsValid reports whether the value matches the canonical run status enum.
func (s RunStatus) IsValid() bool {
	for _, candidate := range validRunStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the run can no longer change through normal flow.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted
}

// ParseRunStatus converts raw input into RunStatus.
func ParseRunStatus(value string) (RunStatus, error) {
	for _, candidate := range validRunStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid run status %q", value)
}
